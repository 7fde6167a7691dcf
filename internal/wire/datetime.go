package wire

import (
	"fmt"
	"time"
)

// DecodeBCDDateTime decodes the 6-byte BCD `YY MM DD HH MM SS` timestamp
// used throughout JT/T 808 (location reports, alarm flags, 0x9208 bodies)
// and interprets it in loc, which callers derive from dc600.timezone.
func DecodeBCDDateTime(data []byte, loc *time.Location) (time.Time, error) {
	if len(data) != 6 {
		return time.Time{}, fmt.Errorf("datetime requires 6 BCD bytes, got %d", len(data))
	}
	digits, err := DecodeBCD(data)
	if err != nil {
		return time.Time{}, fmt.Errorf("datetime: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	year := 2000 + int(digits[0]-'0')*10 + int(digits[1]-'0')
	month := int(digits[2]-'0')*10 + int(digits[3]-'0')
	day := int(digits[4]-'0')*10 + int(digits[5]-'0')
	hour := int(digits[6]-'0')*10 + int(digits[7]-'0')
	minute := int(digits[8]-'0')*10 + int(digits[9]-'0')
	second := int(digits[10]-'0')*10 + int(digits[11]-'0')

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid month: %d", month)
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid day: %d", day)
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid time of day: %02d:%02d:%02d", hour, minute, second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc), nil
}

// EncodeBCDDateTime encodes t (interpreted in its own location) to the
// 6-byte BCD `YY MM DD HH MM SS` form.
func EncodeBCDDateTime(t time.Time) []byte {
	digits := fmt.Sprintf("%02d%02d%02d%02d%02d%02d",
		t.Year()%100, int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	b, _ := EncodeBCD(digits)
	return b
}
