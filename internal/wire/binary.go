package wire

import "encoding/binary"

// ReadUint16BE reads a big-endian uint16. Returns 0 if data is too short.
func ReadUint16BE(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(data)
}

// ReadUint32BE reads a big-endian uint32. Returns 0 if data is too short.
func ReadUint32BE(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(data)
}

// WriteUint16BE appends a big-endian uint16 to buf and returns the result.
func WriteUint16BE(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

// WriteUint32BE appends a big-endian uint32 to buf and returns the result.
func WriteUint32BE(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// ReadInt32BE reads a big-endian two's-complement int32. Used for latitude
// and longitude, which the wire format never marks with a separate sign
// bit — the hemisphere is folded in via the status bitmap instead.
func ReadInt32BE(data []byte) int32 {
	return int32(ReadUint32BE(data))
}

// IsBitSet reports whether bit number `bit` (0 = LSB) is set in v.
func IsBitSet(v uint32, bit uint) bool {
	if bit > 31 {
		return false
	}
	return v&(1<<bit) != 0
}
