// Package config loads the §6 listener/resource configuration via koanf,
// layering a YAML file under environment variable overrides the same way
// the teacher's sibling ingestion services in this stack do, then hands
// the rest of the core a plain Config struct so no package beyond this
// one imports koanf directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ResourceCaps mirrors the §5 "recommended defaults, configurable" caps.
type ResourceCaps struct {
	MaxSubPackageAssembliesPerSession int
	MaxBufferedPayloadPerSessionBytes int64
	MaxCorrelationEntriesPerSession   int
}

// DefaultResourceCaps returns the §5 recommended defaults.
func DefaultResourceCaps() ResourceCaps {
	return ResourceCaps{
		MaxSubPackageAssembliesPerSession: 8,
		MaxBufferedPayloadPerSessionBytes: 16 * 1024 * 1024,
		MaxCorrelationEntriesPerSession:   256,
	}
}

// Config is the plain struct every other dc600 package consumes. Nothing
// outside this package ever sees a koanf.Koanf value.
type Config struct {
	DC600Port         int
	JT1078Port        int
	AttachmentIP      string
	AttachmentPort    int
	Timezone          *time.Location
	IdleTimeout       time.Duration
	Caps              ResourceCaps
}

// Load reads configPath (YAML) and overlays environment variables
// prefixed DC600_, using "__" as the nested-key delimiter (DC600_DC600__PORT
// -> dc600.port), matching the koanf.env provider convention.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", configPath, err)
		}
	}

	// DC600_DC600__TIMEZONE -> dc600.timezone, DC600_DC600__ATTACHMENT__IP -> dc600.attachment.ip
	if err := k.Load(env.Provider("DC600_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "DC600_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading environment overrides: %w", err)
	}

	k.SetDefault("dc600.port", 5999)
	k.SetDefault("jt1078.port", 60001)
	k.SetDefault("dc600.timezone", "UTC")
	k.SetDefault("dc600.idletimeout", "5m")

	tzName := k.String("dc600.timezone")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid dc600.timezone %q: %w", tzName, err)
	}

	idleTimeout, err := time.ParseDuration(k.String("dc600.idletimeout"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid dc600.idletimeout: %w", err)
	}

	attachmentPort := k.Int("dc600.attachment.port")
	jt1078Port := k.Int("jt1078.port")
	if attachmentPort != 0 && attachmentPort != jt1078Port {
		return Config{}, fmt.Errorf("config: dc600.attachment.port (%d) must equal jt1078.port (%d)", attachmentPort, jt1078Port)
	}
	if attachmentPort == 0 {
		attachmentPort = jt1078Port
	}

	return Config{
		DC600Port:      k.Int("dc600.port"),
		JT1078Port:     jt1078Port,
		AttachmentIP:   k.String("dc600.attachment.ip"),
		AttachmentPort: attachmentPort,
		Timezone:       loc,
		IdleTimeout:    idleTimeout,
		Caps:           DefaultResourceCaps(),
	}, nil
}
