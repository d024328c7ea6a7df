package config

import (
	"os"
	"strings"
)

// ModeEnvKey selects the configuration mode.
const ModeEnvKey = "GO_ENV_MODE"

// Mode is the deployment mode used to pick mode-specific configuration files.
type Mode string

const (
	DevMode  Mode = "development"
	ProMode  Mode = "production"
	TestMode Mode = "test"
)

// ParseMode normalizes a mode name. Unknown and empty names map to DevMode.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod", "pro":
		return ProMode
	case "test", "testing":
		return TestMode
	default:
		return DevMode
	}
}

// CurrentMode reads the mode from GO_ENV_MODE.
func CurrentMode() Mode {
	return ParseMode(os.Getenv(ModeEnvKey))
}

// aliases lists the file name suffixes accepted for a mode, canonical name first.
func (m Mode) aliases() []string {
	switch m {
	case ProMode:
		return []string{"production", "prod", "pro"}
	case TestMode:
		return []string{"test"}
	default:
		return []string{"development", "dev"}
	}
}
