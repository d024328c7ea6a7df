package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `mapstructure:"level" json:"level" yaml:"level" default:"info" validate:"oneof=debug info warn error dpanic panic fatal"`

	// Format is the log format (json or console).
	Format string `mapstructure:"format" json:"format" yaml:"format" default:"console" validate:"oneof=json console"`

	// Director is the directory of the rotated log file. Empty disables file output.
	Director string `mapstructure:"director" json:"director" yaml:"director"`

	// FileName is the name of the log file inside Director.
	FileName string `mapstructure:"file-name" json:"fileName" yaml:"file-name" default:"dataclient.log"`

	// LogInTerminal writes to stdout in addition to the file.
	LogInTerminal bool `mapstructure:"log-in-terminal" json:"logInTerminal" yaml:"log-in-terminal"`

	MaxAge     int  `mapstructure:"max-age" json:"maxAge" yaml:"max-age" default:"7"`
	MaxSize    int  `mapstructure:"max-size" json:"maxSize" yaml:"max-size" default:"100"`
	MaxBackups int  `mapstructure:"max-backups" json:"maxBackups" yaml:"max-backups" default:"10"`
	Compress   bool `mapstructure:"compress" json:"compress" yaml:"compress"`

	// ShowLineNumber adds the caller to each entry.
	ShowLineNumber bool `mapstructure:"show-line-number" json:"showLineNumber" yaml:"show-line-number"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		Format:        "console",
		FileName:      "dataclient.log",
		LogInTerminal: true,
		MaxAge:        7,
		MaxSize:       100,
		MaxBackups:    10,
	}
}

// TransportLevel converts the string level to zapcore.Level.
func (c Config) TransportLevel() zapcore.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
