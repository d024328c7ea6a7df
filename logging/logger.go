// Package logging builds the zap logger used across the module.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logger from cfg. The returned closer releases the rotated log
// file, if any; it is never nil.
func New(cfg Config) (*zap.Logger, io.Closer, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, terminal zapcore.WriteSyncer) (*zap.Logger, io.Closer, error) {
	var (
		sinks  []zapcore.WriteSyncer
		closer io.Closer = nopCloser{}
	)

	if cfg.Director != "" {
		if err := os.MkdirAll(cfg.Director, 0o755); err != nil {
			return nil, nil, err
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Director, cfg.FileName),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		sinks = append(sinks, zapcore.AddSync(file))
		closer = file
	}
	if cfg.LogInTerminal || len(sinks) == 0 {
		sinks = append(sinks, terminal)
	}

	core := zapcore.NewCore(encoder(cfg), zapcore.NewMultiWriteSyncer(sinks...), cfg.TransportLevel())

	var opts []zap.Option
	if cfg.ShowLineNumber {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...), closer, nil
}

func encoder(cfg Config) zapcore.Encoder {
	if cfg.Format == "json" {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 - 15:04:05")
	return zapcore.NewConsoleEncoder(ec)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
