package middleware

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QueryLoggerName is the plugin name of the query logger.
const QueryLoggerName = "dataclient:query-logger"

// DefaultSlowThreshold is the statement duration above which the query logger warns.
const DefaultSlowThreshold = 200 * time.Millisecond

// LoggerOption configures the query logger.
type LoggerOption func(*queryLogger)

// WithSlowThreshold sets the duration above which statements are logged at warn level.
// Zero disables slow query detection.
func WithSlowThreshold(d time.Duration) LoggerOption {
	return func(l *queryLogger) {
		l.slow = d
	}
}

// WithParams includes bound statement parameters in log entries.
func WithParams() LoggerOption {
	return func(l *queryLogger) {
		l.params = true
	}
}

type queryLogger struct {
	logger *zap.Logger
	slow   time.Duration
	params bool
}

// QueryLogger returns a middleware logging every statement with zap:
// debug for normal statements, warn for slow ones, error for failures.
// Record-not-found is not treated as a failure.
func QueryLogger(logger *zap.Logger, opts ...LoggerOption) gorm.Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &queryLogger{logger: logger.Named("dataclient"), slow: DefaultSlowThreshold}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *queryLogger) Name() string { return QueryLoggerName }

func (l *queryLogger) Initialize(db *gorm.DB) error {
	return registerAround(db, QueryLoggerName, l.observe)
}

func (l *queryLogger) observe(op string, db *gorm.DB, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("table", db.Statement.Table),
		zap.String("sql", db.Statement.SQL.String()),
		zap.Int64("rows", db.RowsAffected),
		zap.Duration("duration", elapsed),
	}
	if l.params {
		fields = append(fields, zap.Any("params", db.Statement.Vars))
	}

	switch {
	case db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound):
		l.logger.Error("query failed", append(fields, zap.Error(db.Error))...)
	case l.slow > 0 && elapsed > l.slow:
		l.logger.Warn("slow query", fields...)
	default:
		l.logger.Debug("query", fields...)
	}
}
