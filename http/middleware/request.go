// Package middleware holds the net/http middlewares of the HTTP surface.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	startTimeKey contextKey = "start_time"

	// TraceIDHeader carries the trace ID in requests and responses.
	TraceIDHeader = "X-Trace-ID"
)

// TraceID reuses the request's X-Trace-ID or generates one, echoes it in the
// response and stores it with the request start time in the context.
func TraceID() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceIDHeader)
			if traceID == "" {
				traceID = uuid.NewString()
			}
			w.Header().Set(TraceIDHeader, traceID)

			ctx := context.WithValue(r.Context(), traceIDKey, traceID)
			ctx = context.WithValue(ctx, startTimeKey, time.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog logs one line per request with zap.
func AccessLog(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("trace_id", GetTraceID(r.Context())),
			)
		})
	}
}

// GetTraceID returns the trace ID stored by TraceID.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRequestDuration returns the milliseconds since TraceID saw the request.
func GetRequestDuration(ctx context.Context) int64 {
	if start, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return time.Since(start).Milliseconds()
	}
	return 0
}
