package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextKey string

const entryKey = contextKey("logEntry")

// WithRequestID returns a context whose logger tags every line with request_id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, entryKey, GetLogger().WithField("request_id", requestID))
}

// FromContext returns the request logger stored in ctx, or the shared logger.
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(entryKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(GetLogger())
}
