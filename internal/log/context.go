package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	httpRequestKey ctxKey = iota
	sessionKey
)

// ContextWithRequestID attaches the id the API middleware assigned to an
// inbound HTTP request.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, httpRequestKey, id)
}

// ContextWithSessionID attaches a lifecycle session id to the context of a
// remote call.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// WithContext adds http_request_id and session_id to l when ctx carries them.
func WithContext(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	rid, _ := ctx.Value(httpRequestKey).(string)
	sid, _ := ctx.Value(sessionKey).(string)
	if rid == "" && sid == "" {
		return l
	}
	b := l.With()
	if rid != "" {
		b = b.Str("http_request_id", rid)
	}
	if sid != "" {
		b = b.Str("session_id", sid)
	}
	return b.Logger()
}
