package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/sqlask/sqlask/internal/config"
)

type ctxKey string

const (
	traceIDKey      ctxKey = "trace_id"
	sessionIDKey    ctxKey = "session_id"
	requestStateKey ctxKey = "request_state"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// ContextWithSessionID binds sessionID to ctx. Inside a request traced by
// TraceMiddleware it is also visible to the outer request's context.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	if state := stateFromContext(ctx); state != nil {
		state.setSessionID(sessionID)
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(sessionIDKey).(string); ok {
		return value
	}
	if state := stateFromContext(ctx); state != nil {
		return state.getSessionID()
	}
	return ""
}
