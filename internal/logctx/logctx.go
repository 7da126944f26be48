package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and enriches every record with session
// and action attributes carried on the context, when present.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
		))
	}

	if ad, ok := ctx.Value(actionDataKey{}).(*ActionData); ok {
		r.AddAttrs(slog.Group("action",
			slog.String("kind", ad.Kind),
			slog.String("client_id", ad.ClientID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type sessionDataKey struct{}

type SessionData struct {
	SessionID string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type actionDataKey struct{}

type ActionData struct {
	Kind     string
	ClientID string
}

func WithActionData(ctx context.Context, data *ActionData) context.Context {
	return context.WithValue(ctx, actionDataKey{}, data)
}
