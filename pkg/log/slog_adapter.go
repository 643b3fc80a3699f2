package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as one "protocol" record.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.String("msg_type", m.Type.String()),
			slog.Uint64("service", uint64(m.Service)),
			slog.Uint64("instance", uint64(m.Instance)),
			slog.Uint64("method", uint64(m.Method)),
			slog.String("outcome", m.Outcome.String()),
		)
		if m.Client != 0 || m.Session != 0 {
			attrs = append(attrs,
				slog.Uint64("client", uint64(m.Client)),
				slog.Uint64("session", uint64(m.Session)),
			)
		}
		if m.Receivers > 0 {
			attrs = append(attrs, slog.Int("receivers", m.Receivers))
		}
		if m.Reason != "" {
			attrs = append(attrs, slog.String("reason", m.Reason))
		}
	case event.Entry != nil:
		e := event.Entry
		attrs = append(attrs,
			slog.String("entry", e.Type),
			slog.Uint64("service", uint64(e.Service)),
			slog.Uint64("instance", uint64(e.Instance)),
		)
		if e.Eventgroup != 0 {
			attrs = append(attrs, slog.Uint64("eventgroup", uint64(e.Eventgroup)))
		}
		if e.TTL > 0 {
			attrs = append(attrs, slog.Duration("ttl", e.TTL))
		}
		if e.RequestInitial {
			attrs = append(attrs, slog.Bool("request_initial", true))
		}
	case event.StateChange != nil:
		s := event.StateChange
		attrs = append(attrs,
			slog.String("entity", s.Entity.String()),
			slog.String("key", s.Key),
			slog.String("old_state", s.OldState),
			slog.String("new_state", s.NewState),
		)
		if s.Reason != "" {
			attrs = append(attrs, slog.String("reason", s.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
