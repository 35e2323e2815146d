package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/g0da-s/vettd/pkg/database"
)

// RunLogHandler is a slog.Handler that mirrors records into the
// run_logs table whenever a run_id attribute is bound, in addition to
// the wrapped console handler. Records without a run_id only go to the
// console.
type RunLogHandler struct {
	inner slog.Handler
	logs  *database.LogStore
	runID uuid.UUID
	attrs []slog.Attr
}

func NewRunLogHandler(inner slog.Handler, logs *database.LogStore) *RunLogHandler {
	return &RunLogHandler{inner: inner, logs: logs}
}

func (h *RunLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RunLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	runID := h.runID
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		meta[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		if id, ok := runIDValue(a); ok {
			runID = id
			return true
		}
		meta[a.Key] = a.Value.Any()
		return true
	})
	if runID == uuid.Nil {
		return nil
	}
	delete(meta, "run_id")

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Background context so log rows persist even when the run context
	// has been cancelled.
	return h.logs.Insert(context.Background(), runID, r.Time, r.Level.String(), r.Message, metaJSON)
}

func (h *RunLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	for _, a := range attrs {
		if id, ok := runIDValue(a); ok {
			clone.runID = id
		}
	}
	return &clone
}

func (h *RunLogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	return &clone
}

func runIDValue(a slog.Attr) (uuid.UUID, bool) {
	if a.Key != "run_id" {
		return uuid.Nil, false
	}
	switch v := a.Value.Any().(type) {
	case uuid.UUID:
		return v, true
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}
