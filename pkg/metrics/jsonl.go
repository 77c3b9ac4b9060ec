package metrics

import (
	"context"
	"io"
	"log/slog"
)

// JSONLObserver appends one JSON object per chat event, for offline
// analysis of provider outcomes and turn latency.
type JSONLObserver struct {
	logger *slog.Logger
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	attrs := append([]slog.Attr{slog.Time("at", ev.Time)}, eventAttrs(ev)...)
	o.logger.LogAttrs(context.Background(), slog.LevelInfo, "chat_event", attrs...)
}
