// internal/eventbus/log.go
package eventbus

import (
	"context"
	"log/slog"

	"categoryhub/internal/category"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, events []category.Event) error {
	for _, e := range events {
		s.logger.InfoContext(ctx, "domain event",
			"event_id", e.ID,
			"kind", string(e.Kind()),
			"category_id", e.CategoryID,
			"occurred_on", e.OccurredOn,
			"payload", e.Payload,
		)
	}
	return nil
}
