// internal/eventbus/bus.go
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"categoryhub/internal/category"
)

// Sink receives every batch of category events the bus publishes.
type Sink interface {
	Name() string
	Publish(ctx context.Context, events []category.Event) error
}

// Bus fans event batches out to its sinks in registration order.
type Bus struct {
	sinks  []Sink
	logger *slog.Logger
}

func New(logger *slog.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{sinks: sinks, logger: logger}
}

// Publish hands events to every sink. A failing sink does not stop the
// others; all failures are joined into the returned error.
func (b *Bus) Publish(ctx context.Context, events []category.Event) error {
	var errs []error
	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, events); err != nil {
			b.logger.Warn("sink rejected events", "sink", sink.Name(), "count", len(events), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// History reads from the first sink that keeps a journal.
func (b *Bus) History(ctx context.Context, categoryID string) ([]category.HistoryEntry, error) {
	for _, sink := range b.sinks {
		if reader, ok := sink.(category.HistoryReader); ok {
			return reader.History(ctx, categoryID)
		}
	}
	return nil, category.ErrHistoryUnavailable
}

// Close closes every sink that holds resources.
func (b *Bus) Close() error {
	var errs []error
	for _, sink := range b.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// envelope is the wire shape of an event outside the process.
type envelope struct {
	EventID    string           `json:"event_id"`
	Kind       category.Kind    `json:"kind"`
	CategoryID string           `json:"category_id"`
	OccurredOn time.Time        `json:"occurred_on"`
	Payload    category.Payload `json:"payload"`
}

func encodeEvent(e category.Event) ([]byte, error) {
	data, err := json.Marshal(envelope{
		EventID:    e.ID,
		Kind:       e.Kind(),
		CategoryID: e.CategoryID,
		OccurredOn: e.OccurredOn,
		Payload:    e.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return data, nil
}
