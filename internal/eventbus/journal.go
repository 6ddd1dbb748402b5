// internal/eventbus/journal.go
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"categoryhub/internal/category"
	"categoryhub/pkg/eventstore"

	"github.com/google/uuid"
)

const aggregateType = "category"

// journal is the part of eventstore.EventStore the sink needs.
type journal interface {
	Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, events []eventstore.Event) (int, error)
	LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]eventstore.Event, error)
}

// JournalSink appends events to the Postgres journal, one aggregate per category.
type JournalSink struct {
	store journal
}

func NewJournalSink(store journal) *JournalSink {
	return &JournalSink{store: store}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Publish(ctx context.Context, events []category.Event) error {
	var order []string
	batches := make(map[string][]eventstore.Event)

	for _, e := range events {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode payload of %s: %w", e.ID, err)
		}
		if _, ok := batches[e.CategoryID]; !ok {
			order = append(order, e.CategoryID)
		}
		batches[e.CategoryID] = append(batches[e.CategoryID], eventstore.Event{
			EventType: string(e.Kind()),
			EventData: data,
			Metadata: map[string]string{
				"event_id":    e.ID,
				"occurred_on": e.OccurredOn.Format(time.RFC3339Nano),
			},
		})
	}

	for _, categoryID := range order {
		aggregateID, err := uuid.Parse(categoryID)
		if err != nil {
			return fmt.Errorf("category id %q is not a uuid: %w", categoryID, err)
		}
		if _, err := s.store.Append(ctx, aggregateID, aggregateType, batches[categoryID]); err != nil {
			return fmt.Errorf("append events of %s: %w", categoryID, err)
		}
	}

	return nil
}

// History returns the journaled events of a category, oldest first.
func (s *JournalSink) History(ctx context.Context, categoryID string) ([]category.HistoryEntry, error) {
	aggregateID, err := uuid.Parse(categoryID)
	if err != nil {
		return []category.HistoryEntry{}, nil
	}

	events, err := s.store.LoadEvents(ctx, aggregateID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load events of %s: %w", categoryID, err)
	}

	entries := make([]category.HistoryEntry, 0, len(events))
	for _, e := range events {
		recordedAt := e.CreatedAt
		if occurred, err := time.Parse(time.RFC3339Nano, e.Metadata["occurred_on"]); err == nil {
			recordedAt = occurred
		}
		entries = append(entries, category.HistoryEntry{
			Version:    e.Version,
			Kind:       category.Kind(e.EventType),
			RecordedAt: recordedAt,
			Data:       e.EventData,
		})
	}
	return entries, nil
}
