// internal/category/implementation.go
package category

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultPublishTimeout = 5 * time.Second

// service implements the Service interface over an in-memory collection that
// is written back to the repository after every mutation. Callers only ever
// see snapshots; the live entities never leave s.mu.
type service struct {
	mu         sync.Mutex
	repo       Repository
	categories *Collection
	// orphaned holds events pulled from deleted categories until the next save.
	orphaned []Event
	// outbox holds saved events waiting to be published. Guarded by mu.
	outbox []Event

	// publishMu keeps batches in outbox order without holding mu.
	publishMu      sync.Mutex
	publisher      Publisher
	publishTimeout time.Duration
	logger         *slog.Logger

	published metric.Int64Counter
	failed    metric.Int64Counter
}

// NewService loads the collection from repo and returns a ready service.
// publisher may be nil, in which case drained events are dropped.
func NewService(ctx context.Context, repo Repository, publisher Publisher, logger *slog.Logger) (Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	categories, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	meter := otel.Meter("categoryhub/category")
	published, err := meter.Int64Counter("category.events.published",
		metric.WithDescription("Domain events handed to the event bus"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	failed, err := meter.Int64Counter("category.events.publish_failures",
		metric.WithDescription("Event batches the event bus rejected"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	logger.Info("categories loaded", "count", categories.Len())

	return &service{
		repo:           repo,
		categories:     categories,
		publisher:      publisher,
		publishTimeout: defaultPublishTimeout,
		logger:         logger,
		published:      published,
		failed:         failed,
	}, nil
}

// Create adds a new category and persists the collection.
func (s *service) Create(ctx context.Context, name, description string) (*Category, error) {
	c, err := New(name, description, true)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.categories.Put(c)
	err = s.save(ctx)
	view := c.snapshot()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.flush(ctx)

	s.logger.Info("category created", "id", view.ID(), "name", view.Name())
	return view, nil
}

// Get returns a snapshot of the category with the given id.
func (s *service) Get(ctx context.Context, id string) (*Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories.Get(id)
	if !ok {
		return nil, false
	}
	return c.snapshot(), true
}

// List returns snapshots of every category in insertion order.
func (s *service) List(ctx context.Context) []*Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.categories.All()
	out := make([]*Category, 0, len(all))
	for _, c := range all {
		out = append(out, c.snapshot())
	}
	return out
}

// Update changes name and/or description of an existing category. Unknown ids are ignored.
func (s *service) Update(ctx context.Context, id string, name, description *string) error {
	return s.mutate(ctx, id, "update", func(c *Category) error {
		return c.Update(name, description)
	})
}

// Toggle flips the active flag of an existing category. Unknown ids are ignored.
func (s *service) Toggle(ctx context.Context, id string) error {
	return s.mutate(ctx, id, "toggle", func(c *Category) error {
		c.Toggle()
		return nil
	})
}

func (s *service) Activate(ctx context.Context, id string) error {
	return s.mutate(ctx, id, "activate", func(c *Category) error {
		c.Activate()
		return nil
	})
}

func (s *service) Deactivate(ctx context.Context, id string) error {
	return s.mutate(ctx, id, "deactivate", func(c *Category) error {
		c.Deactivate()
		return nil
	})
}

// Delete removes a category from the collection. There is no deletion event,
// but events the category still buffers go out with the next successful save.
func (s *service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.categories.Get(id)
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("delete of unknown category ignored", "id", id)
		return nil
	}
	s.orphaned = append(s.orphaned, c.PullEvents()...)
	s.categories.Delete(id)
	err := s.save(ctx)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.flush(ctx)

	s.logger.Info("category deleted", "id", id)
	return nil
}

// History returns the journaled events of a category when the publisher keeps a journal.
func (s *service) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	reader, ok := s.publisher.(HistoryReader)
	if !ok {
		return nil, ErrHistoryUnavailable
	}
	return reader.History(ctx, id)
}

func (s *service) mutate(ctx context.Context, id, op string, fn func(*Category) error) error {
	s.mu.Lock()
	c, ok := s.categories.Get(id)
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("mutation of unknown category ignored", "op", op, "id", id)
		return nil
	}
	err := fn(c)
	if err == nil {
		err = s.save(ctx)
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.flush(ctx)
	return nil
}

// save writes the collection and, only once that succeeded, moves every
// buffered event into the outbox in emission order. Callers must hold s.mu.
func (s *service) save(ctx context.Context) error {
	if err := s.repo.SaveAll(ctx, s.categories); err != nil {
		s.logger.Error("failed to save categories", "error", err)
		return err
	}

	events := s.orphaned
	s.orphaned = nil
	for _, c := range s.categories.All() {
		if c.PendingEvents() > 0 {
			events = append(events, c.PullEvents()...)
		}
	}
	if len(events) == 0 || s.publisher == nil {
		return nil
	}

	// Per category the order is already right; the stable sort interleaves categories.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredOn.Before(events[j].OccurredOn)
	})
	s.outbox = append(s.outbox, events...)
	return nil
}

// flush publishes whatever sits in the outbox. It runs without s.mu and under
// its own deadline, detached from request cancellation.
func (s *service) flush(ctx context.Context) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	events := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	if len(events) == 0 || s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, events); err != nil {
		s.failed.Add(ctx, 1)
		s.logger.Warn("failed to publish category events", "count", len(events), "error", err)
		return
	}
	for _, e := range events {
		s.published.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Kind()))))
	}
}
