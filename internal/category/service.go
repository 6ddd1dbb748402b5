// internal/category/service.go
package category

import (
	"context"
	"encoding/json"
	"time"
)

// Service defines the operations the web layer performs on categories.
type Service interface {
	Create(ctx context.Context, name, description string) (*Category, error)
	Get(ctx context.Context, id string) (*Category, bool)
	List(ctx context.Context) []*Category
	Update(ctx context.Context, id string, name, description *string) error
	Toggle(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]HistoryEntry, error)
}

// Repository loads and saves the whole collection at once.
type Repository interface {
	LoadAll(ctx context.Context) (*Collection, error)
	SaveAll(ctx context.Context, col *Collection) error
}

// Publisher receives domain events after they have been drained from their entity.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// HistoryReader is implemented by publishers that keep a readable journal.
type HistoryReader interface {
	History(ctx context.Context, categoryID string) ([]HistoryEntry, error)
}

// HistoryEntry is one journaled event of a category.
type HistoryEntry struct {
	Version    int             `json:"version"`
	Kind       Kind            `json:"kind"`
	RecordedAt time.Time       `json:"recorded_at"`
	Data       json.RawMessage `json:"data"`
}
