// internal/category/events.go
package category

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the variant of a domain event.
type Kind string

const (
	KindCreated     Kind = "CategoryCreated"
	KindUpdated     Kind = "CategoryUpdated"
	KindActivated   Kind = "CategoryActivated"
	KindDeactivated Kind = "CategoryDeactivated"
)

// Payload is the kind-specific part of an Event.
type Payload interface {
	Kind() Kind
}

// Event is an immutable record of something that happened to a Category.
type Event struct {
	ID         string    `json:"event_id"`
	OccurredOn time.Time `json:"occurred_on"`
	CategoryID string    `json:"category_id"`
	Payload    Payload   `json:"payload"`
}

// Kind reports the variant carried by the event.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Created is the payload of a CategoryCreated event.
type Created struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

func (Created) Kind() Kind { return KindCreated }

// Updated is the payload of a CategoryUpdated event. Both fields are always
// carried, unchanged ones with old == new.
type Updated struct {
	OldName        string `json:"old_name"`
	NewName        string `json:"new_name"`
	OldDescription string `json:"old_description"`
	NewDescription string `json:"new_description"`
}

func (Updated) Kind() Kind { return KindUpdated }

// Activated is the payload of a CategoryActivated event.
type Activated struct{}

func (Activated) Kind() Kind { return KindActivated }

// Deactivated is the payload of a CategoryDeactivated event.
type Deactivated struct{}

func (Deactivated) Kind() Kind { return KindDeactivated }

func newEvent(categoryID string, payload Payload) Event {
	return Event{
		ID:         uuid.NewString(),
		OccurredOn: time.Now().UTC(),
		CategoryID: categoryID,
		Payload:    payload,
	}
}
