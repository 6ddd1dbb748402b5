// internal/category/domain.go
package category

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength is the longest accepted name, in characters, after trimming.
const MaxNameLength = 255

// ClassName is the informational tag written into every persisted record.
const ClassName = "Category"

// Category is a named, optionally described grouping that can be switched on and off.
type Category struct {
	id          string
	name        string
	description string
	isActive    bool
	events      []Event
}

// Record is the flat persisted shape of a Category.
type Record struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
	ClassName   string `json:"class_name"`
}

// New creates a brand-new category with a fresh id and records CategoryCreated.
func New(name, description string, isActive bool) (*Category, error) {
	trimmed, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	c := &Category{
		id:          uuid.NewString(),
		name:        trimmed,
		description: description,
		isActive:    isActive,
	}
	c.record(Created{
		Name:        c.name,
		Description: c.description,
		IsActive:    c.isActive,
	})

	return c, nil
}

// Rehydrate rebuilds an existing category without recording any event.
func Rehydrate(id, name, description string, isActive bool) (*Category, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "id", Message: "is required"}
	}

	trimmed, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	return &Category{
		id:          id,
		name:        trimmed,
		description: description,
		isActive:    isActive,
	}, nil
}

// FromRecord rebuilds a category from its persisted shape.
func FromRecord(r Record) (*Category, error) {
	return Rehydrate(r.ID, r.Name, r.Description, r.IsActive)
}

// ValidateName trims name and checks it against the naming rules.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", &ValidationError{Field: "name", Message: "is required"}
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("must be at most %d characters", MaxNameLength),
		}
	}
	return trimmed, nil
}

func (c *Category) ID() string          { return c.id }
func (c *Category) Name() string        { return c.name }
func (c *Category) Description() string { return c.description }
func (c *Category) IsActive() bool      { return c.isActive }

// Update changes name and/or description. A nil argument leaves the field
// alone; an empty description is a real value. Values are compared before
// trimming, so "Books " against a stored "Books" still counts as a change.
func (c *Category) Update(name, description *string) error {
	newName, newDescription := c.name, c.description
	changed := false

	if name != nil && *name != "" && *name != c.name {
		trimmed, err := ValidateName(*name)
		if err != nil {
			return err
		}
		newName = trimmed
		changed = true
	}

	if description != nil && *description != c.description {
		newDescription = strings.TrimSpace(*description)
		changed = true
	}

	if !changed {
		return nil
	}

	oldName, oldDescription := c.name, c.description
	c.name, c.description = newName, newDescription
	c.record(Updated{
		OldName:        oldName,
		NewName:        c.name,
		OldDescription: oldDescription,
		NewDescription: c.description,
	})

	return nil
}

// Activate switches the category on. No-op when already active.
func (c *Category) Activate() {
	if c.isActive {
		return
	}
	c.isActive = true
	c.record(Activated{})
}

// Deactivate switches the category off. No-op when already inactive.
func (c *Category) Deactivate() {
	if !c.isActive {
		return
	}
	c.isActive = false
	c.record(Deactivated{})
}

// Toggle flips the active flag.
func (c *Category) Toggle() {
	if c.isActive {
		c.Deactivate()
		return
	}
	c.Activate()
}

// ToRecord returns the persisted shape of the category.
func (c *Category) ToRecord() Record {
	return Record{
		ID:          c.id,
		Name:        c.name,
		Description: c.description,
		IsActive:    c.isActive,
		ClassName:   ClassName,
	}
}

// snapshot copies the state fields into a detached category without events.
func (c *Category) snapshot() *Category {
	return &Category{
		id:          c.id,
		name:        c.name,
		description: c.description,
		isActive:    c.isActive,
	}
}

// PullEvents returns the buffered events in emission order and clears the buffer.
func (c *Category) PullEvents() []Event {
	events := c.events
	c.events = nil
	if events == nil {
		return []Event{}
	}
	return events
}

// PendingEvents reports how many events are waiting to be pulled.
func (c *Category) PendingEvents() int {
	return len(c.events)
}

func (c *Category) record(p Payload) {
	c.events = append(c.events, newEvent(c.id, p))
}
