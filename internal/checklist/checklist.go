// Package checklist holds the compliance checklist forest (categories →
// sections → items), its SQLite-backed store, and the snapshot rendering
// that is fed to the model each turn.
package checklist

import (
	"context"
	"errors"
	"time"
)

var (
	ErrItemNotFound = errors.New("checklist item not found")
	ErrEmptyCommit  = errors.New("no mutations to commit")
)

// Item is a single checkable line of a section.
type Item struct {
	ID          int64      `json:"id"`
	SectionID   int64      `json:"section_id"`
	Description string     `json:"description"`
	Completed   bool       `json:"is_completed"`
	Notes       string     `json:"notes,omitempty"`
	CheckedBy   string     `json:"checked_by,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	Order       int        `json:"order"`
}

// Section groups items inside a category.
type Section struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
	Items       []Item `json:"items"`
}

// Category is a vessel type with its own set of sections.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
}

// Mutation is one pending completion-state change produced by a turn.
type Mutation struct {
	ItemID    int64
	Completed bool
	CheckedAt time.Time
}

// ItemUpdate is the direct (non-conversational) update of an item.
// Nil fields are left untouched.
type ItemUpdate struct {
	ID        int64   `json:"id"`
	Completed bool    `json:"is_completed"`
	Notes     *string `json:"notes,omitempty"`
	CheckedBy *string `json:"checked_by,omitempty"`
}

// Store is the checklist persistence collaborator.
type Store interface {
	// Forest returns every category with nested sections and items,
	// ordered by rank at each level.
	Forest(ctx context.Context) ([]Category, error)

	// Item looks up a single item by id. Returns ErrItemNotFound when absent.
	Item(ctx context.Context, id int64) (Item, error)

	// Commit applies all mutations in one transaction. Either every mutation
	// is persisted or none is.
	Commit(ctx context.Context, muts []Mutation) error

	// UpdateItem is the direct CRUD path used by the HTTP surface.
	UpdateItem(ctx context.Context, u ItemUpdate) (Item, error)

	Close() error
}

// Progress counts completed items over the whole forest.
func Progress(forest []Category) (done, total int) {
	for _, c := range forest {
		for _, s := range c.Sections {
			for _, it := range s.Items {
				total++
				if it.Completed {
					done++
				}
			}
		}
	}
	return done, total
}
