package repository

import (
	"context"
	"errors"
	"time"

	"templateapi/internal/model"
)

var (
	// ErrNotFound is returned when no template matches the given ID.
	ErrNotFound = errors.New("template not found")
	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("template store closed")
)

// TemplateRepository is the persistent collection of templates.
// No business logic here, strictly persistence operations. Every write is a
// single atomic statement: readers never see content without its version.
type TemplateRepository interface {
	// Create inserts a new template and returns the stored record.
	// The caller provides ID and timestamps.
	Create(ctx context.Context, t *model.Template) (*model.Template, error)

	// FindByID returns a template by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Template, error)

	// List returns every template, newest first.
	List(ctx context.Context) ([]model.Template, error)

	// SaveContent sets content, appends {content, at} to versions and sets
	// updated_at in one unit. Returns ErrNotFound for an unknown ID.
	SaveContent(ctx context.Context, id, content string, at time.Time) (*model.Template, error)

	// AppendSuggestions appends to ai_suggestions without touching content
	// or versions. Returns ErrNotFound for an unknown ID.
	AppendSuggestions(ctx context.Context, id string, suggestions []model.AISuggestion, at time.Time) (*model.Template, error)

	// PingContext reports whether the backend is reachable.
	PingContext(ctx context.Context) error

	// Close releases the backend. Further calls fail.
	Close() error
}
