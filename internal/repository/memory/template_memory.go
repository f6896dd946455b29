package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"templateapi/internal/model"
	"templateapi/internal/repository"
)

// TemplateMemory is an in-process implementation of repository.TemplateRepository.
// It is safe for concurrent use; each write happens under one lock so the
// content/version pair is never observed half-applied.
type TemplateMemory struct {
	mu     sync.RWMutex
	docs   map[string]*model.Template
	order  []string
	closed bool
}

// NewTemplateMemory returns an empty store.
func NewTemplateMemory() *TemplateMemory {
	return &TemplateMemory{docs: make(map[string]*model.Template)}
}

var _ repository.TemplateRepository = (*TemplateMemory)(nil)

func (s *TemplateMemory) Create(_ context.Context, t *model.Template) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, repository.ErrClosed
	}
	if _, exists := s.docs[t.ID]; exists {
		return nil, fmt.Errorf("template %q already exists", t.ID)
	}
	stored := &model.Template{
		ID:            t.ID,
		Title:         t.Title,
		Content:       t.Content,
		SourcePath:    t.SourcePath,
		Versions:      []model.Version{},
		AISuggestions: []model.AISuggestion{},
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	s.docs[t.ID] = stored
	s.order = append(s.order, t.ID)
	return clone(stored), nil
}

func (s *TemplateMemory) FindByID(_ context.Context, id string) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, repository.ErrClosed
	}
	t, ok := s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(t), nil
}

func (s *TemplateMemory) List(_ context.Context) ([]model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, repository.ErrClosed
	}
	result := make([]model.Template, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		result = append(result, *clone(s.docs[s.order[i]]))
	}
	return result, nil
}

func (s *TemplateMemory) SaveContent(_ context.Context, id, content string, at time.Time) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, repository.ErrClosed
	}
	t, ok := s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.Content = content
	t.Versions = append(t.Versions, model.Version{Content: content, Timestamp: at})
	t.UpdatedAt = at
	return clone(t), nil
}

func (s *TemplateMemory) AppendSuggestions(_ context.Context, id string, suggestions []model.AISuggestion, at time.Time) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, repository.ErrClosed
	}
	t, ok := s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.AISuggestions = append(t.AISuggestions, suggestions...)
	t.UpdatedAt = at
	return clone(t), nil
}

func (s *TemplateMemory) PingContext(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return repository.ErrClosed
	}
	return nil
}

func (s *TemplateMemory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// clone copies the slices so callers cannot mutate stored history.
func clone(t *model.Template) *model.Template {
	cp := *t
	cp.Versions = append(make([]model.Version, 0, len(t.Versions)), t.Versions...)
	cp.AISuggestions = append(make([]model.AISuggestion, 0, len(t.AISuggestions)), t.AISuggestions...)
	return &cp
}
