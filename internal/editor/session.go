// Package editor holds the client-side editing session: the selected
// template, its unsaved draft and whether the draft came from a conversion.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"templateapi/internal/conversion"
	"templateapi/internal/model"
)

// DownloadName is the filename offered for a converted draft.
const DownloadName = "converted_template.tex"

var (
	ErrNoTemplate        = errors.New("no template selected")
	ErrInvalidTransition = errors.New("action not allowed in current state")
	ErrStaleResponse     = errors.New("stale conversion response")
)

// State is the session state tag.
type State int

const (
	Empty State = iota
	Viewing
	Editing
	AiDraft
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	case AiDraft:
		return "ai_draft"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend is the subset of the template service a session drives.
type Backend interface {
	Save(ctx context.Context, id, content string) (*model.Template, error)
	Convert(ctx context.Context, content string) (*model.ConvertResult, error)
}

// Token correlates a conversion request with its response.
type Token uint64

// Session is safe for concurrent use. Backend calls are made without
// holding the lock.
type Session struct {
	backend Backend

	mu          sync.Mutex
	state       State
	tpl         *model.Template
	draft       string
	suggestions []model.Suggestion
	token       Token
}

func NewSession(b Backend) *Session {
	return &Session{backend: b}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Template returns a copy of the selected template, or nil.
func (s *Session) Template() *model.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tpl == nil {
		return nil
	}
	cp := *s.tpl
	return &cp
}

// Suggestions returns the suggestions of the last suggestion-style
// conversion for the current template.
func (s *Session) Suggestions() []model.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Suggestion(nil), s.suggestions...)
}

func (s *Session) CanConvert() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Viewing || s.state == Editing
}

func (s *Session) CanDownload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == AiDraft
}

// Select loads tpl from any state. An unsaved draft is discarded.
func (s *Session) Select(tpl *model.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tpl
	s.tpl = &cp
	s.draft = tpl.Content
	s.suggestions = nil
	s.state = Viewing
	s.token++
}

// Edit replaces the draft with text and clears the AI flag.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Empty {
		return ErrNoTemplate
	}
	s.draft = text
	s.state = Editing
	s.token++
	return nil
}

// Save persists the draft. On failure the session is left as it was.
func (s *Session) Save(ctx context.Context) (*model.Template, error) {
	s.mu.Lock()
	if s.state == Empty {
		s.mu.Unlock()
		return nil, ErrNoTemplate
	}
	id, draft := s.tpl.ID, s.draft
	s.mu.Unlock()

	saved, err := s.backend.Save(ctx, id, draft)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tpl == nil || s.tpl.ID != saved.ID {
		// another template was selected meanwhile
		return saved, nil
	}
	cp := *saved
	s.tpl = &cp
	if s.draft == draft {
		s.draft = saved.Content
		s.state = Viewing
	}
	s.token++
	return saved, nil
}

// BeginConvert snapshots the draft and returns the token the matching
// CompleteConvert must present.
func (s *Session) BeginConvert() (Token, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Empty:
		return 0, "", ErrNoTemplate
	case AiDraft:
		return 0, "", fmt.Errorf("%w: convert from %s", ErrInvalidTransition, s.state)
	}
	s.token++
	return s.token, s.draft, nil
}

// CompleteConvert applies a conversion response. Responses whose token is
// no longer current are dropped with ErrStaleResponse. A failed conversion
// leaves the state and draft untouched and returns convErr; so does a nil
// result, reported as conversion.ErrMalformedResponse.
func (s *Session) CompleteConvert(tok Token, res *model.ConvertResult, convErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok != s.token {
		return ErrStaleResponse
	}
	if convErr != nil {
		return convErr
	}
	if res == nil {
		return fmt.Errorf("%w: empty result", conversion.ErrMalformedResponse)
	}
	if res.IsReplacement() {
		s.draft = res.Content()
		s.suggestions = nil
		s.state = AiDraft
		return nil
	}
	s.suggestions = append([]model.Suggestion(nil), res.Suggestions...)
	return nil
}

// Convert runs a full conversion round trip through the backend.
func (s *Session) Convert(ctx context.Context) error {
	tok, draft, err := s.BeginConvert()
	if err != nil {
		return err
	}
	res, err := s.backend.Convert(ctx, draft)
	return s.CompleteConvert(tok, res, err)
}

// Download returns the converted draft under DownloadName.
func (s *Session) Download() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AiDraft {
		return "", "", fmt.Errorf("%w: download from %s", ErrInvalidTransition, s.state)
	}
	return DownloadName, s.draft, nil
}
