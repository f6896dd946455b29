package model

import "time"

// Template is a stored markup document together with its save history and
// the suggestions produced by conversions run against it.
// It carries no persistence tags so it can move between the HTTP, service and
// repository layers unchanged.
type Template struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	SourcePath    string         `json:"source_path,omitempty"`
	Versions      []Version      `json:"versions"`
	AISuggestions []AISuggestion `json:"ai_suggestions"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Version is an immutable snapshot of Template content taken at save time.
type Version struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AISuggestion records one suggestion returned by a suggestion-style conversion.
type AISuggestion struct {
	Original   string    `json:"original"`
	Suggestion string    `json:"suggestion"`
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
}

// LatestVersion returns the most recent snapshot, if any.
func (t *Template) LatestVersion() (Version, bool) {
	if len(t.Versions) == 0 {
		return Version{}, false
	}
	return t.Versions[len(t.Versions)-1], true
}
