package model

import "encoding/json"

// Suggestion is a single non-destructive edit proposed by a conversion.
type Suggestion struct {
	Original   string `json:"original"`
	Suggestion string `json:"suggestion"`
	Kind       string `json:"kind"`
}

// ConvertResult is the outcome of one conversion. Exactly one of the two
// modes is populated: a full replacement text, or a list of suggestions.
type ConvertResult struct {
	ConvertedContent *string      `json:"convertedContent,omitempty"`
	Suggestions      []Suggestion `json:"suggestions,omitempty"`
}

// Replacement builds a replacement-mode result.
func Replacement(content string) *ConvertResult {
	return &ConvertResult{ConvertedContent: &content}
}

// IsReplacement reports whether the result carries a full replacement text.
func (r *ConvertResult) IsReplacement() bool {
	return r != nil && r.ConvertedContent != nil
}

// Content returns the replacement text, or "" for suggestion-mode results.
func (r *ConvertResult) Content() string {
	if !r.IsReplacement() {
		return ""
	}
	return *r.ConvertedContent
}

// MarshalJSON emits only the populated mode so clients can switch on the
// presence of "convertedContent" or "suggestions".
func (r ConvertResult) MarshalJSON() ([]byte, error) {
	if r.ConvertedContent != nil {
		return json.Marshal(struct {
			ConvertedContent string `json:"convertedContent"`
		}{*r.ConvertedContent})
	}
	suggestions := r.Suggestions
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	return json.Marshal(struct {
		Suggestions []Suggestion `json:"suggestions"`
	}{suggestions})
}
