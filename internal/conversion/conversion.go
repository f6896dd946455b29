// Package conversion defines the contract for the external generative text
// capability and the parsing shared by its implementations.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"templateapi/internal/model"
)

// ErrMalformedResponse is returned when a provider answer carries neither a
// "convertedContent" string nor a "suggestions" field.
var ErrMalformedResponse = errors.New("conversion response missing result field")

// Transformer is a one-shot text transform. Implementations hold no state
// visible to the caller and make exactly one attempt per call.
type Transformer interface {
	Transform(ctx context.Context, text string) (*model.ConvertResult, error)
}

// Func adapts a plain function to Transformer.
type Func func(ctx context.Context, text string) (*model.ConvertResult, error)

// Transform calls f.
func (f Func) Transform(ctx context.Context, text string) (*model.ConvertResult, error) {
	return f(ctx, text)
}

// Mode selects which response shape a provider is asked for.
type Mode string

const (
	ModeRewrite Mode = "rewrite"
	ModeSuggest Mode = "suggest"
)

// ParseMode maps configuration text to a Mode; unknown values rewrite.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeSuggest {
		return ModeSuggest
	}
	return ModeRewrite
}

// DefaultKind labels suggestions the provider did not classify.
const DefaultKind = "improvement"

const rewritePrompt = `You improve LaTeX templates. Rewrite the document the user sends so that it is clearer and better structured while keeping it valid LaTeX and preserving its meaning.
Answer with a single JSON object and nothing else: {"convertedContent": "<the full rewritten document>"}`

const suggestPrompt = `You review LaTeX templates. Propose targeted improvements to the document the user sends without rewriting it.
Answer with a single JSON object and nothing else: {"suggestions": [{"original": "<exact excerpt>", "suggestion": "<replacement>", "kind": "<grammar|style|structure|latex>"}]}`

// SystemPrompt returns the instructions sent to a provider for mode.
func SystemPrompt(mode Mode) string {
	if mode == ModeSuggest {
		return suggestPrompt
	}
	return rewritePrompt
}

// ParseResponse extracts a ConvertResult from a provider answer. The answer
// may wrap the JSON object in prose or a fenced code block. When both fields
// are present, convertedContent wins. Plain-text suggestions, alone or as
// array items, are kept as suggestions against the whole input.
func ParseResponse(input, raw string) (*model.ConvertResult, error) {
	doc := extractObject(raw)
	if doc == "" {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrMalformedResponse)
	}

	if v := gjson.Get(doc, "convertedContent"); v.Type == gjson.String {
		return model.Replacement(v.String()), nil
	}

	v := gjson.Get(doc, "suggestions")
	switch {
	case v.IsArray():
		items := v.Array()
		out := make([]model.Suggestion, 0, len(items))
		for _, item := range items {
			if s, ok := suggestionOf(input, item); ok {
				out = append(out, s)
			}
		}
		if len(items) > 0 && len(out) == 0 {
			return nil, fmt.Errorf("%w: no usable suggestion", ErrMalformedResponse)
		}
		return &model.ConvertResult{Suggestions: out}, nil
	case v.Type == gjson.String && v.String() != "":
		s, _ := suggestionOf(input, v)
		return &model.ConvertResult{Suggestions: []model.Suggestion{s}}, nil
	}
	return nil, ErrMalformedResponse
}

func suggestionOf(input string, item gjson.Result) (model.Suggestion, bool) {
	var s model.Suggestion
	switch {
	case item.Type == gjson.String:
		s = model.Suggestion{Original: input, Suggestion: item.String()}
	case item.IsObject():
		s = model.Suggestion{
			Original:   item.Get("original").String(),
			Suggestion: item.Get("suggestion").String(),
			Kind:       item.Get("kind").String(),
		}
	}
	if s.Suggestion == "" {
		return s, false
	}
	if s.Kind == "" {
		s.Kind = DefaultKind
	}
	return s, true
}

// extractObject returns the first span of raw that is a valid JSON object.
// Prose around it may itself contain braces, as LaTeX does.
func extractObject(raw string) string {
	end := strings.LastIndex(raw, "}")
	for start := strings.Index(raw, "{"); start >= 0 && start < end; {
		for j := end; j > start; j = strings.LastIndex(raw[:j], "}") {
			if gjson.Valid(raw[start : j+1]) {
				return raw[start : j+1]
			}
		}
		next := strings.Index(raw[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}
