// Package lorem is an offline conversion.Transformer for development and
// demos. It needs no credential and never calls the network.
package lorem

import (
	"context"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	"templateapi/internal/conversion"
	"templateapi/internal/model"
)

// Name identifies this provider in configuration and metrics.
const Name = "lorem"

const maxSuggestions = 3

// Transformer appends a lorem ipsum LaTeX comment in rewrite mode, or
// proposes lorem replacements for the first lines of the document in
// suggest mode.
type Transformer struct {
	mu    sync.Mutex
	gen   *loremgen.Lorem
	mode  conversion.Mode
	delay time.Duration
}

var _ conversion.Transformer = (*Transformer)(nil)

// New creates a lorem Transformer. delay simulates provider latency.
func New(mode conversion.Mode, delay time.Duration) *Transformer {
	return &Transformer{
		gen:   loremgen.New(),
		mode:  mode,
		delay: delay,
	}
}

func (t *Transformer) Transform(ctx context.Context, text string) (*model.ConvertResult, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode == conversion.ModeSuggest {
		return &model.ConvertResult{Suggestions: t.suggest(text)}, nil
	}
	out := strings.TrimRight(text, "\n") + "\n% " + t.gen.Sentence(4, 8) + "\n"
	return model.Replacement(out), nil
}

func (t *Transformer) suggest(text string) []model.Suggestion {
	out := make([]model.Suggestion, 0, maxSuggestions)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		out = append(out, model.Suggestion{
			Original:   line,
			Suggestion: t.gen.Sentence(3, 6),
			Kind:       "style",
		})
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
