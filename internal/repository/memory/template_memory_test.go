package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templateapi/internal/model"
	"templateapi/internal/repository"
)

func seed(t *testing.T, s *TemplateMemory, id string) *model.Template {
	t.Helper()
	now := time.Now().UTC()
	tpl, err := s.Create(context.Background(), &model.Template{ID: id, Title: id + ".tex", Content: "x", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	return tpl
}

func TestTemplateMemory_CreateAndFind(t *testing.T) {
	s := NewTemplateMemory()
	ctx := context.Background()

	created := seed(t, s, "a")
	assert.Empty(t, created.Versions)
	assert.NotNil(t, created.AISuggestions)

	got, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)

	_, err = s.Create(ctx, &model.Template{ID: "a", Title: "dup"})
	assert.Error(t, err)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTemplateMemory_ListNewestFirst(t *testing.T) {
	s := NewTemplateMemory()
	seed(t, s, "first")
	seed(t, s, "second")

	items, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].ID)
	assert.Equal(t, "first", items[1].ID)
}

func TestTemplateMemory_SaveContent(t *testing.T) {
	s := NewTemplateMemory()
	ctx := context.Background()
	seed(t, s, "a")

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tpl, err := s.SaveContent(ctx, "a", "v1", at)
	require.NoError(t, err)
	assert.Equal(t, "v1", tpl.Content)
	assert.Equal(t, []model.Version{{Content: "v1", Timestamp: at}}, tpl.Versions)
	assert.Equal(t, at, tpl.UpdatedAt)

	_, err = s.SaveContent(ctx, "missing", "v1", at)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTemplateMemory_ReturnedCopiesAreIsolated(t *testing.T) {
	s := NewTemplateMemory()
	ctx := context.Background()
	seed(t, s, "a")

	tpl, err := s.SaveContent(ctx, "a", "v1", time.Now())
	require.NoError(t, err)
	tpl.Versions[0].Content = "tampered"
	tpl.Content = "tampered"

	got, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Content)
	assert.Equal(t, "v1", got.Versions[0].Content)
}

func TestTemplateMemory_AppendSuggestions(t *testing.T) {
	s := NewTemplateMemory()
	ctx := context.Background()
	seed(t, s, "a")

	at := time.Now().UTC()
	_, err := s.AppendSuggestions(ctx, "a", []model.AISuggestion{{Original: "a", Suggestion: "b", Kind: "style", Timestamp: at}}, at)
	require.NoError(t, err)
	tpl, err := s.AppendSuggestions(ctx, "a", []model.AISuggestion{{Original: "c", Suggestion: "d", Kind: "grammar", Timestamp: at}}, at)
	require.NoError(t, err)

	require.Len(t, tpl.AISuggestions, 2)
	assert.Equal(t, "style", tpl.AISuggestions[0].Kind)
	assert.Equal(t, "grammar", tpl.AISuggestions[1].Kind)
	assert.Equal(t, "x", tpl.Content)
	assert.Empty(t, tpl.Versions)
}

func TestTemplateMemory_ConcurrentSaves(t *testing.T) {
	s := NewTemplateMemory()
	ctx := context.Background()
	seed(t, s, "a")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SaveContent(ctx, "a", fmt.Sprintf("v%d", i), time.Now())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tpl, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, tpl.Versions, 50)
	last, _ := tpl.LatestVersion()
	assert.Equal(t, tpl.Content, last.Content)
}

func TestTemplateMemory_Close(t *testing.T) {
	s := NewTemplateMemory()
	ctx := context.Background()
	seed(t, s, "a")

	require.NoError(t, s.PingContext(ctx))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.PingContext(ctx), repository.ErrClosed)
	_, err := s.List(ctx)
	assert.ErrorIs(t, err, repository.ErrClosed)
	_, err = s.SaveContent(ctx, "a", "v", time.Now())
	assert.ErrorIs(t, err, repository.ErrClosed)
}
