package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"templateapi/internal/conversion"
	"templateapi/internal/logging"
	"templateapi/internal/model"
	"templateapi/internal/repository"
	"templateapi/internal/storage"
)

const maxTitleLength = 255

// TemplateService defines the template use cases. It is the only writer of
// template state.
type TemplateService interface {
	// Ingest decodes an uploaded file and stores it as a new template with
	// empty history. The original bytes are archived when object storage is
	// configured; a failed record write removes the archived object.
	Ingest(ctx context.Context, raw []byte, filename, contentType string) (*model.Template, error)

	// List returns every template, newest first.
	List(ctx context.Context) ([]model.Template, error)

	// Get returns a single template by its ID.
	Get(ctx context.Context, id string) (*model.Template, error)

	// Save replaces the content and appends the matching version as one unit.
	Save(ctx context.Context, id, content string) (*model.Template, error)

	// Convert runs the text through the conversion provider. It never reads
	// or writes the store.
	Convert(ctx context.Context, content string) (*model.ConvertResult, error)

	// ConvertForTemplate converts a draft of an existing template and
	// records suggestion-style results in its AI suggestion history.
	ConvertForTemplate(ctx context.Context, id, content string) (*model.ConvertResult, error)

	// Source streams the archived original upload of a template.
	Source(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error)
}

// Option configures a templateService.
type Option func(*templateService)

// WithStorage enables archiving of uploaded sources.
func WithStorage(s storage.Storage) Option {
	return func(ts *templateService) { ts.store = s }
}

// WithConversionTimeout bounds each provider call. Zero disables the bound.
func WithConversionTimeout(d time.Duration) Option {
	return func(ts *templateService) { ts.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ts *templateService) { ts.log = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(ts *templateService) { ts.now = now }
}

type templateService struct {
	repo    repository.TemplateRepository
	conv    conversion.Transformer
	store   storage.Storage
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// NewTemplateService constructs a new TemplateService.
func NewTemplateService(repo repository.TemplateRepository, conv conversion.Transformer, opts ...Option) TemplateService {
	s := &templateService{
		repo: repo,
		conv: conv,
		log:  logging.Discard(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "template_service")
	return s
}

func (s *templateService) Ingest(ctx context.Context, raw []byte, filename, contentType string) (*model.Template, error) {
	if err := validation.Validate(filename,
		validation.Required,
		validation.Length(1, maxTitleLength),
	); err != nil {
		return nil, fmt.Errorf("%w: filename %v", ErrValidation, err)
	}
	content, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tpl := &model.Template{
		ID:        uuid.NewString(),
		Title:     filename,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.store != nil {
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		info, err := s.store.Put(ctx, storage.SourceKey(tpl.ID, filename), bytes.NewReader(raw), storage.PutObjectOptions{
			Size:        int64(len(raw)),
			ContentType: contentType,
			Metadata: map[string]string{
				"original-filename": filename,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: upload to storage: %w", ErrStoreUnavailable, err)
		}
		tpl.SourcePath = info.Key
	}

	stored, err := s.repo.Create(ctx, tpl)
	if err != nil {
		if tpl.SourcePath != "" {
			if delErr := s.store.Delete(ctx, tpl.SourcePath); delErr != nil {
				s.log.Error("source_rollback_failed", "template_id", tpl.ID, "key", tpl.SourcePath, "error", delErr.Error())
				return nil, fmt.Errorf("%w: db save failed: %v; rollback delete failed: %v", ErrStoreUnavailable, err, delErr)
			}
		}
		return nil, fmt.Errorf("%w: db save failed: %w", ErrStoreUnavailable, err)
	}

	s.log.Info("template_ingested", "template_id", stored.ID, "title", stored.Title, "bytes", len(raw))
	return stored, nil
}

func (s *templateService) List(ctx context.Context) ([]model.Template, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	return items, nil
}

func (s *templateService) Get(ctx context.Context, id string) (*model.Template, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find", err)
	}
	return tpl, nil
}

func (s *templateService) Save(ctx context.Context, id, content string) (*model.Template, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	tpl, err := s.repo.SaveContent(ctx, id, content, s.now().UTC())
	if err != nil {
		return nil, storeErr("save", err)
	}
	attrs := []any{"template_id", id, "versions", len(tpl.Versions)}
	if v, ok := tpl.LatestVersion(); ok {
		attrs = append(attrs, "version_at", v.Timestamp)
	}
	s.log.Info("template_saved", attrs...)
	return tpl, nil
}

func (s *templateService) Convert(ctx context.Context, content string) (*model.ConvertResult, error) {
	if content == "" {
		return model.Replacement(""), nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.conv.Transform(ctx, content)
	if err == nil && res == nil {
		err = conversion.ErrMalformedResponse
	}
	if err != nil {
		s.log.Warn("conversion_failed",
			"error", err.Error(),
			"timeout", errors.Is(err, context.DeadlineExceeded),
			"input_length", len(content),
		)
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return res, nil
}

func (s *templateService) ConvertForTemplate(ctx context.Context, id, content string) (*model.ConvertResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	res, err := s.Convert(ctx, content)
	if err != nil {
		return nil, err
	}
	if res.IsReplacement() || len(res.Suggestions) == 0 {
		return res, nil
	}

	at := s.now().UTC()
	records := make([]model.AISuggestion, len(res.Suggestions))
	for i, sg := range res.Suggestions {
		records[i] = model.AISuggestion{
			Original:   sg.Original,
			Suggestion: sg.Suggestion,
			Kind:       sg.Kind,
			Timestamp:  at,
		}
	}
	if _, err := s.repo.AppendSuggestions(ctx, id, records, at); err != nil {
		return nil, storeErr("append suggestions", err)
	}
	s.log.Info("suggestions_recorded", "template_id", id, "count", len(records))
	return res, nil
}

func (s *templateService) Source(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if s.store == nil || tpl.SourcePath == "" {
		return nil, storage.ObjectInfo{}, ErrNoSource
	}
	rc, info, err := s.store.Get(ctx, tpl.SourcePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, ErrNoSource
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("%w: read source: %w", ErrStoreUnavailable, err)
	}
	return rc, info, nil
}

// checkID rejects ids that no store could hold. Ids are always minted as
// UUIDs, so anything else is simply unknown.
func checkID(id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return nil
}
