package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"templateapi/internal/model"
	"templateapi/internal/repository"
)

const templateColumns = `id, title, content, source_path, versions, ai_suggestions, created_at, updated_at`

// TemplatePostgres is a PostgreSQL implementation of repository.TemplateRepository.
// Versions and suggestions live as JSONB arrays inside the template row, so
// every mutation is a single UPDATE.
type TemplatePostgres struct {
	db *sql.DB
}

// NewTemplatePostgres creates a new TemplatePostgres repository. The
// repository owns db and closes it on Close.
func NewTemplatePostgres(db *sql.DB) *TemplatePostgres {
	return &TemplatePostgres{db: db}
}

var _ repository.TemplateRepository = (*TemplatePostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// isInvalidText reports a 22P02 rejection, which an id that is not a UUID
// triggers against the uuid column. No row can match such an id.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t           model.Template
		versions    []byte
		suggestions []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Content,
		&t.SourcePath,
		&versions,
		&suggestions,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(versions, &t.Versions); err != nil {
		return nil, fmt.Errorf("decode versions of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(suggestions, &t.AISuggestions); err != nil {
		return nil, fmt.Errorf("decode ai_suggestions of %s: %w", t.ID, err)
	}
	if t.Versions == nil {
		t.Versions = []model.Version{}
	}
	if t.AISuggestions == nil {
		t.AISuggestions = []model.AISuggestion{}
	}
	return &t, nil
}

// Create inserts a new template row with empty history and returns the stored record.
func (r *TemplatePostgres) Create(ctx context.Context, t *model.Template) (*model.Template, error) {
	const q = `
		INSERT INTO templates (id, title, content, source_path, versions, ai_suggestions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, '[]'::jsonb, $5, $6)
		RETURNING ` + templateColumns
	row := r.db.QueryRowContext(ctx, q,
		t.ID,
		t.Title,
		t.Content,
		t.SourcePath,
		t.CreatedAt,
		t.UpdatedAt,
	)
	return scanTemplate(row)
}

// FindByID fetches a single template by its ID.
func (r *TemplatePostgres) FindByID(ctx context.Context, id string) (*model.Template, error) {
	const q = `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`
	return scanTemplate(r.db.QueryRowContext(ctx, q, id))
}

// List returns all templates ordered newest first.
func (r *TemplatePostgres) List(ctx context.Context) ([]model.Template, error) {
	const q = `SELECT ` + templateColumns + ` FROM templates ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// SaveContent updates content and appends the matching version in one statement.
func (r *TemplatePostgres) SaveContent(ctx context.Context, id, content string, at time.Time) (*model.Template, error) {
	entry, err := json.Marshal([]model.Version{{Content: content, Timestamp: at}})
	if err != nil {
		return nil, err
	}
	const q = `
		UPDATE templates
		SET content = $2, versions = versions || $3::jsonb, updated_at = $4
		WHERE id = $1
		RETURNING ` + templateColumns
	return scanTemplate(r.db.QueryRowContext(ctx, q, id, content, string(entry), at))
}

// AppendSuggestions appends suggestion records in one statement.
func (r *TemplatePostgres) AppendSuggestions(ctx context.Context, id string, suggestions []model.AISuggestion, at time.Time) (*model.Template, error) {
	entries, err := json.Marshal(suggestions)
	if err != nil {
		return nil, err
	}
	const q = `
		UPDATE templates
		SET ai_suggestions = ai_suggestions || $2::jsonb, updated_at = $3
		WHERE id = $1
		RETURNING ` + templateColumns
	return scanTemplate(r.db.QueryRowContext(ctx, q, id, string(entries), at))
}

// PingContext verifies database connectivity.
func (r *TemplatePostgres) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (r *TemplatePostgres) Close() error {
	return r.db.Close()
}
