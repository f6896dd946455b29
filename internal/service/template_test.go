package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	convMocks "templateapi/internal/conversion/mocks"
	"templateapi/internal/logging"
	"templateapi/internal/model"
	"templateapi/internal/repository"
	repoMocks "templateapi/internal/repository/mocks"
	"templateapi/internal/storage"
	storeMocks "templateapi/internal/storage/mocks"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

const (
	tplID     = "3f8a2c1e-5b7d-4e90-a1c2-d3e4f5a6b7c8"
	missingID = "9b1d2e3f-4a5b-4c6d-8e7f-0a1b2c3d4e5f"
)

func fixedClock() time.Time { return fixedNow }

func TestTemplateService_Ingest(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		raw         []byte
		filename    string
		withStorage bool
		setupMocks  func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository)
		wantErr     error
		wantErrMsg  string
		check       func(t *testing.T, tpl *model.Template)
	}{
		{
			name:     "happy path without storage",
			raw:      []byte(`\section{A}`),
			filename: "paper.tex",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository) {
				mRepo.On("Create", ctx, mock.MatchedBy(func(tpl *model.Template) bool {
					return tpl.ID != "" && tpl.Title == "paper.tex" && tpl.Content == `\section{A}` &&
						tpl.SourcePath == "" && tpl.CreatedAt.Equal(fixedNow)
				})).Return(&model.Template{ID: "gen-id", Title: "paper.tex", Content: `\section{A}`, Versions: []model.Version{}}, nil)
			},
			check: func(t *testing.T, tpl *model.Template) {
				assert.Equal(t, `\section{A}`, tpl.Content)
				assert.Empty(t, tpl.Versions)
			},
		},
		{
			name:        "happy path archives source",
			raw:         []byte("hello"),
			filename:    "hello.tex",
			withStorage: true,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository) {
				mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "templates/") && strings.HasSuffix(key, "/source.tex")
				}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
					return opt.Size == 5 && opt.Metadata["original-filename"] == "hello.tex"
				})).Return(func(_ context.Context, key string, _ io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
					return storage.ObjectInfo{Key: key}
				}, nil)
				mRepo.On("Create", ctx, mock.MatchedBy(func(tpl *model.Template) bool {
					return strings.HasSuffix(tpl.SourcePath, "/source.tex")
				})).Return(&model.Template{ID: "gen-id"}, nil)
			},
		},
		{
			name:       "validation - empty filename",
			raw:        []byte("x"),
			filename:   "",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository) {},
			wantErr:    ErrValidation,
		},
		{
			name:       "decode error - invalid utf-8",
			raw:        []byte{0xc3, 0x28, 0xa0, 0xa1},
			filename:   "bin.tex",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository) {},
			wantErr:    ErrDecode,
		},
		{
			name:        "storage error performs no write",
			raw:         []byte("hello"),
			filename:    "hello.tex",
			withStorage: true,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("storage fail"))
			},
			wantErr:    ErrStoreUnavailable,
			wantErrMsg: "upload to storage: storage fail",
		},
		{
			name:        "repository error with successful rollback",
			raw:         []byte("hello"),
			filename:    "hello.tex",
			withStorage: true,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(func(_ context.Context, key string, _ io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
						return storage.ObjectInfo{Key: key}
					}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, mock.Anything).Return(nil)
			},
			wantErr:    ErrStoreUnavailable,
			wantErrMsg: "db save failed: db fail",
		},
		{
			name:        "repository error with failed rollback",
			raw:         []byte("hello"),
			filename:    "hello.tex",
			withStorage: true,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockTemplateRepository) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(func(_ context.Context, key string, _ io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
						return storage.ObjectInfo{Key: key}
					}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, mock.Anything).Return(errors.New("delete fail"))
			},
			wantErr:    ErrStoreUnavailable,
			wantErrMsg: "rollback delete failed: delete fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockTemplateRepository)
			opts := []Option{WithClock(fixedClock)}
			if tt.withStorage {
				opts = append(opts, WithStorage(mStore))
			}
			svc := NewTemplateService(mRepo, nil, opts...)

			tt.setupMocks(mStore, mRepo)

			tpl, err := svc.Ingest(ctx, tt.raw, tt.filename, "text/x-tex")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantErrMsg != "" {
					assert.Contains(t, err.Error(), tt.wantErrMsg)
				}
				assert.Nil(t, tpl)
			} else {
				require.NoError(t, err)
				require.NotNil(t, tpl)
				if tt.check != nil {
					tt.check(t, tpl)
				}
			}

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestTemplateService_Save(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		content    string
		setupMocks func(mRepo *repoMocks.MockTemplateRepository)
		wantErr    error
	}{
		{
			name:    "happy path",
			id:      tplID,
			content: `\section{B}`,
			setupMocks: func(mRepo *repoMocks.MockTemplateRepository) {
				mRepo.On("SaveContent", ctx, tplID, `\section{B}`, fixedNow).
					Return(&model.Template{ID: tplID, Content: `\section{B}`, Versions: []model.Version{{Content: `\section{B}`, Timestamp: fixedNow}}}, nil)
			},
		},
		{
			name:    "empty content is valid",
			id:      tplID,
			content: "",
			setupMocks: func(mRepo *repoMocks.MockTemplateRepository) {
				mRepo.On("SaveContent", ctx, tplID, "", fixedNow).
					Return(&model.Template{ID: tplID, Versions: []model.Version{{Timestamp: fixedNow}}}, nil)
			},
		},
		{
			name:       "validation - empty id",
			id:         "",
			setupMocks: func(mRepo *repoMocks.MockTemplateRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name:       "non-uuid id is not found",
			id:         "64b7f0c2a1e4d3f9b8c7a6e5",
			content:    "x",
			setupMocks: func(mRepo *repoMocks.MockTemplateRepository) {},
			wantErr:    ErrNotFound,
		},
		{
			name: "not found",
			id:   missingID,
			setupMocks: func(mRepo *repoMocks.MockTemplateRepository) {
				mRepo.On("SaveContent", ctx, missingID, "x", fixedNow).Return(nil, repository.ErrNotFound)
			},
			content: "x",
			wantErr: ErrNotFound,
		},
		{
			name: "store unavailable",
			id:   tplID,
			setupMocks: func(mRepo *repoMocks.MockTemplateRepository) {
				mRepo.On("SaveContent", ctx, tplID, "x", fixedNow).Return(nil, errors.New("connection refused"))
			},
			content: "x",
			wantErr: ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockTemplateRepository)
			svc := NewTemplateService(mRepo, nil, WithClock(fixedClock))

			tt.setupMocks(mRepo)

			tpl, err := svc.Save(ctx, tt.id, tt.content)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, tpl)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.content, tpl.Content)
				last, ok := tpl.LatestVersion()
				require.True(t, ok)
				assert.Equal(t, tt.content, last.Content)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestTemplateService_SaveLogsLatestVersion(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockTemplateRepository)
	mRepo.On("SaveContent", ctx, tplID, "v2", fixedNow).Return(&model.Template{
		ID:      tplID,
		Content: "v2",
		Versions: []model.Version{
			{Content: "v1", Timestamp: fixedNow.Add(-time.Hour)},
			{Content: "v2", Timestamp: fixedNow},
		},
	}, nil)

	var buf bytes.Buffer
	svc := NewTemplateService(mRepo, nil, WithClock(fixedClock), WithLogger(logging.New(&buf, time.UTC, 0)))

	_, err := svc.Save(ctx, tplID, "v2")

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"template_saved"`)
	assert.Contains(t, buf.String(), `"versions":2`)
	assert.Contains(t, buf.String(), `"version_at":"2024-05-01T10:00:00Z"`)
}

func TestTemplateService_ListAndGet(t *testing.T) {
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mRepo.On("List", ctx).Return([]model.Template{{ID: "1"}, {ID: "2"}}, nil)

		items, err := NewTemplateService(mRepo, nil).List(ctx)

		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("list store error", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mRepo.On("List", ctx).Return(nil, errors.New("db fail"))

		_, err := NewTemplateService(mRepo, nil).List(ctx)

		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("get not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mRepo.On("FindByID", ctx, missingID).Return(nil, repository.ErrNotFound)

		_, err := NewTemplateService(mRepo, nil).Get(ctx, missingID)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get non-uuid id", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)

		_, err := NewTemplateService(mRepo, nil).Get(ctx, "64b7f0c2a1e4d3f9b8c7a6e5")

		assert.ErrorIs(t, err, ErrNotFound)
		mRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("get empty id", func(t *testing.T) {
		_, err := NewTemplateService(new(repoMocks.MockTemplateRepository), nil).Get(ctx, "")
		assert.ErrorIs(t, err, ErrIDRequired)
	})
}

func TestTemplateService_Convert(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		content    string
		setupMocks func(mConv *convMocks.MockTransformer)
		wantErr    error
		check      func(t *testing.T, res *model.ConvertResult)
	}{
		{
			name:       "empty content is a no-op",
			content:    "",
			setupMocks: func(mConv *convMocks.MockTransformer) {},
			check: func(t *testing.T, res *model.ConvertResult) {
				assert.True(t, res.IsReplacement())
				assert.Equal(t, "", res.Content())
			},
		},
		{
			name:    "replacement",
			content: `\section{B}`,
			setupMocks: func(mConv *convMocks.MockTransformer) {
				mConv.On("Transform", mock.Anything, `\section{B}`).Return(model.Replacement(`\section{B} % ai`), nil)
			},
			check: func(t *testing.T, res *model.ConvertResult) {
				assert.Equal(t, `\section{B} % ai`, res.Content())
			},
		},
		{
			name:    "provider error",
			content: "x",
			setupMocks: func(mConv *convMocks.MockTransformer) {
				mConv.On("Transform", mock.Anything, "x").Return(nil, errors.New("upstream 500"))
			},
			wantErr: ErrConversionFailed,
		},
		{
			name:    "nil result",
			content: "x",
			setupMocks: func(mConv *convMocks.MockTransformer) {
				mConv.On("Transform", mock.Anything, "x").Return(nil, nil)
			},
			wantErr: ErrConversionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mConv := new(convMocks.MockTransformer)
			mRepo := new(repoMocks.MockTemplateRepository)
			svc := NewTemplateService(mRepo, mConv)

			tt.setupMocks(mConv)

			res, err := svc.Convert(ctx, tt.content)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
			} else {
				require.NoError(t, err)
				tt.check(t, res)
			}
			mConv.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestTemplateService_ConvertTimeout(t *testing.T) {
	mConv := new(convMocks.MockTransformer)
	mConv.On("Transform", mock.Anything, "x").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	svc := NewTemplateService(new(repoMocks.MockTemplateRepository), mConv, WithConversionTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := svc.Convert(context.Background(), "x")

	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTemplateService_ConvertForTemplate(t *testing.T) {
	ctx := context.Background()
	suggestions := []model.Suggestion{{Original: "teh", Suggestion: "the", Kind: "grammar"}}

	t.Run("records suggestions", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mConv := new(convMocks.MockTransformer)
		mRepo.On("FindByID", ctx, tplID).Return(&model.Template{ID: tplID}, nil)
		mConv.On("Transform", mock.Anything, "teh").Return(&model.ConvertResult{Suggestions: suggestions}, nil)
		mRepo.On("AppendSuggestions", ctx, tplID, []model.AISuggestion{{Original: "teh", Suggestion: "the", Kind: "grammar", Timestamp: fixedNow}}, fixedNow).
			Return(&model.Template{ID: tplID}, nil)

		res, err := NewTemplateService(mRepo, mConv, WithClock(fixedClock)).ConvertForTemplate(ctx, tplID, "teh")

		require.NoError(t, err)
		assert.Equal(t, suggestions, res.Suggestions)
		mRepo.AssertExpectations(t)
	})

	t.Run("replacement leaves store untouched", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mConv := new(convMocks.MockTransformer)
		mRepo.On("FindByID", ctx, tplID).Return(&model.Template{ID: tplID}, nil)
		mConv.On("Transform", mock.Anything, "x").Return(model.Replacement("y"), nil)

		res, err := NewTemplateService(mRepo, mConv).ConvertForTemplate(ctx, tplID, "x")

		require.NoError(t, err)
		assert.Equal(t, "y", res.Content())
		mRepo.AssertNotCalled(t, "AppendSuggestions", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown id skips provider", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mConv := new(convMocks.MockTransformer)
		mRepo.On("FindByID", ctx, missingID).Return(nil, repository.ErrNotFound)

		_, err := NewTemplateService(mRepo, mConv).ConvertForTemplate(ctx, missingID, "x")

		assert.ErrorIs(t, err, ErrNotFound)
		mConv.AssertNotCalled(t, "Transform", mock.Anything, mock.Anything)
	})

	t.Run("provider failure appends nothing", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mConv := new(convMocks.MockTransformer)
		mRepo.On("FindByID", ctx, tplID).Return(&model.Template{ID: tplID}, nil)
		mConv.On("Transform", mock.Anything, "x").Return(nil, errors.New("boom"))

		_, err := NewTemplateService(mRepo, mConv).ConvertForTemplate(ctx, tplID, "x")

		assert.ErrorIs(t, err, ErrConversionFailed)
		mRepo.AssertNotCalled(t, "AppendSuggestions", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTemplateService_Source(t *testing.T) {
	ctx := context.Background()

	t.Run("streams archived upload", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mStore := new(storeMocks.MockStorage)
		mRepo.On("FindByID", ctx, tplID).Return(&model.Template{ID: tplID, SourcePath: "templates/id/source.tex"}, nil)
		mStore.On("Get", ctx, "templates/id/source.tex").
			Return(io.NopCloser(strings.NewReader("raw")), storage.ObjectInfo{Key: "templates/id/source.tex", Size: 3}, nil)

		rc, info, err := NewTemplateService(mRepo, nil, WithStorage(mStore)).Source(ctx, tplID)

		require.NoError(t, err)
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		assert.Equal(t, "raw", string(b))
		assert.EqualValues(t, 3, info.Size)
	})

	t.Run("no storage configured", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mRepo.On("FindByID", ctx, tplID).Return(&model.Template{ID: tplID}, nil)

		_, _, err := NewTemplateService(mRepo, nil).Source(ctx, tplID)

		assert.ErrorIs(t, err, ErrNoSource)
	})

	t.Run("object missing", func(t *testing.T) {
		mRepo := new(repoMocks.MockTemplateRepository)
		mStore := new(storeMocks.MockStorage)
		mRepo.On("FindByID", ctx, tplID).Return(&model.Template{ID: tplID, SourcePath: "k"}, nil)
		mStore.On("Get", ctx, "k").Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)

		_, _, err := NewTemplateService(mRepo, nil, WithStorage(mStore)).Source(ctx, tplID)

		assert.ErrorIs(t, err, ErrNoSource)
	})
}
