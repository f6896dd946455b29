package mocks

import (
	"context"

	"templateapi/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockTransformer struct {
	mock.Mock
}

func (m *MockTransformer) Transform(ctx context.Context, text string) (*model.ConvertResult, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConvertResult), args.Error(1)
}
