package listcache

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/people-drive/internal/model"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) List(ctx context.Context) ([]*model.Application, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Application), args.Error(1)
}

func (m *MockSource) SetStatus(ctx context.Context, id string, status model.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockSource) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
