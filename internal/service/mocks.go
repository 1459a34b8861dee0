package service

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/backend"
	"github.com/yakoovad/people-drive/internal/listcache"
	"github.com/yakoovad/people-drive/internal/model"
)

type MockListCache struct {
	mock.Mock
}

func (m *MockListCache) Snapshot() listcache.Snapshot {
	args := m.Called()
	return args.Get(0).(listcache.Snapshot)
}

func (m *MockListCache) Get(id string) (*model.Application, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*model.Application), args.Bool(1)
}

func (m *MockListCache) Load(ctx context.Context) ([]*model.Application, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Application), args.Error(1)
}

func (m *MockListCache) SetStatus(ctx context.Context, id string, status model.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockListCache) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) Get(ctx context.Context, id string) (*model.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}

type MockTarget struct {
	mock.Mock
}

func (m *MockTarget) Submit(ctx context.Context, sub *model.Submission) (*model.Application, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(email, password string) (*auth.Account, error) {
	args := m.Called(email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

type MockDocumentSource struct {
	mock.Mock
}

func (m *MockDocumentSource) Document(ctx context.Context, id string) (*backend.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.Document), args.Error(1)
}
