package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/contestauth/internal/model"
)

// DocumentStore is a mock implementation of model.DocumentStore.
type DocumentStore struct {
	mock.Mock
}

var _ model.DocumentStore = (*DocumentStore)(nil)

func (m *DocumentStore) Put(ctx context.Context, key string, doc any) error {
	args := m.Called(ctx, key, doc)
	return args.Error(0)
}

func (m *DocumentStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	args := m.Called(ctx, key, dst)
	return args.Bool(0), args.Error(1)
}

func (m *DocumentStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
