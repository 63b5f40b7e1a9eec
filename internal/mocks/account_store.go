package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/contestauth/internal/model"
)

// AccountStore is a mock implementation of model.AccountStore.
type AccountStore struct {
	mock.Mock
}

var _ model.AccountStore = (*AccountStore)(nil)

func (m *AccountStore) GetByUsername(ctx context.Context, username string) (model.LocalAccount, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(model.LocalAccount), args.Error(1)
}

func (m *AccountStore) GetByEmail(ctx context.Context, email string) (model.LocalAccount, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.LocalAccount), args.Error(1)
}

func (m *AccountStore) Create(ctx context.Context, account model.LocalAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *AccountStore) UpdatePassword(ctx context.Context, username, password string) error {
	args := m.Called(ctx, username, password)
	return args.Error(0)
}

func (m *AccountStore) UpdateRemoteIdentity(ctx context.Context, username, email, remoteUID string) error {
	args := m.Called(ctx, username, email, remoteUID)
	return args.Error(0)
}
