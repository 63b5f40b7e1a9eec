package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/contestauth/internal/model"
)

// SessionStore is a mock implementation of model.SessionStore.
type SessionStore struct {
	mock.Mock
}

var _ model.SessionStore = (*SessionStore)(nil)

func (m *SessionStore) Insert(ctx context.Context, session model.SessionRecord) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionStore) DeleteByUsername(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *SessionStore) DeleteAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *SessionStore) GetMostRecentRemembered(ctx context.Context) (model.SessionRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.SessionRecord), args.Error(1)
}

func (m *SessionStore) UpdateTokens(ctx context.Context, username, idToken, refreshToken string, expiry, lastLogin time.Time) error {
	args := m.Called(ctx, username, idToken, refreshToken, expiry, lastLogin)
	return args.Error(0)
}

func (m *SessionStore) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	args := m.Called(ctx, username, at)
	return args.Error(0)
}
