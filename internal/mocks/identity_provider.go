package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/contestauth/internal/model"
)

// IdentityProvider is a mock implementation of model.IdentityProvider.
type IdentityProvider struct {
	mock.Mock
}

var _ model.IdentityProvider = (*IdentityProvider)(nil)

func (m *IdentityProvider) Enabled() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *IdentityProvider) SignUp(ctx context.Context, email, password string) model.RemoteResult {
	args := m.Called(ctx, email, password)
	return args.Get(0).(model.RemoteResult)
}

func (m *IdentityProvider) SignIn(ctx context.Context, email, password string) model.RemoteResult {
	args := m.Called(ctx, email, password)
	return args.Get(0).(model.RemoteResult)
}

func (m *IdentityProvider) Refresh(ctx context.Context, refreshToken string) model.RemoteResult {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(model.RemoteResult)
}

func (m *IdentityProvider) UpdatePassword(ctx context.Context, idToken, newPassword string) model.RemoteResult {
	args := m.Called(ctx, idToken, newPassword)
	return args.Get(0).(model.RemoteResult)
}

func (m *IdentityProvider) SendPasswordResetEmail(ctx context.Context, email string) model.RemoteResult {
	args := m.Called(ctx, email)
	return args.Get(0).(model.RemoteResult)
}

func (m *IdentityProvider) SignOut() {
	m.Called()
}
