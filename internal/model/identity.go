package model

import (
	"context"
	"time"
)

// IdentityProvider is the remote identity service.
// Implementations hold no per-user state between calls.
type IdentityProvider interface {
	Enabled() bool
	SignUp(ctx context.Context, email, password string) RemoteResult
	SignIn(ctx context.Context, email, password string) RemoteResult
	Refresh(ctx context.Context, refreshToken string) RemoteResult
	UpdatePassword(ctx context.Context, idToken, newPassword string) RemoteResult
	SendPasswordResetEmail(ctx context.Context, email string) RemoteResult
	SignOut()
}

// RemoteResult is the immutable outcome of a single provider call.
type RemoteResult struct {
	Success      bool
	Message      string
	Kind         ErrorKind
	Code         string
	IDToken      string
	RefreshToken string
	UID          string
	Email        string
	ExpiresIn    time.Duration
}

// Outcome converts a remote result into a coordinator outcome without payload.
func (r RemoteResult) Outcome() Outcome {
	return Outcome{Success: r.Success, Message: r.Message, Kind: r.Kind, Code: r.Code}
}
