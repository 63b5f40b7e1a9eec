package model

import (
	"context"
	"time"
)

// LocalSessionDuration is the lifetime of a session established without remote tokens.
const LocalSessionDuration = 30 * 24 * time.Hour

// SessionStore persists remembered sessions, at most one per username.
type SessionStore interface {
	Insert(ctx context.Context, session SessionRecord) error
	DeleteByUsername(ctx context.Context, username string) error
	DeleteAll(ctx context.Context) error
	GetMostRecentRemembered(ctx context.Context) (SessionRecord, error)
	UpdateTokens(ctx context.Context, username, idToken, refreshToken string, expiry, lastLogin time.Time) error
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
}

// SessionRecord describes a persisted login.
type SessionRecord struct {
	ID           string
	Username     string
	RemoteUID    string
	Email        string
	IDToken      string
	RefreshToken string
	TokenExpiry  time.Time
	RememberMe   bool
	LastLogin    time.Time
	CreatedAt    time.Time
}

// Expired reports whether the token expiry has been reached at now.
func (s SessionRecord) Expired(now time.Time) bool {
	return !now.Before(s.TokenExpiry)
}

// HasRefreshToken reports whether the session can be refreshed remotely.
func (s SessionRecord) HasRefreshToken() bool {
	return s.RefreshToken != ""
}
