package model

import (
	"context"
	"strings"
	"time"
)

// DefaultRating is the rating assigned to newly created accounts.
const DefaultRating = 1000

// AccountStore defines persistence operations for local accounts.
type AccountStore interface {
	GetByUsername(ctx context.Context, username string) (LocalAccount, error)
	GetByEmail(ctx context.Context, email string) (LocalAccount, error)
	Create(ctx context.Context, account LocalAccount) error
	UpdatePassword(ctx context.Context, username, password string) error
	UpdateRemoteIdentity(ctx context.Context, username, email, remoteUID string) error
}

// LocalAccount is the locally authoritative credential record.
// Rating fields are owned by other subsystems and only initialized here.
type LocalAccount struct {
	Username             string
	Password             string
	Email                string
	RemoteUID            string
	FullName             string
	CurrentRating        int
	ContestsParticipated int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewLocalAccount returns an account with default rating attributes.
func NewLocalAccount(username, password, email, remoteUID, fullName string, now time.Time) LocalAccount {
	if fullName == "" {
		fullName = username
	}

	return LocalAccount{
		Username:      username,
		Password:      password,
		Email:         email,
		RemoteUID:     remoteUID,
		FullName:      fullName,
		CurrentRating: DefaultRating,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// DeriveUsername returns the part of an email before '@'.
// Identifiers without '@' are returned unchanged.
func DeriveUsername(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
