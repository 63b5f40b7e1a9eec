package model

import (
	"context"
	"time"
)

// OTPDuration is the lifetime of a password reset challenge.
const OTPDuration = 10 * time.Minute

// DocumentStore is a remote key-value store of JSON documents.
type DocumentStore interface {
	Put(ctx context.Context, key string, doc any) error
	// Get decodes the document into dst and reports whether it exists.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Delete(ctx context.Context, key string) error
}

// OtpChallenge is a one-time code gating a password reset.
type OtpChallenge struct {
	Email     string
	OTP       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
