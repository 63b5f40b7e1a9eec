package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/dtroode/contestauth/internal/logger"
	"github.com/dtroode/contestauth/internal/model"
)

const otpCollection = "password_reset_otps"

// otpDocument is the stored form of a challenge. Times are Unix milliseconds.
type otpDocument struct {
	OTP       string `json:"otp"`
	Email     string `json:"email"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
}

// OTPStore issues and checks password reset codes.
// There is no attempt limit: a challenge accepts guesses until it expires.
type OTPStore struct {
	store    model.DocumentStore
	ttl      time.Duration
	logger   *logger.Logger
	now      func() time.Time
	generate func() (string, error)
}

func NewOTPStore(store model.DocumentStore, ttl time.Duration, logger *logger.Logger) *OTPStore {
	if ttl <= 0 {
		ttl = model.OTPDuration
	}

	return &OTPStore{
		store:    store,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		generate: generateOTP,
	}
}

// Issue creates a new challenge for email, replacing any previous one, and returns the code.
func (s *OTPStore) Issue(ctx context.Context, email string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}

	now := s.now()
	doc := otpDocument{
		OTP:       code,
		Email:     email,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(s.ttl).UnixMilli(),
	}

	if err := s.store.Put(ctx, otpKey(email), doc); err != nil {
		s.logger.Error("OTP store: failed to save challenge", "email", email, "error", err.Error())
		return "", fmt.Errorf("failed to save otp: %w", err)
	}

	s.logger.Info("OTP store: challenge issued", "email", email)

	return code, nil
}

// Verify reports whether otp matches the live challenge for email.
// Expired challenges are deleted on read.
func (s *OTPStore) Verify(ctx context.Context, email, otp string) (bool, error) {
	challenge, ok, err := s.load(ctx, email)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Debug("OTP store: no challenge", "email", email)
		return false, nil
	}

	if !s.now().Before(challenge.ExpiresAt) {
		s.logger.Info("OTP store: challenge expired", "email", email)
		if err := s.store.Delete(ctx, otpKey(email)); err != nil {
			s.logger.Warn("OTP store: failed to delete expired challenge", "email", email, "error", err.Error())
		}
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(challenge.OTP), []byte(otp)) == 1, nil
}

// Consume deletes the challenge for email.
func (s *OTPStore) Consume(ctx context.Context, email string) error {
	if err := s.store.Delete(ctx, otpKey(email)); err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}

func (s *OTPStore) load(ctx context.Context, email string) (model.OtpChallenge, bool, error) {
	var doc otpDocument
	ok, err := s.store.Get(ctx, otpKey(email), &doc)
	if err != nil {
		s.logger.Error("OTP store: failed to read challenge", "email", email, "error", err.Error())
		return model.OtpChallenge{}, false, fmt.Errorf("failed to read otp: %w", err)
	}
	if !ok {
		return model.OtpChallenge{}, false, nil
	}

	return model.OtpChallenge{
		Email:     doc.Email,
		OTP:       doc.OTP,
		IssuedAt:  time.UnixMilli(doc.Timestamp),
		ExpiresAt: time.UnixMilli(doc.ExpiresAt),
	}, true, nil
}

func otpKey(email string) string {
	return otpCollection + "/" + SanitizeKey(email)
}

// SanitizeKey turns an email into a path segment safe for document stores.
func SanitizeKey(email string) string {
	var b strings.Builder
	for _, r := range email {
		switch {
		case r == '@':
			b.WriteString("_at_")
		case r == '.':
			b.WriteString("_dot_")
		case r == '-' || r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// generateOTP returns a uniformly random code in [100000, 999999].
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}
