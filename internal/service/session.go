package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/contestauth/internal/logger"
	"github.com/dtroode/contestauth/internal/model"
)

// defaultTokenLifetime applies when the provider does not report one.
const defaultTokenLifetime = time.Hour

// SessionManager persists remembered sessions and keeps their tokens fresh.
// It composes the SessionStore with the identity provider.
type SessionManager struct {
	store    model.SessionStore
	provider model.IdentityProvider
	logger   *logger.Logger
	now      func() time.Time
}

func NewSessionManager(store model.SessionStore, provider model.IdentityProvider, logger *logger.Logger) *SessionManager {
	return &SessionManager{store: store, provider: provider, logger: logger, now: time.Now}
}

// Save replaces any session for session.Username with session.
// The delete and the insert are separate statements; a failure in between
// leaves the user with no session at all.
func (s *SessionManager) Save(ctx context.Context, session model.SessionRecord) (model.SessionRecord, error) {
	now := s.now()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastLogin.IsZero() {
		session.LastLogin = now
	}

	if err := s.store.DeleteByUsername(ctx, session.Username); err != nil {
		return model.SessionRecord{}, fmt.Errorf("replace session: %w", err)
	}

	if err := s.store.Insert(ctx, session); err != nil {
		s.logger.Error("Session manager: failed to insert session after delete",
			"username", session.Username,
			"error", err.Error())
		return model.SessionRecord{}, fmt.Errorf("persist session: %w", err)
	}

	s.logger.Debug("Session manager: session saved",
		"username", session.Username,
		"remember_me", session.RememberMe)

	return session, nil
}

// LoadMostRecentRemembered returns the newest session with remember-me set, or nil.
func (s *SessionManager) LoadMostRecentRemembered(ctx context.Context) (*model.SessionRecord, error) {
	session, err := s.store.GetMostRecentRemembered(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load remembered session: %w", err)
	}
	return &session, nil
}

// IsValid reports whether session can be resumed, refreshing its tokens when they expired.
// On a successful refresh the stored and passed session are both updated.
// An expired session without a refresh token stays valid; local sessions never carry one.
func (s *SessionManager) IsValid(ctx context.Context, session *model.SessionRecord) bool {
	if session == nil {
		return false
	}

	now := s.now()
	if !session.Expired(now) {
		return true
	}

	if !session.HasRefreshToken() {
		s.logger.Debug("Session manager: expired session without refresh token kept",
			"username", session.Username)
		return true
	}

	res := s.provider.Refresh(ctx, session.RefreshToken)
	if !res.Success {
		s.logger.Info("Session manager: refresh failed, dropping session",
			"username", session.Username,
			"kind", res.Kind)
		if err := s.store.DeleteByUsername(ctx, session.Username); err != nil {
			s.logger.Error("Session manager: failed to delete session",
				"username", session.Username,
				"error", err.Error())
		}
		return false
	}

	lifetime := res.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	refreshToken := res.RefreshToken
	if refreshToken == "" {
		refreshToken = session.RefreshToken
	}
	expiry := now.Add(lifetime)

	if err := s.store.UpdateTokens(ctx, session.Username, res.IDToken, refreshToken, expiry, now); err != nil {
		s.logger.Error("Session manager: failed to store refreshed tokens",
			"username", session.Username,
			"error", err.Error())
		return false
	}

	session.IDToken = res.IDToken
	session.RefreshToken = refreshToken
	session.TokenExpiry = expiry
	session.LastLogin = now

	s.logger.Info("Session manager: session refreshed", "username", session.Username)

	return true
}

// Touch records a resumed login.
func (s *SessionManager) Touch(ctx context.Context, username string) error {
	if err := s.store.TouchLastLogin(ctx, username, s.now()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Clear deletes the session of username.
func (s *SessionManager) Clear(ctx context.Context, username string) error {
	defer s.provider.SignOut()

	if err := s.store.DeleteByUsername(ctx, username); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ClearAll deletes every stored session.
func (s *SessionManager) ClearAll(ctx context.Context) error {
	defer s.provider.SignOut()

	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}
