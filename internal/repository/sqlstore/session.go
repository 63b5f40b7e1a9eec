package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/contestauth/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

const sessionColumns = `id, username, remote_uid, email, id_token, refresh_token, token_expiry, remember_me, last_login, created_at`

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

func (r *SessionRepository) Insert(ctx context.Context, s model.SessionRecord) error {
	query := `INSERT INTO sessions (` + sessionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		s.ID, s.Username, s.RemoteUID, s.Email, s.IDToken, s.RefreshToken,
		toMillis(s.TokenExpiry), s.RememberMe, toMillis(s.LastLogin), toMillis(s.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrConflict
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func (r *SessionRepository) DeleteByUsername(ctx context.Context, username string) error {
	query := `DELETE FROM sessions WHERE username = ?`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), username)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (r *SessionRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	return nil
}

func (r *SessionRepository) GetMostRecentRemembered(ctx context.Context) (model.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
			  WHERE remember_me = ? ORDER BY last_login DESC LIMIT 1`

	var s model.SessionRecord
	var tokenExpiry, lastLogin, createdAt int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), true).Scan(
		&s.ID, &s.Username, &s.RemoteUID, &s.Email, &s.IDToken, &s.RefreshToken,
		&tokenExpiry, &s.RememberMe, &lastLogin, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SessionRecord{}, model.ErrNotFound
		}
		return model.SessionRecord{}, fmt.Errorf("failed to get remembered session: %w", err)
	}

	s.TokenExpiry = fromMillis(tokenExpiry)
	s.LastLogin = fromMillis(lastLogin)
	s.CreatedAt = fromMillis(createdAt)

	return s, nil
}

func (r *SessionRepository) UpdateTokens(ctx context.Context, username, idToken, refreshToken string, expiry, lastLogin time.Time) error {
	query := `UPDATE sessions SET id_token = ?, refresh_token = ?, token_expiry = ?, last_login = ?
			  WHERE username = ?`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		idToken, refreshToken, toMillis(expiry), toMillis(lastLogin), username,
	)
	if err != nil {
		return fmt.Errorf("failed to update session tokens: %w", err)
	}

	return requireAffected(res)
}

func (r *SessionRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	query := `UPDATE sessions SET last_login = ? WHERE username = ?`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), toMillis(at), username)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return requireAffected(res)
}
