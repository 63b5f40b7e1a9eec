package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/contestauth/internal/model"
)

var _ model.AccountStore = (*AccountRepository)(nil)

const accountColumns = `username, password, email, remote_uid, full_name, current_rating, contests_participated, created_at, updated_at`

type AccountRepository struct {
	db *Connection
}

func NewAccountRepository(db *Connection) *AccountRepository {
	return &AccountRepository{
		db: db,
	}
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (model.LocalAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = ?`

	account, err := scanAccount(r.db.QueryRowContext(ctx, r.db.Rebind(query), username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LocalAccount{}, model.ErrNotFound
		}
		return model.LocalAccount{}, fmt.Errorf("failed to get account by username: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (model.LocalAccount, error) {
	if email == "" {
		return model.LocalAccount{}, model.ErrNotFound
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`

	account, err := scanAccount(r.db.QueryRowContext(ctx, r.db.Rebind(query), email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LocalAccount{}, model.ErrNotFound
		}
		return model.LocalAccount{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account model.LocalAccount) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		account.Username, account.Password, nullable(account.Email), nullable(account.RemoteUID),
		account.FullName, account.CurrentRating, account.ContestsParticipated,
		toMillis(account.CreatedAt), toMillis(account.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrConflict
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, username, password string) error {
	query := `UPDATE accounts SET password = ?, updated_at = ? WHERE username = ?`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), password, toMillis(time.Now()), username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return requireAffected(res)
}

// UpdateRemoteIdentity sets email and remote uid. Empty values leave the stored ones untouched.
func (r *AccountRepository) UpdateRemoteIdentity(ctx context.Context, username, email, remoteUID string) error {
	query := `UPDATE accounts
			  SET email = COALESCE(?, email), remote_uid = COALESCE(?, remote_uid), updated_at = ?
			  WHERE username = ?`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		nullable(email), nullable(remoteUID), toMillis(time.Now()), username,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrConflict
		}
		return fmt.Errorf("failed to update remote identity: %w", err)
	}

	return requireAffected(res)
}

func scanAccount(row *sql.Row) (model.LocalAccount, error) {
	var (
		account            model.LocalAccount
		email, remoteUID   sql.NullString
		createdAt, updated int64
	)

	err := row.Scan(
		&account.Username, &account.Password, &email, &remoteUID, &account.FullName,
		&account.CurrentRating, &account.ContestsParticipated, &createdAt, &updated,
	)
	if err != nil {
		return model.LocalAccount{}, err
	}

	account.Email = email.String
	account.RemoteUID = remoteUID.String
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updated)

	return account, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
