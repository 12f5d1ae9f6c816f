package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
)

const uniqueViolationCode = "23505"

// Repository is the Postgres credential store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateAccount inserts a fresh USER account and runs issue inside the
// same transaction. If issue fails the insert rolls back, so account
// creation and token issuance are atomic as a unit.
func (r *Repository) CreateAccount(ctx context.Context, email, passwordHash string, issue func(Account) error) (Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, fmt.Errorf("begin register tx: %w", err)
	}
	defer tx.Rollback()

	var account Account
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, role, failed_login_attempts, locked, created_at, updated_at)
		VALUES ($1, $2, $3, 0, FALSE, NOW(), NOW())
		RETURNING id, email, password_hash, role, failed_login_attempts, locked, created_at, updated_at
	`, email, passwordHash, string(RoleUser)).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.Role,
		&account.FailedLoginAttempts, &account.Locked, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return Account{}, ErrEmailTaken
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	if issue != nil {
		if err := issue(account); err != nil {
			return Account{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Account{}, fmt.Errorf("commit register tx: %w", err)
	}

	return account, nil
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	var account Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, failed_login_attempts, locked, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.Role,
		&account.FailedLoginAttempts, &account.Locked, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("query account by email: %w", err)
	}

	return account, nil
}

// RecordFailedLogin increments the failure counter and applies the lock
// threshold in a single statement, so concurrent failed attempts cannot
// under-count the way a read-modify-write would.
func (r *Repository) RecordFailedLogin(ctx context.Context, email string, maxAttempts int) (int, bool, error) {
	var attempts int
	var locked bool
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked = locked OR failed_login_attempts + 1 >= $2,
		    updated_at = NOW()
		WHERE email = $1
		RETURNING failed_login_attempts, locked
	`, email, maxAttempts).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrAccountNotFound
		}
		return 0, false, fmt.Errorf("record failed login: %w", err)
	}

	return attempts, locked, nil
}

func (r *Repository) ResetFailedLogins(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, updated_at = NOW()
		WHERE email = $1
	`, email)
	if err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}

	return nil
}

// UnlockAccount clears both the lock flag and the counter. This is the
// only path out of the locked state.
func (r *Repository) UnlockAccount(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET locked = FALSE, failed_login_attempts = 0, updated_at = NOW()
		WHERE email = $1
	`, email)
	if err != nil {
		return fmt.Errorf("unlock account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlock account rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// EnsureAdminAccount seeds an ADMIN account at bootstrap if the email is
// not registered yet. An existing account is left untouched.
func (r *Repository) EnsureAdminAccount(ctx context.Context, email, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role, failed_login_attempts, locked, created_at, updated_at)
		VALUES ($1, $2, $3, 0, FALSE, NOW(), NOW())
		ON CONFLICT (email) DO NOTHING
	`, email, passwordHash, string(RoleAdmin))
	if err != nil {
		return fmt.Errorf("ensure admin account: %w", err)
	}

	return nil
}

// RevokeToken adds a token id to the denylist until its natural expiry
// and reports whether this call inserted the row. False means the token
// was already spent; the insert is the gate, so two concurrent
// redemptions of the same jti cannot both see true.
func (r *Repository) RevokeToken(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_revoked_tokens (jti, user_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (jti) DO NOTHING
	`, jti, userID, expiresAt.UTC())
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke token rows affected: %w", err)
	}

	return affected > 0, nil
}

// DeleteExpiredRevocations prunes denylist rows whose tokens would have
// expired anyway. Batched so the maintenance endpoint stays bounded.
func (r *Repository) DeleteExpiredRevocations(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT jti
			FROM auth_revoked_tokens
			WHERE expires_at < NOW()
			ORDER BY expires_at ASC
			LIMIT $1
		)
		DELETE FROM auth_revoked_tokens t
		USING stale
		WHERE t.jti = stale.jti
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired revocations rows affected: %w", err)
	}

	return affected, nil
}
