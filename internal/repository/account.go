// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/models"
	"github.com/google/uuid"
	"github.com/vinovest/sqlx"
)

const accountColumns = `id, name, email, password_hash, is_admin, is_verified,
	reset_code, reset_expires_at, verify_code, verify_expires_at, delete_code, delete_expires_at,
	version, created_at, updated_at`

// accountRow is the storage shape of models.Account. Challenge expiries are
// Unix milliseconds, 0 meaning no challenge.
type accountRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Email           string    `db:"email"`
	PasswordHash    string    `db:"password_hash"`
	IsAdmin         bool      `db:"is_admin"`
	IsVerified      bool      `db:"is_verified"`
	ResetCode       string    `db:"reset_code"`
	ResetExpiresAt  int64     `db:"reset_expires_at"`
	VerifyCode      string    `db:"verify_code"`
	VerifyExpiresAt int64     `db:"verify_expires_at"`
	DeleteCode      string    `db:"delete_code"`
	DeleteExpiresAt int64     `db:"delete_expires_at"`
	Version         int64     `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func rowFromAccount(a *models.Account) accountRow {
	return accountRow{
		ID:              a.ID,
		Name:            a.Name,
		Email:           a.Email,
		PasswordHash:    a.PasswordHash,
		IsAdmin:         a.IsAdmin,
		IsVerified:      a.IsVerified,
		ResetCode:       a.ResetChallenge.Code,
		ResetExpiresAt:  toMillis(a.ResetChallenge.ExpiresAt),
		VerifyCode:      a.VerifyChallenge.Code,
		VerifyExpiresAt: toMillis(a.VerifyChallenge.ExpiresAt),
		DeleteCode:      a.DeleteChallenge.Code,
		DeleteExpiresAt: toMillis(a.DeleteChallenge.ExpiresAt),
		Version:         a.Version,
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func (row *accountRow) toAccount() *models.Account {
	return &models.Account{
		ID:              row.ID,
		Name:            row.Name,
		Email:           row.Email,
		PasswordHash:    row.PasswordHash,
		IsAdmin:         row.IsAdmin,
		IsVerified:      row.IsVerified,
		ResetChallenge:  models.Challenge{Code: row.ResetCode, ExpiresAt: fromMillis(row.ResetExpiresAt)},
		VerifyChallenge: models.Challenge{Code: row.VerifyCode, ExpiresAt: fromMillis(row.VerifyExpiresAt)},
		DeleteChallenge: models.Challenge{Code: row.DeleteCode, ExpiresAt: fromMillis(row.DeleteExpiresAt)},
		Version:         row.Version,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

// NormalizeEmail trims and lowercases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetAccountByID retrieves an account by its ID
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getAccount(ctx, r.db, "id", id, false)
}

// GetAccountByEmail retrieves an account by its email address
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getAccount(ctx, r.db, "email", NormalizeEmail(email), false)
}

func (r *Repository) getAccount(ctx context.Context, q sqlx.QueryerContext, column, value string, lock bool) (*models.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE " + column + " = ?"
	if lock {
		query += r.forUpdate()
	}

	var row accountRow
	if err := sqlx.GetContext(ctx, q, &row, r.db.Rebind(query), value); err != nil {
		return nil, wrapError(err)
	}
	return row.toAccount(), nil
}

// CreateAccount inserts a new account. ID, version and timestamps are assigned
// here; a taken email yields ErrDuplicateEmail.
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	now := r.now().UTC()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Email = NormalizeEmail(account.Email)
	account.Version = 1
	account.CreatedAt = now
	account.UpdatedAt = now

	query := "INSERT INTO accounts (" + accountColumns + `) VALUES (
		:id, :name, :email, :password_hash, :is_admin, :is_verified,
		:reset_code, :reset_expires_at, :verify_code, :verify_expires_at, :delete_code, :delete_expires_at,
		:version, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, rowFromAccount(account)); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// SaveAccount writes account back if it is unchanged since it was read.
// A stale version yields ErrConflict; on success the version is bumped.
func (r *Repository) SaveAccount(ctx context.Context, account *models.Account) error {
	return r.save(ctx, r.db, account)
}

func (r *Repository) save(ctx context.Context, e sqlx.ExtContext, account *models.Account) error {
	row := rowFromAccount(account)
	row.UpdatedAt = r.now().UTC()

	query := `UPDATE accounts SET
		name = :name, email = :email, password_hash = :password_hash,
		is_admin = :is_admin, is_verified = :is_verified,
		reset_code = :reset_code, reset_expires_at = :reset_expires_at,
		verify_code = :verify_code, verify_expires_at = :verify_expires_at,
		delete_code = :delete_code, delete_expires_at = :delete_expires_at,
		version = version + 1, updated_at = :updated_at
		WHERE id = :id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, e, query, row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := sqlx.GetContext(ctx, e, &exists, e.Rebind("SELECT COUNT(*) FROM accounts WHERE id = ?"), account.ID)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}

	account.Version++
	account.UpdatedAt = row.UpdatedAt
	return nil
}

// UpdateAccount loads the account with the given id, applies fn and saves the
// result within one transaction. If fn returns an error nothing is written and
// that error is returned.
func (r *Repository) UpdateAccount(ctx context.Context, id string, fn func(*models.Account) error) (*models.Account, error) {
	return r.update(ctx, "id", id, fn)
}

// UpdateAccountByEmail is UpdateAccount keyed by email address.
func (r *Repository) UpdateAccountByEmail(ctx context.Context, email string, fn func(*models.Account) error) (*models.Account, error) {
	return r.update(ctx, "email", NormalizeEmail(email), fn)
}

func (r *Repository) update(ctx context.Context, column, value string, fn func(*models.Account) error) (*models.Account, error) {
	var account *models.Account
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = r.getAccount(ctx, tx, column, value, true)
		if err != nil {
			return err
		}
		if err := fn(account); err != nil {
			return err
		}
		return r.save(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes the account with the given id. When check is non-nil it
// runs against the locked row first; its error aborts the deletion.
func (r *Repository) DeleteAccount(ctx context.Context, id string, check func(*models.Account) error) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		account, err := r.getAccount(ctx, tx, "id", id, true)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(account); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM accounts WHERE id = ?"), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CountAccounts returns the total number of accounts
func (r *Repository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM accounts"); err != nil {
		return 0, err
	}
	return count, nil
}

// IsNotFound reports whether err means the account does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
