package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/recap/internal/apperror"
	"github.com/sakif/recap/internal/model"
	"github.com/sakif/recap/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` assigns a nil *Y to a variable of interface type X.
// If *Y doesn't implement X, the compiler errors immediately instead of at
// some distant call site.
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a brand-new user.
//
// Used by email/password signup and by the OAuth first-login path. The
// caller sets Email/Name/Provider/Credits etc.; we fill ID and timestamps.
// A duplicate email surfaces as apperror.ErrConflict so the handler can
// return 409 instead of a bare 500.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, image_url, provider, github_id, password_hash, credits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.ImageURL,
		user.Provider,
		user.GitHubID,
		user.PasswordHash,
		user.Credits,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		// The driver reports constraint violations as plain errors; the
		// UNIQUE(email) case is the only one a caller can act on.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: creating user (email=%s): %w", user.Email, err)
	}

	return nil
}

// Upsert is the auth gate's directory sync: create-or-update keyed on the
// internal user ID carried in the verified credential.
//
// INSERT path: first authenticated request from an identity the store has
// never seen — the row is created with whatever Credits the caller set
// (the signup grant).
//
// UPDATE path: only the mutable profile fields (name, image, provider) are
// touched. Email is the identity we matched on, credits belong to the
// ledger, password_hash belongs to the signup flow — none of them are
// sync targets.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, user.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: looking up user %s: %w", user.ID, err)
	}

	if exists {
		user.UpdatedAt = time.Now()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET name = ?, image_url = ?, provider = ?, updated_at = ?
			 WHERE id = ?`,
			user.Name,
			user.ImageURL,
			user.Provider,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: syncing user %s: %w", user.ID, err)
		}
		return nil
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, image_url, provider, github_id, password_hash, credits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.ImageURL,
		user.Provider,
		user.GitHubID,
		user.PasswordHash,
		user.Credits,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.ID, err)
	}

	return nil
}

const userColumns = `id, email, name, image_url, provider, github_id, password_hash, credits, created_at, updated_at`

// scanUser reads one user row. The column order must match userColumns.
func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.ImageURL,
		&u.Provider,
		&u.GitHubID,
		&u.PasswordHash,
		&u.Credits,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		// sql.ErrNoRows is a sentinel, not a real failure — translate it
		// to the domain's NotFound so the handler returns 404.
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email (used by signin and signup).
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email %s: %w", email, err)
	}
	return u, nil
}

// GetUserByGitHubID retrieves a user by their GitHub numeric ID (OAuth login).
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ? AND github_id != 0`, githubID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return u, nil
}

// DebitCredit atomically spends one credit.
//
// THE WHOLE CREDIT LEDGER IS THIS ONE STATEMENT:
//
//	UPDATE users SET credits = credits - 1 WHERE id = ? AND credits >= 1
//
// The balance condition is INSIDE the UPDATE, so two concurrent requests
// observing balance=1 cannot both succeed — SQLite serializes the writes
// and the second one affects zero rows. Zero rows → either the user does
// not exist or the balance is exhausted; we look once more to tell the two
// apart. No SELECT-then-UPDATE anywhere.
func (db *DB) DebitCredit(ctx context.Context, userID string) error {
	return debitCredit(ctx, db.conn, userID)
}

// execer lets debitCredit run against either the pool or a transaction —
// CreateWithDebit in summary.go reuses it inside its Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func debitCredit(ctx context.Context, conn execer, userID string) error {
	result, err := conn.ExecContext(ctx,
		`UPDATE users SET credits = credits - 1, updated_at = ?
		 WHERE id = ? AND credits >= 1`,
		time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: debiting credit for user %s: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := conn.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: checking user %s: %w", userID, err)
		}
		if !exists {
			return apperror.NotFound("user", userID)
		}
		return apperror.InsufficientCredits()
	}

	return nil
}
