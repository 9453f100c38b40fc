package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/devtree/internal/apperror"
	"github.com/sakif/devtree/internal/model"
	"github.com/sakif/devtree/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores accounts and their profile, links included.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, handle, name, email, password, description, image, links,
	github_id, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	err := row.Scan(
		&u.ID,
		&u.Handle,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Description,
		&u.Image,
		&u.Links, // links.List implements sql.Scanner
		&githubID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}

func nullableGitHubID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// conflictFor turns a UNIQUE violation into a Conflict naming the column
// that collided.
func conflictFor(err error, u *model.User) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.handle"):
		return apperror.Conflict("handle", u.Handle)
	case strings.Contains(msg, "users.email"):
		return apperror.Conflict("email", u.Email)
	case strings.Contains(msg, "github_id") && u.GitHubID != nil:
		return apperror.Conflict("github account", fmt.Sprint(*u.GitHubID))
	}
	return apperror.Conflict("user", u.ID)
}

// Create inserts a new user. ID and timestamps are generated here and
// written back into u.
//
// A taken handle or email comes back as apperror.ErrConflict, so callers
// do not need a separate existence check to be correct (they may still do
// one to produce a nicer message first).
func (db *UserDB) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Handle,
		u.Name,
		u.Email,
		u.PasswordHash,
		u.Description,
		u.Image,
		u.Links, // links.List implements driver.Valuer
		nullableGitHubID(u.GitHubID),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return conflictFor(err, u)
		}
		return fmt.Errorf("sqlite: creating user %q: %w", u.Handle, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
func (db *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getOne(ctx, "id", id, "user", id)
}

// GetByHandle retrieves a user by public handle.
func (db *UserDB) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	return db.getOne(ctx, "handle", handle, "user", handle)
}

// GetByEmail retrieves a user by email address.
func (db *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getOne(ctx, "email", email, "user with email", email)
}

// GetByGitHubID retrieves the user linked to a GitHub account.
func (db *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getOne(ctx, "github_id", githubID, "user with github id", fmt.Sprint(githubID))
}

// getOne runs a single-row lookup on a whitelisted column. column is never
// user input; values always go through a placeholder.
func (db *UserDB) getOne(ctx context.Context, column string, value any, resource, key string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return u, nil
}

// HandleExists reports whether a user already holds handle.
func (db *UserDB) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE handle = ?)`, handle,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking handle %q: %w", handle, err)
	}
	return exists, nil
}

// Update overwrites every mutable column and bumps updated_at.
// id and created_at never change.
func (db *UserDB) Update(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET handle = ?, name = ?, email = ?, password = ?, description = ?,
		     image = ?, links = ?, github_id = ?, updated_at = ?
		 WHERE id = ?`,
		u.Handle,
		u.Name,
		u.Email,
		u.PasswordHash,
		u.Description,
		u.Image,
		u.Links,
		nullableGitHubID(u.GitHubID),
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return conflictFor(err, u)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", u.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", u.ID)
	}

	return nil
}
