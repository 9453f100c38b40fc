// Package model defines the data structures used throughout the application.
package model

import (
	"time"

	"github.com/sakif/devtree/internal/links"
)

// User is a registered account and the public profile it owns.
//
// LINKS ENCODING:
// The list is stored as one TEXT column and travels to clients as a JSON
// string nested in the user object. links.List knows both encodings
// (sql.Scanner/driver.Valuer and json.Marshaler/Unmarshaler), so the rest
// of the code handles a plain slice and never touches the text form.
//
// NULLABLE GITHUB ID:
// Accounts created with email + password have no GitHub identity. A nil
// pointer maps to NULL in the UNIQUE github_id column, and SQLite allows any
// number of NULLs under a UNIQUE constraint.
type User struct {
	ID           string     `json:"id"`
	Handle       string     `json:"handle"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never serialized out
	Description  string     `json:"description"`
	Image        string     `json:"image"`
	Links        links.List `json:"links"`
	GitHubID     *int64     `json:"githubId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PublicProfile is what anonymous visitors see at /user/{handle}.
// Only enabled links are included, ordered by position.
type PublicProfile struct {
	Handle      string     `json:"handle"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	Links       links.List `json:"links"`
}
