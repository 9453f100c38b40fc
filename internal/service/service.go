// Package service contains the business rules of the profile service.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (rules)    → validates, enforces invariants, orchestrates
//	Repository (data)  → reads/writes the database
//
// Services take repository interfaces, never *sqlite.DB, so tests run
// against in-memory fakes and plain function calls. They never see HTTP:
// failures are *apperror.AppError values and the handler picks the status.
//
// The caller's identity arrives as an explicit auth.Identity argument on
// owner-only operations; nothing here reads it from a context.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sakif/devtree/internal/apperror"
	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/links"
	"github.com/sakif/devtree/internal/model"
	"github.com/sakif/devtree/internal/repository"
)

const (
	MinHandleLength = 3
	MaxHandleLength = 30
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_-]{3,30}$`)

// reservedHandles collide with static routes under /user.
var reservedHandles = map[string]bool{
	"my-stats": true,
}

// NormalizeHandle trims and lowercases a handle as typed by a user.
func NormalizeHandle(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateHandle checks an already normalized handle.
func ValidateHandle(handle string) error {
	if handle == "" {
		return apperror.ValidationFailed("handle", "handle is required")
	}
	if !handlePattern.MatchString(handle) {
		return apperror.ValidationFailed("handle", fmt.Sprintf(
			"handle must be %d-%d characters of a-z, 0-9, '_' or '-'", MinHandleLength, MaxHandleLength))
	}
	if reservedHandles[handle] {
		return apperror.ValidationFailed("handle", fmt.Sprintf("handle %q is reserved", handle))
	}
	return nil
}

// requireIdentity loads the user behind id. An empty identity is
// Unauthorized; a token for a deleted account is Unauthorized too, since
// the caller cannot fix it except by signing in again.
func requireIdentity(ctx context.Context, users repository.UserRepository, id auth.Identity) (*model.User, error) {
	if id.IsZero() {
		return nil, apperror.Unauthorized("authentication required")
	}
	user, err := users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("account no longer exists")
		}
		return nil, fmt.Errorf("loading user %s: %w", id.UserID, err)
	}
	return user, nil
}

// linkError translates a links package error into the domain taxonomy.
func linkError(err error) error {
	switch {
	case errors.Is(err, links.ErrInvalidURL):
		return apperror.ValidationFailed("url", err.Error())
	case errors.Is(err, links.ErrUnknownNetwork):
		return apperror.ValidationFailed("network", err.Error())
	case errors.Is(err, links.ErrDuplicateNetwork):
		return apperror.ValidationFailed("links", err.Error())
	case errors.Is(err, links.ErrLinkNotFound):
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: err.Error(), Field: "id"}
	}
	return err
}
