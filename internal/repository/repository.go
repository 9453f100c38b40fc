// Package repository declares the storage contracts the services depend on.
// internal/repository/sqlite implements them; service tests use fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/devtree/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByHandle(ctx context.Context, handle string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	// Update overwrites every mutable column of the user (last writer wins).
	Update(ctx context.Context, user *model.User) error
}

type VisitRepository interface {
	Create(ctx context.Context, visit *model.Visit) error
	// HasVisitSince reports whether visitorIP already has a visit on userID's
	// page at or after since.
	HasVisitSince(ctx context.Context, userID, visitorIP string, since time.Time) (bool, error)
	// Counts returns the total number of visits for userID and, for each
	// cutoff, the number at or after it. All counts come from one snapshot.
	Counts(ctx context.Context, userID string, cutoffs ...time.Time) (total int64, since []int64, err error)
	// Recent returns up to limit visits, newest first.
	Recent(ctx context.Context, userID string, limit int) ([]model.Visit, error)
}
