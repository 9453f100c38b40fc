package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sakif/devtree/internal/apperror"
	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/model"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. It stores copies
// so a test can tell whether a service wrote through Update or only
// mutated the struct it was handed.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	// set to a non-nil error to simulate a database failure
	getErr    error
	updateErr error
	updates   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.Handle == u.Handle {
			return apperror.Conflict("handle", u.Handle)
		}
		if existing.Email == u.Email {
			return apperror.Conflict("email", u.Email)
		}
	}
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = cloneUser(u)
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool, resource, key string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, apperror.NotFound(resource, key)
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, "user", id)
}

func (f *fakeUserRepo) GetByHandle(_ context.Context, handle string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Handle == handle }, "user", handle)
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email }, "user with email", email)
}

func (f *fakeUserRepo) GetByGitHubID(_ context.Context, id int64) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.GitHubID != nil && *u.GitHubID == id },
		"user with github id", fmt.Sprint(id))
}

func (f *fakeUserRepo) HandleExists(_ context.Context, handle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Handle == handle {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	for id, existing := range f.users {
		if id != u.ID && existing.Handle == u.Handle {
			return apperror.Conflict("handle", u.Handle)
		}
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[u.ID] = cloneUser(u)
	f.updates++
	return nil
}

// stored returns the persisted copy of a user, or nil.
func (f *fakeUserRepo) stored(id string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return cloneUser(u)
	}
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Links = slices.Clone(u.Links)
	if u.GitHubID != nil {
		id := *u.GitHubID
		c.GitHubID = &id
	}
	return &c
}

// fakeVisitRepo is an in-memory repository.VisitRepository.
type fakeVisitRepo struct {
	mu     sync.Mutex
	visits []model.Visit
	nextID int
}

func (f *fakeVisitRepo) Create(_ context.Context, v *model.Visit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	v.ID = fmt.Sprintf("visit-%d", f.nextID)
	f.visits = append(f.visits, *v)
	return nil
}

func (f *fakeVisitRepo) HasVisitSince(_ context.Context, userID, ip string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.visits {
		if v.UserID == userID && v.VisitorIP == ip && !v.VisitedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeVisitRepo) Counts(_ context.Context, userID string, cutoffs ...time.Time) (int64, []int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	since := make([]int64, len(cutoffs))
	for _, v := range f.visits {
		if v.UserID != userID {
			continue
		}
		total++
		for i, c := range cutoffs {
			if !v.VisitedAt.Before(c) {
				since[i]++
			}
		}
	}
	return total, since, nil
}

func (f *fakeVisitRepo) Recent(_ context.Context, userID string, limit int) ([]model.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Visit
	for _, v := range f.visits {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Visit) int { return b.VisitedAt.Compare(a.VisitedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeVisitRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visits)
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// newTestAuthService returns an AuthService wired with fake dependencies.
// bcrypt cost 4 is the minimum and keeps the tests fast.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()
	return NewAuthService(repo, newTestTokens(t), auth.NewPasswordServiceForTest(4), testLogger())
}

// seedUser registers a user straight through the fake.
func seedUser(t *testing.T, repo *fakeUserRepo, handle string) *model.User {
	t.Helper()
	u := &model.User{Handle: handle, Name: handle, Email: handle + "@example.com"}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("seeding %s: %v", handle, err)
	}
	return u
}
