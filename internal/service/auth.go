package service

// AuthService owns accounts: registration, sign-in (password or GitHub)
// and handle availability.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService / PasswordService
//
// It never sets cookies or reads requests; the handler turns an AuthResult
// into a cookie and a JSON body.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/devtree/internal/apperror"
	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/links"
	"github.com/sakif/devtree/internal/model"
	"github.com/sakif/devtree/internal/repository"
)

// maxHandleSuffix bounds the "-2", "-3", ... attempts when a GitHub login
// is already taken as a handle.
const maxHandleSuffix = 50

var handleUnsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the signed-in user and their access token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an email + password account. The new profile starts
// with the full link catalog, every link disabled.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	handle := NormalizeHandle(in.Handle)
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(in.Password) > auth.MaxPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordLength))
	}

	// Friendly checks first; the UNIQUE constraints still catch races.
	if taken, err := s.users.HandleExists(ctx, handle); err != nil {
		return nil, fmt.Errorf("service/auth: checking handle: %w", err)
	} else if taken {
		return nil, apperror.Conflict("handle", handle)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("email", email)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Handle:       handle,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Links:        links.Default(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("handle", user.Handle),
	)
	return user, nil
}

// Login checks an email + password pair. Unknown email and wrong password
// produce the same Unauthorized error so the response does not reveal
// which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, invalid
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", addr, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("failed login", slog.String("userID", user.ID))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	return s.issue(user)
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub user,
// creating it on first sign-in.
//
// LOOKUP ORDER:
//  1. github_id: the account was created or linked by GitHub before.
//  2. email: an email + password account with the same address gets the
//     GitHub identity attached instead of a duplicate account.
//  3. neither: a new account whose handle derives from the GitHub login.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up github id %d: %w", gh.ID, err)
	}

	email := strings.ToLower(strings.TrimSpace(gh.Email))
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}
	githubID := gh.ID

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		existing.GitHubID = &githubID
		if existing.Image == "" {
			existing.Image = gh.AvatarURL
		}
		if err := s.users.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("service/auth: linking github id %d: %w", gh.ID, err)
		}
		s.logger.Info("GitHub account linked",
			slog.String("userID", existing.ID),
			slog.String("login", gh.Login),
		)
		return s.issue(existing)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	handle, err := s.availableHandle(ctx, gh.Login)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(gh.Name)
	if name == "" {
		name = gh.Login
	}

	user = &model.User{
		Handle:   handle,
		Name:     name,
		Email:    email,
		Image:    gh.AvatarURL,
		Links:    links.Default(),
		GitHubID: &githubID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user for github id %d: %w", gh.ID, err)
	}

	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("handle", user.Handle),
	)
	return s.issue(user)
}

// CheckHandle reports whether handle can still be claimed.
func (s *AuthService) CheckHandle(ctx context.Context, raw string) (bool, error) {
	handle := NormalizeHandle(raw)
	if err := ValidateHandle(handle); err != nil {
		return false, err
	}

	exists, err := s.users.HandleExists(ctx, handle)
	if err != nil {
		return false, fmt.Errorf("service/auth: checking handle %q: %w", handle, err)
	}
	return !exists, nil
}

// GetUserByID returns the caller's own account. Its link list is completed
// with the full catalog so an editor can show every network.
func (s *AuthService) GetUserByID(ctx context.Context, id auth.Identity) (*model.User, error) {
	user, err := requireIdentity(ctx, s.users, id)
	if err != nil {
		return nil, err
	}
	user.Links = user.Links.WithCatalog()
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// availableHandle turns a GitHub login into a free handle: "octocat",
// then "octocat-2", "octocat-3", ... and finally a random one.
func (s *AuthService) availableHandle(ctx context.Context, login string) (string, error) {
	base := handleUnsafeChars.ReplaceAllString(strings.ToLower(login), "-")
	base = strings.Trim(base, "-")
	for len(base) < MinHandleLength {
		base += "_"
	}

	for n := 1; n <= maxHandleSuffix; n++ {
		suffix := ""
		if n > 1 {
			suffix = fmt.Sprintf("-%d", n)
		}
		candidate := base
		if len(candidate)+len(suffix) > MaxHandleLength {
			candidate = candidate[:MaxHandleLength-len(suffix)]
		}
		candidate += suffix

		if ValidateHandle(candidate) != nil {
			continue
		}
		taken, err := s.users.HandleExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("service/auth: checking handle %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	// xid strings are 20 chars of [0-9a-v], always a valid handle.
	return xid.New().String(), nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", apperror.ValidationFailed("email", "invalid email format")
	}
	return strings.ToLower(addr.Address), nil
}
