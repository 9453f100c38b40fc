package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/devtree/internal/apperror"
	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/links"
	"github.com/sakif/devtree/internal/model"
	"github.com/sakif/devtree/internal/repository"
)

// ProfileService serves public profiles and lets owners edit theirs.
type ProfileService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewProfileService(users repository.UserRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, logger: logger}
}

// GetPublicProfile returns what an anonymous visitor may see. Disabled
// links are left out.
func (s *ProfileService) GetPublicProfile(ctx context.Context, handle string) (*model.PublicProfile, error) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return nil, apperror.ValidationFailed("handle", "handle is required")
	}

	user, err := s.users.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	return &model.PublicProfile{
		Handle:      user.Handle,
		Name:        user.Name,
		Description: user.Description,
		Image:       user.Image,
		Links:       user.Links.Enabled(),
	}, nil
}

// UpdateProfileInput is the PATCH /user body.
//
// Handle and Description are always applied. Name and Image are pointers
// so an omitted field keeps its value. A nil Links keeps the stored list;
// a non-nil one replaces it after validation.
type UpdateProfileInput struct {
	Handle      string     `json:"handle"`
	Name        *string    `json:"name,omitempty"`
	Description string     `json:"description"`
	Image       *string    `json:"image,omitempty"`
	Links       links.List `json:"links,omitempty"`
}

// UpdateProfile applies in to the caller's own profile.
func (s *ProfileService) UpdateProfile(ctx context.Context, id auth.Identity, in UpdateProfileInput) (*model.User, error) {
	user, err := requireIdentity(ctx, s.users, id)
	if err != nil {
		return nil, err
	}

	handle := NormalizeHandle(in.Handle)
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	if handle != user.Handle {
		taken, err := s.users.HandleExists(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("service/profile: checking handle %q: %w", handle, err)
		}
		if taken {
			return nil, apperror.Conflict("handle", handle)
		}
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperror.ValidationFailed("name", "name must not be empty")
		}
		user.Name = name
	}

	if in.Image != nil {
		image := strings.TrimSpace(*in.Image)
		if image != "" && !links.ValidURL(image) {
			return nil, apperror.ValidationFailed("image", "image must be an http(s) URL")
		}
		user.Image = image
	}

	if in.Links != nil {
		if err := in.Links.Validate(); err != nil {
			return nil, linkError(err)
		}
		user.Links = in.Links.WithCatalog()
	}

	previous := user.Handle
	user.Handle = handle
	user.Description = strings.TrimSpace(in.Description)

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/profile: updating user %s: %w", user.ID, err)
	}

	if previous != handle {
		s.logger.Info("handle changed",
			slog.String("userID", user.ID),
			slog.String("from", previous),
			slog.String("to", handle),
		)
	}

	user.Links = user.Links.WithCatalog()
	return user, nil
}

// ToggleLink enables or disables one network. rawURL is used when enabling;
// blank means "reuse the stored URL".
func (s *ProfileService) ToggleLink(ctx context.Context, id auth.Identity, network, rawURL string) (links.List, error) {
	return s.editLinks(ctx, id, func(l links.List) (links.List, error) {
		return l.Toggle(network, rawURL)
	})
}

// SetLinkURL changes the URL of one network without touching its state.
func (s *ProfileService) SetLinkURL(ctx context.Context, id auth.Identity, network, rawURL string) (links.List, error) {
	return s.editLinks(ctx, id, func(l links.List) (links.List, error) {
		return l.SetURL(network, rawURL)
	})
}

// ReorderLinks moves the enabled link at position from to position to.
func (s *ProfileService) ReorderLinks(ctx context.Context, id auth.Identity, from, to int) (links.List, error) {
	return s.editLinks(ctx, id, func(l links.List) (links.List, error) {
		return l.Reorder(from, to), nil
	})
}

// RemoveLink disables the enabled link at position linkID.
func (s *ProfileService) RemoveLink(ctx context.Context, id auth.Identity, linkID int) (links.List, error) {
	return s.editLinks(ctx, id, func(l links.List) (links.List, error) {
		return l.Remove(linkID)
	})
}

// editLinks loads the caller, applies edit to the full link list and
// stores the result. A failed edit writes nothing.
func (s *ProfileService) editLinks(ctx context.Context, id auth.Identity, edit func(links.List) (links.List, error)) (links.List, error) {
	user, err := requireIdentity(ctx, s.users, id)
	if err != nil {
		return nil, err
	}

	updated, err := edit(user.Links.WithCatalog())
	if err != nil {
		return nil, linkError(err)
	}

	user.Links = updated
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/profile: saving links for user %s: %w", user.ID, err)
	}
	return updated, nil
}
