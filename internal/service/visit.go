package service

// VISIT COUNTING:
//
//	POST /user/{handle}/visit
//	        │
//	        ▼
//	handle exists? ──no──▶ NotFound, nothing written
//	        │yes
//	        ▼
//	same IP within window? ──yes──▶ counted=false
//	        │no
//	        ▼
//	append visit ──▶ counted=true
//
// The check and the insert are two statements, so two requests from one IP
// racing inside the same millisecond may both count. The stats only ever
// over-count by that much, which a page-view counter tolerates.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/model"
	"github.com/sakif/devtree/internal/repository"
)

const (
	// DefaultDedupWindow is how long repeat visits from one IP are ignored.
	DefaultDedupWindow = time.Hour

	// RecentVisitsLimit is how many visits the owner's dashboard lists.
	RecentVisitsLimit = 10

	maxUserAgentLength = 512
)

type VisitService struct {
	users  repository.UserRepository
	visits repository.VisitRepository
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewVisitService returns a VisitService that ignores repeat visits from
// the same IP for window. A window of 0 counts every visit.
func NewVisitService(
	users repository.UserRepository,
	visits repository.VisitRepository,
	window time.Duration,
	logger *slog.Logger,
) *VisitService {
	return &VisitService{
		users:  users,
		visits: visits,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// PublicStats is the anonymous view of a profile's counters.
type PublicStats struct {
	Handle string           `json:"handle"`
	Name   string           `json:"name"`
	Stats  model.VisitStats `json:"stats"`
}

// OwnerStats is the signed-in owner's dashboard.
type OwnerStats struct {
	Stats        model.VisitStats    `json:"stats"`
	RecentVisits []model.RecentVisit `json:"recentVisits"`
}

// Record counts a visit to handle's page. It returns false when the same
// IP already visited within the window.
func (s *VisitService) Record(ctx context.Context, handle, visitorIP, userAgent string) (bool, error) {
	// Path handles are not lowercased: "ALICE" is a malformed handle here,
	// not another spelling of "alice".
	handle = strings.TrimSpace(handle)
	if err := ValidateHandle(handle); err != nil {
		return false, err
	}

	user, err := s.users.GetByHandle(ctx, handle)
	if err != nil {
		return false, err
	}

	now := s.now().UTC()

	if s.window > 0 && visitorIP != "" {
		seen, err := s.visits.HasVisitSince(ctx, user.ID, visitorIP, now.Add(-s.window))
		if err != nil {
			return false, fmt.Errorf("service/visit: checking recent visits: %w", err)
		}
		if seen {
			s.logger.Debug("visit not counted",
				slog.String("handle", handle),
				slog.String("ip", visitorIP),
			)
			return false, nil
		}
	}

	visit := &model.Visit{
		UserID:    user.ID,
		VisitorIP: visitorIP,
		UserAgent: truncateUTF8(userAgent, maxUserAgentLength),
		VisitedAt: now,
	}
	if err := s.visits.Create(ctx, visit); err != nil {
		return false, fmt.Errorf("service/visit: recording visit: %w", err)
	}

	s.logger.Debug("visit counted", slog.String("handle", handle))
	return true, nil
}

// PublicStats returns the counters for handle. Anyone may read them.
func (s *VisitService) PublicStats(ctx context.Context, handle string) (*PublicStats, error) {
	handle = strings.TrimSpace(handle)
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}

	user, err := s.users.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	stats, err := s.stats(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &PublicStats{Handle: user.Handle, Name: user.Name, Stats: stats}, nil
}

// OwnerStats returns the caller's counters and their most recent visits.
// Visitor IPs are never included.
func (s *VisitService) OwnerStats(ctx context.Context, id auth.Identity) (*OwnerStats, error) {
	user, err := requireIdentity(ctx, s.users, id)
	if err != nil {
		return nil, err
	}

	stats, err := s.stats(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	visits, err := s.visits.Recent(ctx, user.ID, RecentVisitsLimit)
	if err != nil {
		return nil, fmt.Errorf("service/visit: listing recent visits: %w", err)
	}

	recent := make([]model.RecentVisit, 0, len(visits))
	for _, v := range visits {
		rv := describeAgent(v.UserAgent)
		rv.VisitedAt = v.VisitedAt
		recent = append(recent, rv)
	}

	return &OwnerStats{Stats: stats, RecentVisits: recent}, nil
}

// stats derives every counter from one clock reading and one query.
func (s *VisitService) stats(ctx context.Context, userID string) (model.VisitStats, error) {
	now := s.now().UTC()
	total, since, err := s.visits.Counts(ctx, userID,
		now.AddDate(0, 0, -30),
		now.AddDate(0, 0, -7),
		now.Add(-24*time.Hour),
	)
	if err != nil {
		return model.VisitStats{}, fmt.Errorf("service/visit: counting visits: %w", err)
	}
	if len(since) != 3 {
		return model.VisitStats{}, fmt.Errorf("service/visit: expected 3 windowed counts, got %d", len(since))
	}

	return model.VisitStats{
		TotalVisits: total,
		Last30Days:  since[0],
		Last7Days:   since[1],
		Last24Hours: since[2],
	}, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
