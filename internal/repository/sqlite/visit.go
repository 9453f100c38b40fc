package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/devtree/internal/model"
	"github.com/sakif/devtree/internal/repository"
)

var _ repository.VisitRepository = (*VisitDB)(nil)

// VisitDB is the append-only visit log. Nothing here updates or deletes.
type VisitDB struct {
	conn *sql.DB
}

// Create appends a visit. ID is generated here; VisitedAt defaults to now.
func (db *VisitDB) Create(ctx context.Context, v *model.Visit) error {
	v.ID = xid.New().String()
	if v.VisitedAt.IsZero() {
		v.VisitedAt = time.Now()
	}
	v.VisitedAt = v.VisitedAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO visits (id, user_id, visitor_ip, user_agent, visited_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.ID,
		v.UserID,
		v.VisitorIP,
		v.UserAgent,
		v.VisitedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording visit for user %s: %w", v.UserID, err)
	}

	return nil
}

// HasVisitSince reports whether visitorIP has a visit on userID's page at
// or after since. Served by idx_visits_user_ip_time.
func (db *VisitDB) HasVisitSince(ctx context.Context, userID, visitorIP string, since time.Time) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM visits
			WHERE user_id = ? AND visitor_ip = ? AND visited_at >= ?
		)`,
		userID, visitorIP, since.UTC().UnixNano(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: looking up recent visit for user %s: %w", userID, err)
	}
	return exists, nil
}

// Counts computes the total and every windowed count in a single SELECT,
// so a visit inserted concurrently is either in all of them or in none.
//
// For cutoffs (a, b) the statement is:
//
//	SELECT COUNT(*),
//	       COALESCE(SUM(CASE WHEN visited_at >= ? THEN 1 ELSE 0 END), 0),
//	       COALESCE(SUM(CASE WHEN visited_at >= ? THEN 1 ELSE 0 END), 0)
//	FROM visits WHERE user_id = ?
func (db *VisitDB) Counts(ctx context.Context, userID string, cutoffs ...time.Time) (int64, []int64, error) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*)")
	args := make([]any, 0, len(cutoffs)+1)
	for _, c := range cutoffs {
		b.WriteString(", COALESCE(SUM(CASE WHEN visited_at >= ? THEN 1 ELSE 0 END), 0)")
		args = append(args, c.UTC().UnixNano())
	}
	b.WriteString(" FROM visits WHERE user_id = ?")
	args = append(args, userID)

	var total int64
	since := make([]int64, len(cutoffs))
	dest := make([]any, 0, len(cutoffs)+1)
	dest = append(dest, &total)
	for i := range since {
		dest = append(dest, &since[i])
	}

	if err := db.conn.QueryRowContext(ctx, b.String(), args...).Scan(dest...); err != nil {
		return 0, nil, fmt.Errorf("sqlite: counting visits for user %s: %w", userID, err)
	}
	return total, since, nil
}

// Recent returns up to limit visits for userID, newest first.
func (db *VisitDB) Recent(ctx context.Context, userID string, limit int) ([]model.Visit, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, visitor_ip, user_agent, visited_at
		 FROM visits
		 WHERE user_id = ?
		 ORDER BY visited_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing visits for user %s: %w", userID, err)
	}
	defer rows.Close()

	visits := make([]model.Visit, 0, limit)
	for rows.Next() {
		var (
			v     model.Visit
			nanos int64
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.VisitorIP, &v.UserAgent, &nanos); err != nil {
			return nil, fmt.Errorf("sqlite: scanning visit row: %w", err)
		}
		v.VisitedAt = time.Unix(0, nanos).UTC()
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating visits: %w", err)
	}

	return visits, nil
}
