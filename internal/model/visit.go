package model

import "time"

// Visit is one counted view of a profile page. Rows are append-only.
type Visit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	VisitorIP string    `json:"visitorIp"`
	UserAgent string    `json:"userAgent"`
	VisitedAt time.Time `json:"visitedAt"`
}

// VisitStats holds counts derived from the visit log at query time.
// TotalVisits >= Last30Days >= Last7Days >= Last24Hours always holds.
type VisitStats struct {
	TotalVisits int64 `json:"totalVisits"`
	Last30Days  int64 `json:"last30Days"`
	Last7Days   int64 `json:"last7Days"`
	Last24Hours int64 `json:"last24Hours"`
}

// RecentVisit is the owner's view of a visit. The visitor IP is left out.
type RecentVisit struct {
	VisitedAt time.Time `json:"visitedAt"`
	UserAgent string    `json:"userAgent"`
	Browser   string    `json:"browser,omitempty"`
	OS        string    `json:"os,omitempty"`
	Device    string    `json:"device,omitempty"`
}
