package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/middleware"
	"github.com/sakif/devtree/internal/service"
)

// VisitHandler counts profile views and reports the counters.
type VisitHandler struct {
	visits *service.VisitService
	logger *slog.Logger
}

func NewVisitHandler(visits *service.VisitService, logger *slog.Logger) *VisitHandler {
	return &VisitHandler{visits: visits, logger: logger}
}

// VisitResponse tells the client whether its visit was counted.
type VisitResponse struct {
	Message string `json:"message"`
	Counted bool   `json:"counted"`
}

// HandleVisit records a view of a profile.
//
// HTTP: POST /user/{handle}/visit
//
// RESPONSE:
//
//	201 {"message":"visit recorded","counted":true}
//	200 {"message":"visit already counted recently","counted":false}
func (h *VisitHandler) HandleVisit(w http.ResponseWriter, r *http.Request) {
	counted, err := h.visits.Record(r.Context(),
		chi.URLParam(r, "handle"),
		middleware.ClientIP(r),
		r.UserAgent(),
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if !counted {
		writeJSON(w, http.StatusOK, VisitResponse{Message: "visit already counted recently", Counted: false})
		return
	}
	writeJSON(w, http.StatusCreated, VisitResponse{Message: "visit recorded", Counted: true})
}

// HandleStats returns the public counters of a profile.
//
// HTTP: GET /user/{handle}/stats
func (h *VisitHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.visits.PublicStats(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleMyStats returns the caller's counters and recent visits.
//
// HTTP: GET /user/my-stats
// Auth: Required
func (h *VisitHandler) HandleMyStats(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	stats, err := h.visits.OwnerStats(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
