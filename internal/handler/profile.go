package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/devtree/internal/apperror"
	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/links"
	"github.com/sakif/devtree/internal/service"
)

// ProfileHandler serves public profiles and the owner's editing endpoints.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// LinksResponse is returned by every link edit: the full updated list.
type LinksResponse struct {
	Links links.List `json:"links"`
}

// HandleGetPublic returns a profile as anonymous visitors see it.
//
// HTTP: GET /user/{handle}
func (h *ProfileHandler) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetPublicProfile(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdate applies a PATCH to the caller's profile and returns the
// updated user.
//
// HTTP: PATCH /user
// REQUEST BODY: {"handle":"alice","description":"...","links":"[...]"}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	user, err := h.profiles.UpdateProfile(r.Context(), id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type urlRequest struct {
	URL string `json:"url"`
}

// HandleToggleLink enables or disables one network.
//
// HTTP: POST /links/{network}/toggle
// REQUEST BODY: {"url":"https://github.com/alice"} (optional when disabling,
// or when re-enabling with the stored URL)
func (h *ProfileHandler) HandleToggleLink(w http.ResponseWriter, r *http.Request) {
	var in urlRequest
	if err := decodeOptionalJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	updated, err := h.profiles.ToggleLink(r.Context(), id, chi.URLParam(r, "network"), in.URL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{Links: updated})
}

// HandleSetLinkURL changes the URL of one network.
//
// HTTP: PUT /links/{network}/url
// REQUEST BODY: {"url":"https://github.com/alice"}
func (h *ProfileHandler) HandleSetLinkURL(w http.ResponseWriter, r *http.Request) {
	var in urlRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	updated, err := h.profiles.SetLinkURL(r.Context(), id, chi.URLParam(r, "network"), in.URL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{Links: updated})
}

type reorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// HandleReorder moves an enabled link to another position.
//
// HTTP: POST /links/reorder
// REQUEST BODY: {"from":3,"to":1}
func (h *ProfileHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	var in reorderRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if in.From < 1 || in.To < 1 {
		writeError(w, h.logger, apperror.ValidationFailed("from", "positions start at 1"))
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	updated, err := h.profiles.ReorderLinks(r.Context(), id, in.From, in.To)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{Links: updated})
}

// HandleRemoveLink disables the link at a position (the "trash" drop).
//
// HTTP: DELETE /links/{id}
func (h *ProfileHandler) HandleRemoveLink(w http.ResponseWriter, r *http.Request) {
	linkID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || linkID < 1 {
		writeError(w, h.logger, apperror.ValidationFailed("id", "link id must be a positive integer"))
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	updated, err := h.profiles.RemoveLink(r.Context(), id, linkID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{Links: updated})
}
