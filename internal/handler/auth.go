// Package handler contains the HTTP handlers of the profile API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, query, JSON body)
//  2. Call the service layer with the caller's Identity
//  3. Write the response through writeJSON / writeError
//
// Handlers hold no business rules: a handler never decides whether a
// handle is valid or a visit counts, it only translates HTTP to service
// calls and service errors back to status codes.
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/devtree/internal/apperror"
	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler manages accounts and sessions.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister        → create an email + password account
//   - HandleLogin           → check credentials, issue the JWT cookie
//   - HandleLogout          → clear the JWT cookie
//   - HandleGitHubLogin     → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback  → exchange the code, sign in, issue the JWT cookie
//   - HandleCheckHandle     → tell the sign-up form whether a handle is free
//   - HandleMe              → return the signed-in user
//
// github is nil when GitHub sign-in is not configured; the server then
// does not register the two GitHub routes.
type AuthHandler struct {
	auth        *service.AuthService
	tokens      *auth.TokenService
	github      *auth.GitHubProvider
	frontendURL string
	logger      *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	tokens *auth.TokenService,
	github *auth.GitHubProvider,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:        authService,
		tokens:      tokens,
		github:      github,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// HandleRegister creates an account.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"handle":"alice","name":"Alice","email":"a@example.com","password":"..."}
// RESPONSE: 201 {"message":"account created"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if _, err := h.auth.Register(r.Context(), in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "account created"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries the access token for clients that do not use
// cookies.
type TokenResponse struct {
	Token string `json:"token"`
}

// HandleLogin checks an email + password pair.
//
// HTTP: POST /auth/login
// RESPONSE: 200 {"token":"<jwt>"} plus the same token in an HttpOnly cookie
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		writeError(w, h.logger, apperror.ValidationFailed("email", "email and password are required"))
		return
	}

	result, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setTokenCookie(w, r, result.Token)
	writeJSON(w, http.StatusOK, TokenResponse{Token: result.Token})
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so "logout" only removes the cookie. A copied
// token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match, which
// proves this server started the flow.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := auth.NewState()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Sign in or create the matching account
//  4. Issue the JWT cookie and redirect to the admin page
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || query.Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: invalid state")
		writeError(w, h.logger, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendURL+"/auth/login?auth=denied", http.StatusSeeOther)
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, h.logger, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.frontendURL+"/auth/login?auth=failed", http.StatusSeeOther)
		return
	}

	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, h.frontendURL+"/auth/login?auth=failed", http.StatusSeeOther)
		return
	}

	h.logger.Info("user authenticated via GitHub",
		slog.String("userID", result.User.ID),
		slog.String("login", ghUser.Login),
	)

	h.setTokenCookie(w, r, result.Token)
	http.Redirect(w, r, h.frontendURL+"/admin", http.StatusSeeOther)
}

// HandleCheckHandle reports whether a handle is free.
//
// HTTP: GET /auth/check-handle?handle=alice
// RESPONSE: {"available": true}
func (h *AuthHandler) HandleCheckHandle(w http.ResponseWriter, r *http.Request) {
	available, err := h.auth.CheckHandle(r.Context(), r.URL.Query().Get("handle"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// HandleMe returns the signed-in user, links included.
//
// HTTP: GET /user
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	user, err := h.auth.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// setTokenCookie stores the JWT in an HttpOnly cookie that lives as long
// as the token. HttpOnly keeps it away from JavaScript; Lax keeps it off
// cross-site POSTs.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
