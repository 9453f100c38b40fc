package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/config"
	"github.com/sakif/devtree/internal/links"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             8080,
		DBPath:           ":memory:",
		JWTSecret:        "test-secret-at-least-16-chars!!",
		TokenTTL:         time.Hour,
		FrontendURLs:     []string{"http://localhost:5173"},
		VisitDedupWindow: time.Hour,
		VisitRateLimit:   100,
		VisitRateBurst:   100,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.Handler()
}

type call struct {
	method string
	path   string
	body   string
	token  string
	ip     string // socket address of the client
	xff    string // X-Forwarded-For header
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.ip != "" {
		req.RemoteAddr = c.ip + ":5555"
	}
	if c.xff != "" {
		req.Header.Set("X-Forwarded-For", c.xff)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

// register creates alice and returns her token.
func register(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := do(t, h, call{method: http.MethodPost, path: "/auth/register",
		body: `{"handle":"alice","name":"Alice","email":"alice@example.com","password":"correct-horse"}`})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, h, call{method: http.MethodPost, path: "/auth/login",
		body: `{"email":"alice@example.com","password":"correct-horse"}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[map[string]string](t, rr)["token"]
}

// =========================================================================
// ACCOUNT FLOW
// =========================================================================

func TestAccountFlow(t *testing.T) {
	h := newTestServer(t, testConfig())
	token := register(t, h)
	require.NotEmpty(t, token)

	t.Run("duplicate handle is 409", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPost, path: "/auth/register",
			body: `{"handle":"Alice","name":"A2","email":"other@example.com","password":"correct-horse"}`})
		assert.Equal(t, http.StatusConflict, rr.Code)
		body := decode[map[string]string](t, rr)
		assert.Equal(t, "conflict", body["code"])
		assert.Equal(t, "handle", body["field"])
		assert.NotEmpty(t, body["error"])
	})

	t.Run("bad password is 401", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPost, path: "/auth/login",
			body: `{"email":"alice@example.com","password":"wrong-horse"}`})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("login sets HttpOnly cookie", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPost, path: "/auth/login",
			body: `{"email":"alice@example.com","password":"correct-horse"}`})
		var cookie *http.Cookie
		for _, c := range rr.Result().Cookies() {
			if c.Name == auth.TokenCookie {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, 3600, cookie.MaxAge)
	})

	t.Run("GET /user requires auth", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodGet, path: "/user"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("GET /user returns links as an encoded string", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodGet, path: "/user", token: token})
		require.Equal(t, http.StatusOK, rr.Code)

		body := decode[map[string]any](t, rr)
		assert.Equal(t, "alice", body["handle"])
		assert.NotContains(t, body, "password")
		assert.NotContains(t, body, "PasswordHash")

		encoded, ok := body["links"].(string)
		require.True(t, ok, "links should be a JSON string, got %T", body["links"])
		decoded, err := links.Decode(encoded)
		require.NoError(t, err)
		assert.Len(t, decoded, len(links.Catalog()))
	})

	t.Run("check-handle", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodGet, path: "/auth/check-handle?handle=ALICE"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"available":false}`, rr.Body.String())

		rr = do(t, h, call{method: http.MethodGet, path: "/auth/check-handle?handle=bob"})
		assert.JSONEq(t, `{"available":true}`, rr.Body.String())

		rr = do(t, h, call{method: http.MethodGet, path: "/auth/check-handle?handle=a"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("logout clears cookie", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPost, path: "/auth/logout"})
		require.Equal(t, http.StatusOK, rr.Code)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})

	t.Run("GitHub routes absent when not configured", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodGet, path: "/auth/github/login"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

// =========================================================================
// PROFILE AND LINKS
// =========================================================================

func TestProfileAndLinks(t *testing.T) {
	h := newTestServer(t, testConfig())
	token := register(t, h)

	rr := do(t, h, call{method: http.MethodPost, path: "/links/github/toggle", token: token,
		body: `{"url":"https://github.com/alice"}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, call{method: http.MethodPost, path: "/links/x/toggle", token: token,
		body: `{"url":"https://x.com/alice"}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, call{method: http.MethodPost, path: "/links/reorder", token: token,
		body: `{"from":2,"to":1}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	t.Run("public profile shows enabled links in order", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodGet, path: "/user/alice"})
		require.Equal(t, http.StatusOK, rr.Code)

		type publicProfile struct {
			Handle string     `json:"handle"`
			Links  links.List `json:"links"`
		}
		profile := decode[publicProfile](t, rr)
		assert.Equal(t, "alice", profile.Handle)
		require.Len(t, profile.Links, 2)
		assert.Equal(t, "x", profile.Links[0].Name)
		assert.Equal(t, "github", profile.Links[1].Name)
	})

	t.Run("invalid URL is 400 and changes nothing", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPost, path: "/links/youtube/toggle", token: token,
			body: `{"url":"not-a-url"}`})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "url", decode[map[string]string](t, rr)["field"])
	})

	t.Run("unknown network is 400", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPut, path: "/links/myspace/url", token: token,
			body: `{"url":"https://myspace.com/a"}`})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("remove by position", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodDelete, path: "/links/1", token: token})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = do(t, h, call{method: http.MethodDelete, path: "/links/5", token: token})
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = do(t, h, call{method: http.MethodDelete, path: "/links/abc", token: token})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("PATCH /user", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPatch, path: "/user", token: token,
			body: `{"_id":"ignored","handle":"alice-dev","description":"hello"}`})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = do(t, h, call{method: http.MethodGet, path: "/user/alice-dev"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "hello", decode[map[string]any](t, rr)["description"])

		rr = do(t, h, call{method: http.MethodGet, path: "/user/alice"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("link routes require auth", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodPost, path: "/links/reorder", body: `{"from":1,"to":2}`})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// =========================================================================
// VISITS
// =========================================================================

func TestVisitsAndStats(t *testing.T) {
	h := newTestServer(t, testConfig())
	token := register(t, h)

	visit := func(handle, ip string) *httptest.ResponseRecorder {
		return do(t, h, call{method: http.MethodPost, path: "/user/" + handle + "/visit", ip: ip})
	}

	rr := visit("alice", "1.2.3.4")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rr)["counted"])

	rr = visit("alice", "1.2.3.4")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode[map[string]any](t, rr)["counted"])

	rr = visit("alice", "5.6.7.8")
	require.Equal(t, http.StatusCreated, rr.Code)

	assert.Equal(t, http.StatusNotFound, visit("ghost", "1.2.3.4").Code)
	assert.Equal(t, http.StatusBadRequest, visit("A!", "1.2.3.4").Code)

	t.Run("public stats", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodGet, path: "/user/alice/stats"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t,
			`{"handle":"alice","name":"Alice","stats":{"totalVisits":2,"last30Days":2,"last7Days":2,"last24Hours":2}}`,
			rr.Body.String())
	})

	t.Run("my-stats hides IPs", func(t *testing.T) {
		rr := do(t, h, call{method: http.MethodGet, path: "/user/my-stats"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = do(t, h, call{method: http.MethodGet, path: "/user/my-stats", token: token})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.NotContains(t, rr.Body.String(), "1.2.3.4")

		var body struct {
			Stats struct {
				TotalVisits int64 `json:"totalVisits"`
			} `json:"stats"`
			RecentVisits []map[string]any `json:"recentVisits"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, int64(2), body.Stats.TotalVisits)
		assert.Len(t, body.RecentVisits, 2)
	})
}

func TestVisitThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.VisitDedupWindow = 0
	cfg.VisitRateLimit = 0.01
	cfg.VisitRateBurst = 2
	h := newTestServer(t, cfg)
	register(t, h)

	for range 2 {
		rr := do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "9.9.9.9"})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "9.9.9.9"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "8.8.8.8"})
	assert.Equal(t, http.StatusCreated, rr.Code, "other IPs are not throttled")

	rr = do(t, h, call{method: http.MethodGet, path: "/user/alice/stats", ip: "9.9.9.9"})
	assert.Equal(t, http.StatusOK, rr.Code, "only the visit route is throttled")
}

func TestVisit_ForwardedHeaders(t *testing.T) {
	t.Run("ignored by default", func(t *testing.T) {
		h := newTestServer(t, testConfig())
		register(t, h)

		rr := do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "1.2.3.4", xff: "10.0.0.1"})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, true, decode[map[string]any](t, rr)["counted"])

		rr = do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "1.2.3.4", xff: "10.0.0.2"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, false, decode[map[string]any](t, rr)["counted"], "same socket address, new header")
	})

	t.Run("ignored by the throttle", func(t *testing.T) {
		cfg := testConfig()
		cfg.VisitDedupWindow = 0
		cfg.VisitRateLimit = 0.01
		cfg.VisitRateBurst = 1
		h := newTestServer(t, cfg)
		register(t, h)

		rr := do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "1.2.3.4", xff: "10.0.0.1"})
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "1.2.3.4", xff: "10.0.0.2"})
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})

	t.Run("honored with TrustProxy", func(t *testing.T) {
		cfg := testConfig()
		cfg.TrustProxy = true
		h := newTestServer(t, cfg)
		register(t, h)

		for _, xff := range []string{"10.0.0.1", "10.0.0.2"} {
			rr := do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "127.0.0.1", xff: xff})
			require.Equal(t, http.StatusCreated, rr.Code, "X-Forwarded-For %s", xff)
		}

		rr := do(t, h, call{method: http.MethodPost, path: "/user/alice/visit", ip: "127.0.0.1", xff: "10.0.0.1"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestVisit_HandleMustBeLowercase(t *testing.T) {
	h := newTestServer(t, testConfig())
	token := register(t, h)

	rr := do(t, h, call{method: http.MethodPost, path: "/user/ALICE/visit", ip: "1.2.3.4"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = do(t, h, call{method: http.MethodGet, path: "/user/ALICE/stats"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, call{method: http.MethodGet, path: "/user/my-stats", token: token})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[map[string]any](t, rr)["recentVisits"], "no row written")
}

// =========================================================================
// INFRASTRUCTURE
// =========================================================================

func TestHealth(t *testing.T) {
	h := newTestServer(t, testConfig())

	rr := do(t, h, call{method: http.MethodGet, path: "/health"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/user", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/user", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_RejectsShortSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "short"

	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
