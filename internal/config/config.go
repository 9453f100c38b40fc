// Package config loads server settings from the environment.
//
// A .env file (path from ENV_FILE, default ".env") is read first with
// godotenv. It never overrides variables already set in the real
// environment, so a deployment can ship a .env with defaults and still
// override single values. Every value has a fallback except JWT_SECRET.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
	TokenTTL  time.Duration
	// FrontendURLs are the browser origins allowed by CORS. The first one is
	// where the GitHub callback sends the user afterwards.
	FrontendURLs []string
	GitHub       GitHubConfig

	// VisitDedupWindow: repeat visits from one IP inside this window are not
	// counted. 0 counts every visit.
	VisitDedupWindow time.Duration
	// VisitRateLimit and VisitRateBurst throttle POST /user/{handle}/visit
	// per client IP (requests per second, bucket size).
	VisitRateLimit float64
	VisitRateBurst int

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a reverse proxy that overwrites those headers:
	// otherwise any client picks its own IP and escapes visit dedup and
	// the throttle.
	TrustProxy bool

	LogLevel slog.Level

	// EnvFile is the .env file that was loaded, empty if none was found.
	EnvFile string
}

// Load reads the configuration. Malformed values are errors rather than
// silently replaced by defaults.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	loaded := ""
	if err := godotenv.Load(envFile); err == nil {
		loaded = envFile
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
	}

	var errs []error
	cfg := &Config{
		DBPath:    getEnv("DB_PATH", "data/devtree.db"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		GitHub: GitHubConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("GITHUB_CALLBACK_URL", ""),
		},
		EnvFile: loaded,
	}

	cfg.Port = getInt("PORT", 8080, &errs)
	cfg.TokenTTL = getDuration("TOKEN_TTL", 24*time.Hour, &errs)
	cfg.VisitDedupWindow = getDuration("VISIT_DEDUP_WINDOW", time.Hour, &errs)
	cfg.VisitRateLimit = getFloat("VISIT_RATE_LIMIT", 5, &errs)
	cfg.VisitRateBurst = getInt("VISIT_RATE_BURST", 10, &errs)
	cfg.TrustProxy = getBool("TRUST_PROXY", false, &errs)
	cfg.FrontendURLs = splitList(getEnv("FRONTEND_URL", "http://localhost:5173"))

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	errs = append(errs, cfg.validate()...)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be set to at least 16 characters"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.VisitDedupWindow < 0 {
		errs = append(errs, errors.New("VISIT_DEDUP_WINDOW must not be negative"))
	}
	if c.VisitRateLimit <= 0 || c.VisitRateBurst <= 0 {
		errs = append(errs, errors.New("VISIT_RATE_LIMIT and VISIT_RATE_BURST must be positive"))
	}
	return errs
}

// CORSOptions allows the configured frontends to call the API with the
// token cookie attached.
func (c *Config) CORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   c.FrontendURLs,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64, errs *[]error) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a number", key, raw))
		return fallback
	}
	return f
}

// getBool accepts the forms strconv.ParseBool knows: 1, t, true, 0, f, false...
func getBool(key string, fallback bool, errs *[]error) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return fallback
	}
	return b
}

// getDuration accepts Go durations ("90m", "1h") and a bare "0".
func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimRight(strings.TrimSpace(part), "/"); part != "" {
			out = append(out, part)
		}
	}
	return out
}
