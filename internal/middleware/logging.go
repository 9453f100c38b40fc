// Package middleware contains the HTTP middleware the router stacks in
// front of the handlers.
//
// WHAT IS MIDDLEWARE?
// A function that wraps a handler to add behaviour shared by many routes
// (request logging, throttling) without touching the handler itself:
//
//	func MyMiddleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // before the handler
//	        next.ServeHTTP(w, r)
//	        // after the handler
//	    })
//	}
//
// Middleware that needs settings (a logger, a limiter) is a constructor
// returning that shape: Logger(logger), Throttle(limiter).
//
// Logger records one line per request; Throttle limits requests per IP.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// responseWriter wraps http.ResponseWriter to capture the status code and
// the number of body bytes, which the standard writer does not expose
// after the fact.
//
// Embedding http.ResponseWriter promotes Header() unchanged; WriteHeader and
// Write are overridden below to record what passes through.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int   // first status written; 200 when the handler only calls Write
	written     int64 // body bytes
	wroteHeader bool  // later WriteHeader calls are superfluous and not recorded
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger logs each completed request: method, path, status, duration,
// bytes, client IP and the request id set by chi's RequestID middleware.
//
// LOG LEVELS:
//   - 5xx        → Error (something on our side broke)
//   - all others → Info (4xx are client mistakes and expected)
//
// A typical line:
//
//	level=INFO msg="request completed" method=POST path=/user/alice/visit status=201 duration=1.2ms bytes=44 ip=203.0.113.7 request_id=host/abc-000001
//
// The request id ties this line to any line a handler logs for the same
// request.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK, // if WriteHeader is never called
			}

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			if wrapped.statusCode >= http.StatusInternalServerError {
				level = slog.LevelError
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("ip", ClientIP(r)),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
