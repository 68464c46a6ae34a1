package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// loggingMiddleware logs HTTP requests with method, path, status, and
// duration, and records them in metrics when m is non-nil.
func loggingMiddleware(logger *log.Logger, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{w, http.StatusOK}
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration", elapsed,
			)
			m.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), rw.statusCode, elapsed)
		})
	}
}

// routeLabel maps a request path to its route pattern so that todo ids do
// not become metric labels.
func routeLabel(path string) string {
	switch {
	case path == "/api/todos":
		return "/api/todos"
	case path == "/api/todos/exists":
		return "/api/todos/exists"
	case strings.HasPrefix(path, "/api/todos/"):
		return "/api/todos/{id}"
	default:
		return "other"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and writes the header.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// authMiddleware enforces API-key authentication via Bearer tokens.
func authMiddleware(validKeys map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="todo"`)
				writeMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			if _, ok := validKeys[token]; !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="todo", error="invalid_token"`)
				writeMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// apiKeySet turns a list of API keys into a lookup set.
func apiKeySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(k); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
