package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"

	auditdomain "sessionguard/internal/audit/domain"
)

// AdminAuditLogger records admin surface activity.
type AdminAuditLogger interface {
	Log(ctx context.Context, e *auditdomain.Event) error
}

// AdminToken gates the admin surface behind a static bearer token compared in
// constant time. An empty configured token disables the surface entirely.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusForbidden, map[string]any{"error": "admin surface disabled"})
				return
			}
			got := bearerToken(r)
			if got == "" {
				got = r.Header.Get("X-Admin-Token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminAudit writes an admin_action audit event for every mutating admin request,
// after the handler has run so Success reflects the actual outcome. Reads pass
// through silently to keep the trail focused on state changes.
func AdminAudit(logger AdminAuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) || logger == nil {
				next.ServeHTTP(w, r)
				return
			}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			e := &auditdomain.Event{
				IPAddress:   clientAddr(r),
				UserAgent:   r.UserAgent(),
				EventType:   auditdomain.EventAdminAction,
				Description: r.Method + " " + r.URL.Path,
				RiskLevel:   auditdomain.RiskMedium,
				Success:     sw.status < http.StatusBadRequest,
			}
			if err := logger.Log(r.Context(), e); err != nil {
				log.Printf("admin audit: %v", err)
			}
		})
	}
}

// statusWriter records the status code written by the handler.
// Handlers that never call WriteHeader implicitly write 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
