package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	devicedomain "sessionguard/internal/device/domain"
	"sessionguard/internal/risk"
	sessionservice "sessionguard/internal/session/service"
)

// SessionValidator is the slice of the session manager the middleware needs.
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string, reqCtx devicedomain.RequestContext) (sessionservice.ValidationResult, error)
}

// TokenValidator verifies a bearer token and returns the session and user it names.
type TokenValidator interface {
	Validate(token string) (sessionID, userID string, err error)
}

// DeviceResolver builds the request context the validator scores against.
type DeviceResolver interface {
	Resolve(ctx context.Context, headers http.Header, remoteAddr string) devicedomain.RequestContext
}

// SessionAuth authenticates requests with a bearer session token, re-validates the
// session against the fresh request context, and attaches the identity. Store
// failures produce 401, never a pass-through.
func SessionAuth(sessions SessionValidator, tokens TokenValidator, devices DeviceResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, []string{"missing_token"})
				return
			}
			sessionID, userID, err := tokens.Validate(raw)
			if err != nil {
				unauthorized(w, []string{"invalid_token"})
				return
			}

			reqCtx := devices.Resolve(r.Context(), r.Header, r.RemoteAddr)
			result, err := sessions.Validate(r.Context(), sessionID, reqCtx)
			if err != nil {
				log.Printf("auth: session validation failed: %v", err)
				unauthorized(w, []string{"validation_unavailable"})
				return
			}
			if !result.Valid {
				if result.Risk == risk.LevelCritical {
					forbidden(w, result.Risk, result.Reasons)
					return
				}
				unauthorized(w, result.Reasons)
				return
			}

			w.Header().Set("X-Risk-Level", string(result.Risk))
			id := Identity{UserID: userID, SessionID: sessionID, Risk: result.Risk}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter, reasons []string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error":   "unauthorized",
		"reasons": reasons,
	})
}

func forbidden(w http.ResponseWriter, level risk.Level, reasons []string) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"error":   "session_blocked",
		"risk":    string(level),
		"reasons": reasons,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("auth: write response: %v", err)
	}
}
