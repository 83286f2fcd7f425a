package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sessionguard/internal/server/middleware"
	"sessionguard/internal/session/domain"
	sessionservice "sessionguard/internal/session/service"
)

// TokenIssuer mints the bearer token returned alongside a new session.
type TokenIssuer interface {
	Issue(sessionID, userID string, expiresAt time.Time) (string, error)
}

// SessionHandler serves the session issuance and self-service endpoints.
type SessionHandler struct {
	sessions *sessionservice.Manager
	tokens   TokenIssuer
	devices  middleware.DeviceResolver
}

func NewSessionHandler(sessions *sessionservice.Manager, tokens TokenIssuer, devices middleware.DeviceResolver) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens, devices: devices}
}

type sessionView struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	DeviceName   string `json:"deviceName"`
	Browser      string `json:"browser"`
	OS           string `json:"os"`
	IPAddress    string `json:"ipAddress"`
	Location     string `json:"location"`
	CreatedAt    string `json:"createdAt"`
	LastActivity string `json:"lastActivity"`
	ExpiresAt    string `json:"expiresAt"`
	IsActive     bool   `json:"isActive"`
	IsSuspicious bool   `json:"isSuspicious"`
	RiskScore    int    `json:"riskScore"`
	IsCurrent    bool   `json:"isCurrent,omitempty"`
}

func toView(s *domain.Session, currentID string) sessionView {
	return sessionView{
		ID:           s.ID,
		UserID:       s.UserID,
		DeviceName:   s.DeviceName,
		Browser:      s.Browser,
		OS:           s.OS,
		IPAddress:    s.IPAddress,
		Location:     s.Location,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		LastActivity: s.LastActivity.UTC().Format(time.RFC3339),
		ExpiresAt:    s.ExpiresAt.UTC().Format(time.RFC3339),
		IsActive:     s.IsActive,
		IsSuspicious: s.IsSuspicious,
		RiskScore:    s.RiskScore,
		IsCurrent:    s.ID == currentID,
	}
}

// Create opens a session for a user the upstream authenticator has already verified.
// Service-to-service: mounted behind the admin token, not the session token.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reqCtx := h.devices.Resolve(r.Context(), r.Header, r.RemoteAddr)
	s, err := h.sessions.Create(r.Context(), req.UserID, reqCtx)
	if err != nil {
		serviceError(w, err)
		return
	}
	token, err := h.tokens.Issue(s.ID, s.UserID, s.ExpiresAt)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": toView(s, s.ID),
		"token":   token,
	})
}

// List returns the caller's active sessions, marking the current one.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessions, err := h.sessions.ListActive(r.Context(), id.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toView(s, id.SessionID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// Delete revokes one of the caller's own sessions.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	target := mux.Vars(r)["id"]
	owned, err := h.sessions.ListActive(r.Context(), id.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	if !containsSession(owned, target) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := h.sessions.Invalidate(r.Context(), target, domain.ReasonUserRequested); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// DeleteAll revokes every session of the caller except the current one.
func (h *SessionHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	count, err := h.sessions.InvalidateAllExcept(r.Context(), id.UserID, id.SessionID, domain.ReasonUserRequestedAll)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": count})
}

// Logout revokes the current session.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.sessions.Invalidate(r.Context(), id.SessionID, domain.ReasonUserRequested); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func containsSession(sessions []*domain.Session, id string) bool {
	for _, s := range sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}
