package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	alertdomain "sessionguard/internal/alert/domain"
	alertrepo "sessionguard/internal/alert/repository"
	auditdomain "sessionguard/internal/audit/domain"
	auditrepo "sessionguard/internal/audit/repository"
	"sessionguard/internal/policy/domain"
	"sessionguard/internal/policy/engine"
	policyrepo "sessionguard/internal/policy/repository"
	sessiondomain "sessionguard/internal/session/domain"
	sessionservice "sessionguard/internal/session/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AuditLogger records ingested events through the escalating audit pipeline.
type AuditLogger interface {
	Log(ctx context.Context, e *auditdomain.Event) error
}

// AdminHandler serves the operator surface: user session management, alert
// thresholds, the audit trail, fired alerts, and decision policies.
type AdminHandler struct {
	sessions *sessionservice.Manager
	audits   auditrepo.Repository
	logger   AuditLogger
	alerts   alertrepo.Repository
	policies policyrepo.Repository
	nowF     func() time.Time
}

func NewAdminHandler(sessions *sessionservice.Manager, audits auditrepo.Repository, logger AuditLogger, alerts alertrepo.Repository, policies policyrepo.Repository) *AdminHandler {
	return &AdminHandler{sessions: sessions, audits: audits, logger: logger, alerts: alerts, policies: policies, nowF: time.Now}
}

// UserSessions lists a user's active sessions.
func (h *AdminHandler) UserSessions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	sessions, err := h.sessions.ListActive(r.Context(), userID)
	if err != nil {
		serviceError(w, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toView(s, ""))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// ForceInvalidate terminates any session by ID with reason admin_action.
func (h *AdminHandler) ForceInvalidate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sessions.Invalidate(r.Context(), id, sessiondomain.ReasonAdminAction); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ForceInvalidateUser terminates all of a user's sessions.
func (h *AdminHandler) ForceInvalidateUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	count, err := h.sessions.InvalidateAllExcept(r.Context(), userID, "", sessiondomain.ReasonAdminAction)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": count})
}

// Cleanup runs expired-session cleanup on demand, optionally scoped to one user.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var userID *string
	if v := r.URL.Query().Get("userId"); v != "" {
		userID = &v
	}
	count, err := h.sessions.CleanupExpired(r.Context(), userID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleaned": count})
}

type thresholdView struct {
	Metric    string  `json:"metric"`
	Warning   float64 `json:"warning"`
	Critical  float64 `json:"critical"`
	Direction string  `json:"direction"`
}

// ListThresholds returns the stored alert thresholds.
func (h *AdminHandler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	stored, err := h.alerts.ListThresholds(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	views := make([]thresholdView, 0, len(stored))
	for _, t := range stored {
		views = append(views, thresholdView{
			Metric:    string(t.Metric),
			Warning:   t.Warning,
			Critical:  t.Critical,
			Direction: string(t.Direction),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": views})
}

// PutThreshold creates or replaces the threshold for a metric.
func (h *AdminHandler) PutThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdView
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	metric := alertdomain.Metric(mux.Vars(r)["metric"])
	if req.Metric != "" && req.Metric != string(metric) {
		writeError(w, http.StatusBadRequest, "metric in body does not match path")
		return
	}
	t := &alertdomain.Threshold{
		Metric:    metric,
		Warning:   req.Warning,
		Critical:  req.Critical,
		Direction: alertdomain.Direction(req.Direction),
		UpdatedAt: h.nowF().UTC(),
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.alerts.UpsertThreshold(r.Context(), t); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// AuditEvents queries the audit trail with optional filters.
func (h *AdminHandler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := auditdomain.Filter{
		UserID:    q.Get("userId"),
		EventType: auditdomain.EventType(q.Get("eventType")),
		RiskLevel: auditdomain.RiskLevel(q.Get("riskLevel")),
		Limit:     parseLimit(q.Get("limit")),
		Offset:    parseOffset(q.Get("offset")),
	}
	if f.EventType != "" && !f.EventType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		f.Until = t
	}
	events, err := h.audits.List(r.Context(), f)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": eventViews(events)})
}

// IngestAuditEvent records an event reported by an upstream service (e.g. the
// authenticator posting login_failure or password_change). Events flow through the
// escalating logger, so critical ones raise alerts like internally produced events.
func (h *AdminHandler) IngestAuditEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string         `json:"userId"`
		Email       string         `json:"email"`
		IPAddress   string         `json:"ipAddress"`
		UserAgent   string         `json:"userAgent"`
		EventType   string         `json:"eventType"`
		Description string         `json:"description"`
		Metadata    map[string]any `json:"metadata"`
		RiskLevel   string         `json:"riskLevel"`
		Success     bool           `json:"success"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e := &auditdomain.Event{
		UserID:      req.UserID,
		Email:       req.Email,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		EventType:   auditdomain.EventType(req.EventType),
		Description: req.Description,
		Metadata:    req.Metadata,
		RiskLevel:   auditdomain.RiskLevel(req.RiskLevel),
		Success:     req.Success,
	}
	if err := h.logger.Log(r.Context(), e); err != nil {
		if !e.EventType.Valid() || !e.RiskLevel.Valid() {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": e.ID})
}

type eventView struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId,omitempty"`
	IPAddress   string         `json:"ipAddress,omitempty"`
	EventType   string         `json:"eventType"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	RiskLevel   string         `json:"riskLevel"`
	Success     bool           `json:"success"`
	CreatedAt   string         `json:"createdAt"`
}

func eventViews(events []*auditdomain.Event) []eventView {
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:          e.ID,
			UserID:      e.UserID,
			IPAddress:   e.IPAddress,
			EventType:   string(e.EventType),
			Description: e.Description,
			Metadata:    e.Metadata,
			RiskLevel:   string(e.RiskLevel),
			Success:     e.Success,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return views
}

// Alerts lists fired alerts, default window 24h.
func (h *AdminHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	since := h.nowF().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = t
	}
	alerts, err := h.alerts.ListAlerts(r.Context(), since, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

type policyView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Rules   string `json:"rules"`
	Enabled bool   `json:"enabled"`
}

// ListPolicies returns all decision policies.
func (h *AdminHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.List(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	views := make([]policyView, 0, len(policies))
	for _, p := range policies {
		views = append(views, policyView{ID: p.ID, Name: p.Name, Rules: p.Rules, Enabled: p.Enabled})
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": views})
}

// CreatePolicy stores a new decision policy after compiling its Rego rules.
func (h *AdminHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyView
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := engine.ValidateRules(req.Rules); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := h.nowF().UTC()
	p := &domain.DecisionPolicy{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Rules:     req.Rules,
		Enabled:   req.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.policies.Create(r.Context(), p); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, policyView{ID: p.ID, Name: p.Name, Rules: p.Rules, Enabled: p.Enabled})
}

// UpdatePolicy replaces a stored policy's name, rules, and enabled flag.
func (h *AdminHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.policies.GetByID(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "policy not found")
		return
	}
	var req policyView
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Rules != "" {
		if err := engine.ValidateRules(req.Rules); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		existing.Rules = req.Rules
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	existing.Enabled = req.Enabled
	existing.UpdatedAt = h.nowF().UTC()
	if err := h.policies.Update(r.Context(), existing); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policyView{ID: existing.ID, Name: existing.Name, Rules: existing.Rules, Enabled: existing.Enabled})
}

func parseLimit(v string) int32 {
	if v == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return int32(n)
}

func parseOffset(v string) int32 {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return int32(n)
}
