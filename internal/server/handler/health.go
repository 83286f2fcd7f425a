package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// PolicyChecker reports whether the decision policy engine is operational.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler answers liveness/readiness probes.
type HealthHandler struct {
	db     *sql.DB
	policy PolicyChecker
}

func NewHealthHandler(db *sql.DB, policy PolicyChecker) *HealthHandler {
	return &HealthHandler{db: db, policy: policy}
}

// Check pings the database and the policy engine. Degraded components are named so
// probes can distinguish which dependency is down.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok", "policy": "ok"}
	healthy := true
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status["database"] = err.Error()
			healthy = false
		}
	}
	if h.policy != nil {
		if err := h.policy.HealthCheck(ctx); err != nil {
			status["policy"] = err.Error()
			healthy = false
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"healthy": healthy, "components": status})
}
