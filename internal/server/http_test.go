package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	auditdomain "sessionguard/internal/audit/domain"
	"sessionguard/internal/device"
	"sessionguard/internal/risk"
	"sessionguard/internal/security"
	"sessionguard/internal/server/handler"
	sessiondomain "sessionguard/internal/session/domain"
	sessionservice "sessionguard/internal/session/service"
)

const adminToken = "test-admin-token"

// memoryRepo mirrors the Postgres repository's conditional-write semantics.
type memoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *memoryRepo) CreateCapped(_ context.Context, s *sessiondomain.Session, maxActive int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []*sessiondomain.Session
	for _, existing := range r.sessions {
		if existing.IsActive && existing.UserID == s.UserID {
			active = append(active, existing)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].LastActivity.Before(active[j].LastActivity) })
	var evicted []string
	for len(active) > maxActive-1 {
		victim := active[0]
		active = active[1:]
		reason := sessiondomain.ReasonConcurrentLimit
		at := s.CreatedAt
		victim.IsActive = false
		victim.InvalidatedAt = &at
		victim.InvalidationReason = &reason
		evicted = append(evicted, victim.ID)
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return evicted, nil
}

func (r *memoryRepo) ListActiveByUser(_ context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.sessions {
		if s.IsActive && s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) CountByUserSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.sessions {
		if s.UserID == userID && !s.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) UpdateActivity(_ context.Context, id string, at time.Time, riskScore int, suspicious bool, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.IsActive {
		s.LastActivity = at
		s.RiskScore = riskScore
		s.IsSuspicious = suspicious
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (r *memoryRepo) Invalidate(_ context.Context, id string, reason sessiondomain.InvalidationReason, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.InvalidatedAt = &at
	s.InvalidationReason = &reason
	return true, nil
}

func (r *memoryRepo) InvalidateAllExcept(_ context.Context, userID, keepID string, reason sessiondomain.InvalidationReason, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.sessions {
		if s.IsActive && s.UserID == userID && s.ID != keepID {
			s.IsActive = false
			s.InvalidatedAt = &at
			s.InvalidationReason = &reason
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) InvalidateExpired(_ context.Context, userID *string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.sessions {
		if s.IsActive && now.After(s.ExpiresAt) && (userID == nil || s.UserID == *userID) {
			reason := sessiondomain.ReasonExpired
			s.IsActive = false
			s.InvalidatedAt = &now
			s.InvalidationReason = &reason
			count++
		}
	}
	return count, nil
}

type noopAudit struct{}

func (noopAudit) Log(context.Context, *auditdomain.Event) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := &memoryRepo{sessions: make(map[string]*sessiondomain.Session)}
	manager := sessionservice.NewManager(
		repo, noopAudit{}, nil, nil, nil,
		risk.NewTimeoutPolicy(24*time.Hour), risk.DefaultConfig(), 5, time.Second,
	)
	tokens, err := security.NewTokenProvider([]byte("router-test-signing-key-32-bytes!!"), "sessionguard", "sessionguard-api")
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	devices := device.NewHeaderResolver(nil, time.Second)

	srv := New(":0", Deps{
		Sessions:       manager,
		Tokens:         tokens,
		Devices:        devices,
		SessionHandler: handler.NewSessionHandler(manager, tokens, devices),
		AdminHandler:   handler.NewAdminHandler(manager, nil, nil, nil, nil),
		HealthHandler:  handler.NewHealthHandler(nil, nil),
		AdminToken:     adminToken,
		AdminAudit:     nil,
	})
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

const testUA = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

func issueSession(t *testing.T, ts *httptest.Server, userID string) (token string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"userId": userID})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("User-Agent", testUA)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Token == "" {
		t.Fatal("empty token")
	}
	return out.Token
}

func do(t *testing.T, ts *httptest.Server, method, path, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, ts.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", testUA)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSessionRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	token := issueSession(t, ts, "u-1")

	resp := do(t, ts, http.MethodGet, "/v1/sessions", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Risk-Level"); got != "low" {
		t.Errorf("X-Risk-Level = %q, want low", got)
	}
	var list struct {
		Sessions []struct {
			ID        string `json:"id"`
			IsCurrent bool   `json:"isCurrent"`
		} `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 1 || !list.Sessions[0].IsCurrent {
		t.Fatalf("sessions = %+v", list.Sessions)
	}

	// Logout, then any further use of the token is rejected.
	if resp := do(t, ts, http.MethodPost, "/v1/logout", token); resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	if resp := do(t, ts, http.MethodGet, "/v1/sessions", token); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("post-logout status = %d, want 401", resp.StatusCode)
	}
}

func TestSessionRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	if resp := do(t, ts, http.MethodGet, "/v1/sessions", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestIssueRequiresServiceToken(t *testing.T) {
	ts := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"userId": "u-1"})
	resp, err := http.Post(ts.URL+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without the service token", resp.StatusCode)
	}
}

func TestDeleteOtherSessions(t *testing.T) {
	ts := newTestServer(t)
	first := issueSession(t, ts, "u-1")
	_ = issueSession(t, ts, "u-1")
	_ = issueSession(t, ts, "u-1")

	resp := do(t, ts, http.MethodDelete, "/v1/sessions", first)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete-all status = %d", resp.StatusCode)
	}
	var out struct {
		Invalidated int64 `json:"invalidated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Invalidated != 2 {
		t.Errorf("invalidated = %d, want 2", out.Invalidated)
	}

	// The current session survives.
	if resp := do(t, ts, http.MethodGet, "/v1/sessions", first); resp.StatusCode != http.StatusOK {
		t.Fatalf("current session should still validate, status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}
