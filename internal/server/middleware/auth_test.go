package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	devicedomain "sessionguard/internal/device/domain"
	"sessionguard/internal/risk"
	sessionservice "sessionguard/internal/session/service"
)

type stubTokens struct {
	sessionID string
	userID    string
	err       error
}

func (s stubTokens) Validate(string) (string, string, error) {
	return s.sessionID, s.userID, s.err
}

type stubValidator struct {
	result sessionservice.ValidationResult
	err    error
}

func (s stubValidator) Validate(context.Context, string, devicedomain.RequestContext) (sessionservice.ValidationResult, error) {
	return s.result, s.err
}

type stubDevices struct{}

func (stubDevices) Resolve(context.Context, http.Header, string) devicedomain.RequestContext {
	return devicedomain.RequestContext{IP: "203.0.113.10"}
}

func authed(t *testing.T, tokens TokenValidator, sessions SessionValidator, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		id, ok := IdentityFrom(r.Context())
		if !ok {
			t.Error("identity missing from authenticated request context")
		} else if id.UserID == "" || id.SessionID == "" {
			t.Errorf("identity incomplete: %+v", id)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	SessionAuth(sessions, tokens, stubDevices{})(next).ServeHTTP(rec, req)
	return rec, called
}

func TestSessionAuthAccepts(t *testing.T) {
	rec, called := authed(t,
		stubTokens{sessionID: "s-1", userID: "u-1"},
		stubValidator{result: sessionservice.ValidationResult{Valid: true, Risk: risk.LevelLow}},
		"Bearer token",
	)
	if !called {
		t.Fatal("handler not reached")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Risk-Level"); got != "low" {
		t.Errorf("X-Risk-Level = %q, want low", got)
	}
}

func TestSessionAuthMissingToken(t *testing.T) {
	rec, called := authed(t, stubTokens{}, stubValidator{}, "")
	if called {
		t.Fatal("handler must not run without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionAuthBadToken(t *testing.T) {
	rec, called := authed(t, stubTokens{err: errors.New("bad signature")}, stubValidator{}, "Bearer nope")
	if called {
		t.Fatal("handler must not run with a bad token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionAuthInvalidSession(t *testing.T) {
	rec, called := authed(t,
		stubTokens{sessionID: "s-1", userID: "u-1"},
		stubValidator{result: sessionservice.ValidationResult{
			Valid: false, Risk: risk.LevelMedium, Reasons: []string{"session_expired"},
		}},
		"Bearer token",
	)
	if called {
		t.Fatal("handler must not run for an invalid session")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	var body struct {
		Reasons []string `json:"reasons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Reasons) != 1 || body.Reasons[0] != "session_expired" {
		t.Errorf("reasons = %v", body.Reasons)
	}
}

func TestSessionAuthBlockedSession(t *testing.T) {
	rec, called := authed(t,
		stubTokens{sessionID: "s-1", userID: "u-1"},
		stubValidator{result: sessionservice.ValidationResult{
			Valid: false, Risk: risk.LevelCritical, Reasons: []string{"fingerprint_mismatch"},
		}},
		"Bearer token",
	)
	if called {
		t.Fatal("handler must not run for a blocked session")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for critical risk", rec.Code)
	}
	var body struct {
		Risk    string   `json:"risk"`
		Reasons []string `json:"reasons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Risk != "critical" {
		t.Errorf("risk = %q, want critical", body.Risk)
	}
}

func TestSessionAuthStoreFailureFailsClosed(t *testing.T) {
	rec, called := authed(t,
		stubTokens{sessionID: "s-1", userID: "u-1"},
		stubValidator{err: errors.New("db down")},
		"Bearer token",
	)
	if called {
		t.Fatal("handler must not run when validation is unavailable")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 fail closed", rec.Code)
	}
}

func TestAdminToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	guarded := AdminToken("s3cret")(next)

	tests := []struct {
		name   string
		header func(r *http.Request)
		want   int
	}{
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") }, http.StatusOK},
		{"x-admin-token header", func(r *http.Request) { r.Header.Set("X-Admin-Token", "s3cret") }, http.StatusOK},
		{"wrong token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"no token", func(*http.Request) {}, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/alerts", nil)
			tc.header(req)
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestAdminTokenDisabledWhenUnconfigured(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/alerts", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	AdminToken("")(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 when the admin surface is disabled", rec.Code)
	}
}
