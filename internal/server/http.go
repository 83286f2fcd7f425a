// Package server assembles the HTTP router and owns the listener lifecycle.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sessionguard/internal/server/handler"
	"sessionguard/internal/server/middleware"
)

// Deps carries everything the router needs, already wired.
type Deps struct {
	Sessions middleware.SessionValidator
	Tokens   interface {
		middleware.TokenValidator
		handler.TokenIssuer
	}
	Devices middleware.DeviceResolver

	SessionHandler *handler.SessionHandler
	AdminHandler   *handler.AdminHandler
	HealthHandler  *handler.HealthHandler

	AdminToken string
	AdminAudit middleware.AdminAuditLogger
}

// Server is the HTTP front of the service.
type Server struct {
	http *http.Server
}

// New builds the router and the underlying http.Server.
func New(addr string, d Deps) *Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", d.HealthHandler.Check).Methods(http.MethodGet)

	// Session issuance is service-to-service: the upstream authenticator calls it
	// after verifying credentials, so it sits behind the admin token rather than
	// the session middleware.
	issueGuard := middleware.AdminToken(d.AdminToken)
	r.Handle("/v1/sessions", issueGuard(http.HandlerFunc(d.SessionHandler.Create))).Methods(http.MethodPost)

	// Self-service surface, authenticated by session token.
	sessionGuard := middleware.SessionAuth(d.Sessions, d.Tokens, d.Devices)
	r.Handle("/v1/sessions", sessionGuard(http.HandlerFunc(d.SessionHandler.List))).Methods(http.MethodGet)
	r.Handle("/v1/sessions", sessionGuard(http.HandlerFunc(d.SessionHandler.DeleteAll))).Methods(http.MethodDelete)
	r.Handle("/v1/sessions/{id}", sessionGuard(http.HandlerFunc(d.SessionHandler.Delete))).Methods(http.MethodDelete)
	r.Handle("/v1/logout", sessionGuard(http.HandlerFunc(d.SessionHandler.Logout))).Methods(http.MethodPost)

	// Operator surface.
	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.Use(middleware.AdminToken(d.AdminToken), middleware.AdminAudit(d.AdminAudit))
	admin.HandleFunc("/users/{id}/sessions", d.AdminHandler.UserSessions).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/sessions", d.AdminHandler.ForceInvalidateUser).Methods(http.MethodDelete)
	admin.HandleFunc("/sessions/{id}", d.AdminHandler.ForceInvalidate).Methods(http.MethodDelete)
	admin.HandleFunc("/sessions/cleanup", d.AdminHandler.Cleanup).Methods(http.MethodPost)
	admin.HandleFunc("/alert-thresholds", d.AdminHandler.ListThresholds).Methods(http.MethodGet)
	admin.HandleFunc("/alert-thresholds/{metric}", d.AdminHandler.PutThreshold).Methods(http.MethodPut)
	admin.HandleFunc("/audit-events", d.AdminHandler.AuditEvents).Methods(http.MethodGet)
	admin.HandleFunc("/audit-events", d.AdminHandler.IngestAuditEvent).Methods(http.MethodPost)
	admin.HandleFunc("/alerts", d.AdminHandler.Alerts).Methods(http.MethodGet)
	admin.HandleFunc("/policies", d.AdminHandler.ListPolicies).Methods(http.MethodGet)
	admin.HandleFunc("/policies", d.AdminHandler.CreatePolicy).Methods(http.MethodPost)
	admin.HandleFunc("/policies/{id}", d.AdminHandler.UpdatePolicy).Methods(http.MethodPut)

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// ListenAndServe blocks until the listener stops.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
