// Command server runs the session security HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sessionguard/internal/alert"
	"sessionguard/internal/alert/cooldown"
	alertrepo "sessionguard/internal/alert/repository"
	"sessionguard/internal/alert/sink"
	"sessionguard/internal/audit"
	auditrepo "sessionguard/internal/audit/repository"
	"sessionguard/internal/config"
	"sessionguard/internal/db"
	"sessionguard/internal/device"
	"sessionguard/internal/geo"
	"sessionguard/internal/policy/engine"
	policyrepo "sessionguard/internal/policy/repository"
	"sessionguard/internal/risk"
	"sessionguard/internal/security"
	"sessionguard/internal/server"
	"sessionguard/internal/server/handler"
	sessionrepo "sessionguard/internal/session/repository"
	sessionservice "sessionguard/internal/session/service"
	"sessionguard/internal/telemetry"
	"sessionguard/internal/telemetry/otel"
	"sessionguard/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateServing(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "sessionguard-server", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	sessions := sessionrepo.NewPostgresRepository(database)
	audits := auditrepo.NewPostgresRepository(database)
	alerts := alertrepo.NewPostgresRepository(database)
	policies := policyrepo.NewPostgresRepository(database)

	var cooldownStore cooldown.Store = cooldown.NewMemoryStore()
	if cfg.RedisAddr != "" {
		cooldownStore = cooldown.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}))
	}

	var notify sink.Sink = sink.Noop{}
	if cfg.AlertWebhookURL != "" {
		notify = sink.NewWebhookSink(cfg.AlertWebhookURL, cfg.AlertWebhookToken)
	}
	dispatcher := alert.NewDispatcher(alerts, cooldownStore, notify, cfg.Cooldown())

	emitter := otel.NewEventEmitter(providers.LoggerProvider)
	auditLogger := audit.NewLogger(audits, emitter, dispatcher)

	var geoResolver geo.Resolver
	if cfg.GeoIPBaseURL != "" {
		geoResolver = geo.NewHTTPResolver(cfg.GeoIPBaseURL, cfg.GeoTimeout())
	}
	devices := device.NewHeaderResolver(geoResolver, cfg.GeoTimeout())

	var metrics producer.Producer
	if kp, err := producer.NewKafkaProducer(cfg.MetricsKafkaBrokersList(), cfg.MetricsKafkaTopic); err != nil {
		log.Fatalf("kafka: %v", err)
	} else if kp != nil {
		metrics = kp
		defer kp.Close()
	}

	evaluator := engine.NewOPAEvaluator(policies)
	manager := sessionservice.NewManager(
		sessions,
		auditLogger,
		evaluator,
		geoResolver,
		metrics,
		risk.NewTimeoutPolicy(cfg.BaseTTL()),
		risk.Config{DistanceModerateKM: cfg.RiskDistanceModerateKM, DistanceFarKM: cfg.RiskDistanceFarKM},
		cfg.MaxConcurrentSessions,
		cfg.GeoTimeout(),
	)

	tokens, err := security.NewTokenProvider([]byte(cfg.SessionSigningKey), cfg.SessionIssuer, cfg.SessionAudience)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	srv := server.New(cfg.HTTPAddr, server.Deps{
		Sessions:       manager,
		Tokens:         tokens,
		Devices:        devices,
		SessionHandler: handler.NewSessionHandler(manager, tokens, devices),
		AdminHandler:   handler.NewAdminHandler(manager, audits, auditLogger, alerts, policies),
		HealthHandler:  handler.NewHealthHandler(database, evaluator),
		AdminToken:     cfg.AdminAPIToken,
		AdminAudit:     auditLogger,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("server: shutting down")
	case err := <-errCh:
		log.Fatalf("server: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	// Let in-flight async audit emission and alert notification finish.
	time.Sleep(telemetry.ShutdownDrainDuration)
}
