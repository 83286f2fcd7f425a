// Command worker runs the background jobs: expired-session cleanup, health metric
// sampling, and the Kafka metric-sample consumer feeding the alert engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"sessionguard/internal/alert"
	"sessionguard/internal/alert/cooldown"
	alertdomain "sessionguard/internal/alert/domain"
	alertrepo "sessionguard/internal/alert/repository"
	"sessionguard/internal/alert/sink"
	"sessionguard/internal/audit"
	auditdomain "sessionguard/internal/audit/domain"
	auditrepo "sessionguard/internal/audit/repository"
	"sessionguard/internal/config"
	"sessionguard/internal/db"
	"sessionguard/internal/risk"
	sessionrepo "sessionguard/internal/session/repository"
	sessionservice "sessionguard/internal/session/service"
	"sessionguard/internal/telemetry/loki"
	"sessionguard/internal/telemetry/otel"
	"sessionguard/internal/telemetry/producer"
)

// loginFailureWindow is the trailing window sampled for the login failure metric.
const loginFailureWindow = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("config: DATABASE_URL must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "sessionguard-worker", cfg.OTLPInsecure)
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

	// Cleanup does not score sessions, so the manager runs without a policy
	// engine, geo resolver, or metric producer.
	manager := sessionservice.NewManager(
		sessions, auditLogger, nil, nil, nil,
		risk.NewTimeoutPolicy(cfg.BaseTTL()),
		risk.Config{DistanceModerateKM: cfg.RiskDistanceModerateKM, DistanceFarKM: cfg.RiskDistanceFarKM},
		cfg.MaxConcurrentSessions,
		cfg.GeoTimeout(),
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runCleanup(ctx, manager, cfg.CleanupEvery())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSampler(ctx, audits, dispatcher, cfg.CleanupEvery())
	}()

	if brokers := cfg.MetricsKafkaBrokersList(); len(brokers) > 0 {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.MetricsKafkaTopic,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()
			runConsumer(ctx, reader, dispatcher, cfg.LokiURL)
		}()
	}

	log.Println("worker: running")
	<-ctx.Done()
	log.Println("worker: shutting down")
	wg.Wait()
}

// runCleanup sweeps expired sessions on a fixed cadence.
func runCleanup(ctx context.Context, manager *sessionservice.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := manager.CleanupExpired(ctx, nil)
			if err != nil {
				log.Printf("worker: cleanup: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("worker: cleaned up %d expired sessions", count)
			}
		}
	}
}

// runSampler measures the login failure rate from the audit trail and feeds it to
// the alert engine. The cooldown keeps repeated breaches from flooding alerts.
func runSampler(ctx context.Context, audits auditrepo.Repository, dispatcher *alert.Dispatcher, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since := time.Now().UTC().Add(-loginFailureWindow)
			count, err := audits.CountByTypeSince(ctx, auditdomain.EventLoginFailure, since)
			if err != nil {
				log.Printf("worker: sample login failures: %v", err)
				continue
			}
			if _, err := dispatcher.Check(ctx, alertdomain.MetricLoginFailureRate, float64(count), map[string]string{
				"window": loginFailureWindow.String(),
			}); err != nil {
				log.Printf("worker: check login failure rate: %v", err)
			}
		}
	}
}

// runConsumer drains metric samples from Kafka into the alert engine, forwarding
// fired alerts to Loki when configured.
func runConsumer(ctx context.Context, reader *kafka.Reader, dispatcher *alert.Dispatcher, lokiURL string) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			log.Printf("worker: kafka read: %v", err)
			continue
		}

		var sample producer.MetricSample
		if err := json.Unmarshal(msg.Value, &sample); err != nil {
			log.Printf("worker: bad metric sample at offset %d: %v", msg.Offset, err)
			continue
		}
		metric := alertdomain.Metric(sample.Metric)
		if !metric.Valid() {
			log.Printf("worker: unknown metric %q at offset %d", sample.Metric, msg.Offset)
			continue
		}

		fired, err := dispatcher.Check(ctx, metric, sample.Value, sample.Details)
		if err != nil {
			log.Printf("worker: check %s: %v", metric, err)
			continue
		}
		if fired != nil && lokiURL != "" {
			raw, err := json.Marshal(fired)
			if err == nil {
				err = loki.PushAlertJSON(ctx, lokiURL, raw)
			}
			if err != nil {
				log.Printf("worker: loki push: %v", err)
			}
		}
	}
}
