package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MaxConcurrentSessions != 5 {
		t.Errorf("MaxConcurrentSessions = %d, want 5", cfg.MaxConcurrentSessions)
	}
	if cfg.RiskDistanceModerateKM != 100 || cfg.RiskDistanceFarKM != 1000 {
		t.Errorf("distance thresholds = %v/%v, want 100/1000", cfg.RiskDistanceModerateKM, cfg.RiskDistanceFarKM)
	}
	if got := cfg.BaseTTL(); got != 24*time.Hour {
		t.Errorf("BaseTTL = %v, want 24h", got)
	}
	if got := cfg.Cooldown(); got != 30*time.Minute {
		t.Errorf("Cooldown = %v, want 30m", got)
	}
	if got := cfg.CleanupEvery(); got != 5*time.Minute {
		t.Errorf("CleanupEvery = %v, want 5m", got)
	}
	if got := cfg.MetricsKafkaBrokersList(); len(got) != 0 {
		t.Errorf("brokers = %v, want empty", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("MAX_CONCURRENT_SESSIONS", "3")
	t.Setenv("SESSION_BASE_TTL", "12h")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("RISK_DISTANCE_MODERATE_KM", "50")
	t.Setenv("RISK_DISTANCE_FAR_KM", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.MaxConcurrentSessions != 3 {
		t.Errorf("MaxConcurrentSessions = %d, want 3", cfg.MaxConcurrentSessions)
	}
	if got := cfg.BaseTTL(); got != 12*time.Hour {
		t.Errorf("BaseTTL = %v, want 12h", got)
	}
	if got := cfg.MetricsKafkaBrokersList(); len(got) != 2 || got[0] != "broker-1:9092" || got[1] != "broker-2:9092" {
		t.Errorf("brokers = %v", got)
	}
	if cfg.RiskDistanceModerateKM != 50 || cfg.RiskDistanceFarKM != 500 {
		t.Errorf("distance thresholds = %v/%v, want 50/500", cfg.RiskDistanceModerateKM, cfg.RiskDistanceFarKM)
	}
}

func TestLoadRejectsBadDistanceOrdering(t *testing.T) {
	t.Setenv("RISK_DISTANCE_MODERATE_KM", "1000")
	t.Setenv("RISK_DISTANCE_FAR_KM", "100")
	if _, err := Load(); err == nil {
		t.Fatal("far threshold below moderate should be rejected")
	}
}

func TestLoadRejectsZeroSessionCap(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_SESSIONS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("zero session cap should be rejected")
	}
}

func TestValidateServing(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sessionguard")
	t.Setenv("SESSION_SIGNING_KEY", "secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidateServing(); err != nil {
		t.Errorf("ValidateServing: %v", err)
	}

	cfg.SessionSigningKey = ""
	if err := cfg.ValidateServing(); err == nil {
		t.Error("missing signing key should fail serving validation")
	}

	cfg.SessionSigningKey = "secret"
	cfg.DatabaseURL = ""
	if err := cfg.ValidateServing(); err == nil {
		t.Error("missing database URL should fail serving validation")
	}
}

func TestDurationHelpersFallBack(t *testing.T) {
	cfg := &Config{SessionBaseTTL: "garbage", AlertCooldown: "", GeoIPTimeout: "-5s", CleanupInterval: "0"}
	if got := cfg.BaseTTL(); got != 24*time.Hour {
		t.Errorf("BaseTTL = %v, want fallback 24h", got)
	}
	if got := cfg.Cooldown(); got != 30*time.Minute {
		t.Errorf("Cooldown = %v, want fallback 30m", got)
	}
	if got := cfg.GeoTimeout(); got != 5*time.Second {
		t.Errorf("GeoTimeout = %v, want fallback 5s", got)
	}
	if got := cfg.CleanupEvery(); got != 5*time.Minute {
		t.Errorf("CleanupEvery = %v, want fallback 5m", got)
	}
}
