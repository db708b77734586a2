package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/histories")
	t.Setenv("PATIENT_SVC", "http://patients:3001")
	t.Setenv("APPOINTMENT_SVC", "http://appointments:3002")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "3005" {
		t.Errorf("expected default port 3005, got %s", cfg.Port)
	}
	if cfg.IdentityCacheTTL() != time.Hour {
		t.Errorf("expected 1h identity cache TTL, got %v", cfg.IdentityCacheTTL())
	}
	if cfg.BreakerTimeout() != 5*time.Second {
		t.Errorf("expected 5s breaker timeout, got %v", cfg.BreakerTimeout())
	}
	if cfg.BreakerResetTimeout() != 30*time.Second {
		t.Errorf("expected 30s reset timeout, got %v", cfg.BreakerResetTimeout())
	}
	if cfg.BreakerErrorThresholdPct != 50 {
		t.Errorf("expected 50%% threshold, got %d", cfg.BreakerErrorThresholdPct)
	}
	if cfg.BreakerMinRequests != 0 {
		t.Errorf("expected no breaker request floor by default, got %d", cfg.BreakerMinRequests)
	}
	if !cfg.AllowPastTreatmentDates {
		t.Error("expected past treatment dates to be allowed by default")
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestConfig_CacheAddr(t *testing.T) {
	cfg := &Config{CacheHost: "dragonfly", CachePort: "6380"}
	if got := cfg.CacheAddr(); got != "dragonfly:6380" {
		t.Errorf("expected dragonfly:6380, got %s", got)
	}
}

func TestValidate_UpstreamURLs(t *testing.T) {
	cfg := &Config{
		Env:                      "development",
		PatientSvcURL:            "http://patients:3001",
		AppointmentSvcURL:        "http://appointments:3002",
		BreakerTimeoutMS:         5000,
		BreakerErrorThresholdPct: 50,
		BreakerResetTimeoutMS:    30000,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.PatientSvcURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed PATIENT_SVC")
	}

	cfg.PatientSvcURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing PATIENT_SVC")
	}
}

func TestValidate_BreakerPolicy(t *testing.T) {
	cfg := &Config{
		Env:                      "development",
		PatientSvcURL:            "http://patients:3001",
		AppointmentSvcURL:        "http://appointments:3002",
		BreakerTimeoutMS:         5000,
		BreakerErrorThresholdPct: 0,
		BreakerResetTimeoutMS:    30000,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero error threshold")
	}

	cfg.BreakerErrorThresholdPct = 150
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for threshold above 100")
	}

	cfg.BreakerErrorThresholdPct = 50
	cfg.BreakerMinRequests = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative request floor")
	}
}

func TestValidate_JWTSecretRequiredInProduction(t *testing.T) {
	cfg := &Config{
		Env:                      "production",
		PatientSvcURL:            "http://patients:3001",
		AppointmentSvcURL:        "http://appointments:3002",
		BreakerTimeoutMS:         5000,
		BreakerErrorThresholdPct: 50,
		BreakerResetTimeoutMS:    30000,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when JWT_SECRET is missing in production")
	}
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
