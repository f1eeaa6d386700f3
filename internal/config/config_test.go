package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISPATCH_CONFIG_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.OfferWindow != 30*time.Second {
		t.Errorf("offer window = %s, want 30s", cfg.Dispatch.OfferWindow)
	}
	if cfg.Dispatch.SweepInterval != 5*time.Minute {
		t.Errorf("sweep interval = %s, want 5m", cfg.Dispatch.SweepInterval)
	}
	if cfg.Dispatch.BookingTimeout != 30*time.Minute {
		t.Errorf("booking timeout = %s, want 30m", cfg.Dispatch.BookingTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_CONFIG_FILE", "")
	t.Setenv("DISPATCH_OFFER_WINDOW", "45s")
	t.Setenv("DISPATCH_KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("DISPATCH_FAN_OUT_LIMIT", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dispatch.OfferWindow != 45*time.Second {
		t.Errorf("offer window = %s", cfg.Dispatch.OfferWindow)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Dispatch.FanOutLimit != 3 {
		t.Errorf("fan-out = %d", cfg.Dispatch.FanOutLimit)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"unparsable interval", map[string]string{"DISPATCH_SWEEP_INTERVAL": "soon"}},
		{"negative speed", map[string]string{"DISPATCH_ASSUMED_SPEED_KMH": "-1"}},
		{"zero lock ttl", map[string]string{"DISPATCH_SWEEP_LOCK_TTL": "0s"}},
		{"lock ttl outlives interval", map[string]string{"DISPATCH_SWEEP_INTERVAL": "1m"}},
		{"lock ttl equals interval", map[string]string{"DISPATCH_SWEEP_INTERVAL": "2m", "DISPATCH_SWEEP_LOCK_TTL": "2m"}},
		{"zero threshold", map[string]string{"DISPATCH_SWEEP_THRESHOLD": "0s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DISPATCH_CONFIG_FILE", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error for invalid values")
			}
		})
	}
}

func TestLoadShortSweepWithShorterLock(t *testing.T) {
	t.Setenv("DISPATCH_CONFIG_FILE", "")
	t.Setenv("DISPATCH_SWEEP_INTERVAL", "1m")
	t.Setenv("DISPATCH_SWEEP_LOCK_TTL", "45s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dispatch.SweepLockTTL != 45*time.Second {
		t.Fatalf("lock ttl = %s", cfg.Dispatch.SweepLockTTL)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	content := `
http:
  addr: ":9090"
log:
  level: debug
dispatch:
  offer_window: 20s
  sweep_interval: 1m
  sweep_lock_ttl: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISPATCH_CONFIG_FILE", path)
	t.Setenv("DISPATCH_HTTP_ADDR", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("env should override file, got %q", cfg.HTTP.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Dispatch.OfferWindow != 20*time.Second || cfg.Dispatch.SweepInterval != time.Minute {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.BookingTimeout != 30*time.Minute {
		t.Errorf("unset keys should keep defaults, got %s", cfg.Dispatch.BookingTimeout)
	}
}
