package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.JobStoreDSN != "memory://" {
		t.Fatalf("expected memory job store default, got %q", cfg.JobStoreDSN)
	}
	if cfg.UpdatesChannel != "mystery:updates" {
		t.Fatalf("expected default channel, got %q", cfg.UpdatesChannel)
	}
	if cfg.ResolveWindow != 60*time.Second {
		t.Fatalf("expected 60s resolve window, got %s", cfg.ResolveWindow)
	}
	if cfg.WorkerPollInterval != 5*time.Second || cfg.WorkerBatchSize != 10 || cfg.WorkerMaxAttempts != 5 {
		t.Fatalf("unexpected worker defaults: %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PRIORITYD_ADDR", ":9090")
	t.Setenv("JOB_STORE_DSN", "postgres://localhost/jobs")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("WORKER_MAX_ATTEMPTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("expected overridden addr, got %q", cfg.Addr)
	}
	if cfg.JobStoreDSN != "postgres://localhost/jobs" {
		t.Fatalf("expected overridden dsn, got %q", cfg.JobStoreDSN)
	}
	if cfg.WorkerPollInterval != 250*time.Millisecond {
		t.Fatalf("expected overridden poll interval, got %s", cfg.WorkerPollInterval)
	}
	if cfg.WorkerMaxAttempts != 7 {
		t.Fatalf("expected overridden attempt cap, got %d", cfg.WorkerMaxAttempts)
	}
}
