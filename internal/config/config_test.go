package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.RabbitMQ.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.RabbitMQ.MaxAttempts)
	}
	if cfg.Worker.StageDelay != time.Second {
		t.Errorf("expected 1s stage delay, got %s", cfg.Worker.StageDelay)
	}
	if cfg.Worker.ReconcileInterval != 0 {
		t.Errorf("expected reconciliation disabled by default, got %s", cfg.Worker.ReconcileInterval)
	}
	if cfg.NATS.URL != "" {
		t.Errorf("expected NATS disabled by default, got %q", cfg.NATS.URL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9000")
	t.Setenv("WORKER_POOL_SIZE", "12")
	t.Setenv("WORKER_RECONCILE_INTERVAL", "30s")
	t.Setenv("RABBITMQ_RETRY_MAX_DELAY", "5m")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("WEBHOOK_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Worker.PoolSize != 12 {
		t.Errorf("expected pool size 12, got %d", cfg.Worker.PoolSize)
	}
	if cfg.Worker.ReconcileInterval != 30*time.Second {
		t.Errorf("expected 30s interval, got %s", cfg.Worker.ReconcileInterval)
	}
	if cfg.RabbitMQ.RetryMaxDelay != 5*time.Minute {
		t.Errorf("expected 5m max delay, got %s", cfg.RabbitMQ.RetryMaxDelay)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("unexpected NATS URL %q", cfg.NATS.URL)
	}
	if cfg.Webhook.Enabled {
		t.Error("expected webhooks disabled")
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "0")
	t.Setenv("RABBITMQ_MAX_ATTEMPTS", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, key := range []string{"WORKER_POOL_SIZE", "RABBITMQ_MAX_ATTEMPTS"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected error to mention %s, got %v", key, err)
		}
	}
}
