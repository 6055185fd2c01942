package app

import (
	"testing"
	"time"
)

func TestReadConfig_Defaults(t *testing.T) {
	cfg := ReadConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.ConsumerGroup != "utbetaling-service" {
		t.Fatalf("unexpected consumer group %s", cfg.ConsumerGroup)
	}
	if cfg.OutboxPollInterval != time.Second {
		t.Fatalf("unexpected poll interval %s", cfg.OutboxPollInterval)
	}
	if cfg.OutboxBatchSize != 100 {
		t.Fatalf("unexpected batch size %d", cfg.OutboxBatchSize)
	}
}

func TestReadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("UTB_HTTP_ADDR", ":9999")
	t.Setenv("UTB_OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("UTB_OUTBOX_BATCH_SIZE", "10")
	t.Setenv("UTB_CONSUMER_MAX_RETRIES", "5")

	cfg := ReadConfig()
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("expected :9999, got %s", cfg.HTTPAddr)
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.OutboxPollInterval)
	}
	if cfg.OutboxBatchSize != 10 {
		t.Fatalf("expected 10, got %d", cfg.OutboxBatchSize)
	}
	if cfg.ConsumerMaxRetries != 5 {
		t.Fatalf("expected 5, got %d", cfg.ConsumerMaxRetries)
	}
}

func TestReadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("UTB_OUTBOX_POLL_INTERVAL", "not-a-duration")
	t.Setenv("UTB_OUTBOX_BATCH_SIZE", "-3")

	cfg := ReadConfig()
	if cfg.OutboxPollInterval != time.Second {
		t.Fatalf("invalid duration must fall back to default, got %s", cfg.OutboxPollInterval)
	}
	if cfg.OutboxBatchSize != 100 {
		t.Fatalf("invalid batch size must fall back to default, got %d", cfg.OutboxBatchSize)
	}
}
