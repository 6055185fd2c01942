package app

import (
	"os"
	"strconv"
	"time"
)

// Config описывает настройки запуска сервиса выплат.
type Config struct {
	// HTTPAddr — адрес операционного HTTP API (метрики, health, internal-ручки).
	HTTPAddr string
	// PostgresDSN — DSN реестра выплат. Пустое значение включает in-memory
	// хранилище для локальной разработки.
	PostgresDSN string
	// KafkaBrokers — список брокеров через запятую. Пустое значение отключает
	// consumers, outbox worker и реальную передачу поручений.
	KafkaBrokers string
	// ConsumerGroup — group.id для входных топиков.
	ConsumerGroup string
	// OutboxPollInterval и OutboxBatchSize управляют outbox worker.
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	// ConsumerMaxRetries — число попыток обработки сообщения перед DLQ.
	ConsumerMaxRetries int
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		ConsumerGroup:      "utbetaling-service",
		OutboxPollInterval: 1 * time.Second,
		OutboxBatchSize:    100,
		ConsumerMaxRetries: 3,
	}
}

// ReadConfig формирует конфигурацию из переменных окружения поверх значений по умолчанию.
func ReadConfig() Config {
	cfg := DefaultConfig()
	cfg.HTTPAddr = envString("UTB_HTTP_ADDR", cfg.HTTPAddr)
	cfg.PostgresDSN = envString("UTB_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.KafkaBrokers = envString("UTB_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.ConsumerGroup = envString("UTB_CONSUMER_GROUP", cfg.ConsumerGroup)
	cfg.OutboxPollInterval = envDuration("UTB_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("UTB_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.ConsumerMaxRetries = envInt("UTB_CONSUMER_MAX_RETRIES", cfg.ConsumerMaxRetries)
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
