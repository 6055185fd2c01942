package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/utbetaling/internal/service/avstemming"
	"github.com/vladislavdragonenkov/utbetaling/internal/storage/postgres"
)

const (
	defaultTimeout = 60 * time.Second
	datoFormat     = "2006-01-02"
)

// Сверка запускается как batch job (обычно cron рано утром) и прогоняет
// одно окно [fra, til) по реестру. Повторный запуск того же окна безопасен.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment variables")
	}

	var (
		fraFlag  string
		tilFlag  string
		dsn      string
		brokers  string
		detaljer int
	)

	flag.StringVar(&fraFlag, "fra", "", "window start, YYYY-MM-DD (default: yesterday)")
	flag.StringVar(&tilFlag, "til", "", "window end exclusive, YYYY-MM-DD (default: today)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: UTB_POSTGRES_DSN)")
	flag.StringVar(&brokers, "brokers", "", "kafka brokers, comma separated (fallback: UTB_KAFKA_BROKERS)")
	flag.IntVar(&detaljer, "detaljer-per-melding", 0, "max detalj records per DATA message (0=default)")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("UTB_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("UTB_POSTGRES_DSN (or -dsn) is required")
	}
	if strings.TrimSpace(brokers) == "" {
		brokers = strings.TrimSpace(os.Getenv("UTB_KAFKA_BROKERS"))
	}
	if brokers == "" {
		fail("UTB_KAFKA_BROKERS (or -brokers) is required")
	}

	fra, til, err := resolveWindow(fraFlag, tilFlag)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	producer, err := kafka.NewProducer(strings.Split(brokers, ","))
	if err != nil {
		fail("create kafka producer: %v", err)
	}
	defer producer.Close()

	cfg := avstemming.DefaultConfig()
	if detaljer > 0 {
		cfg.DetaljerPerMelding = detaljer
	}

	logger := log.WithField("component", "avstemming-job")
	avstemmer := avstemming.NewAvstemmer(
		postgres.NewUtbetalingRepository(store),
		avstemming.NewSender(producer, kafka.TopicAvstemming, logger),
		cfg,
		logger,
	)

	batchID := uuid.NewString()
	logger.WithFields(log.Fields{
		"batch_id": batchID,
		"fra":      fra.Format(datoFormat),
		"til":      til.Format(datoFormat),
	}).Info("starter avstemming")

	if err := avstemmer.Run(batchID, fra, til); err != nil {
		fail("avstemming failed: %v", err)
	}
}

// resolveWindow разбирает границы окна. По умолчанию сверяется вчерашний день.
func resolveWindow(fraFlag, tilFlag string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	fra := today.AddDate(0, 0, -1)
	til := today

	var err error
	if fraFlag != "" {
		if fra, err = time.Parse(datoFormat, fraFlag); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse -fra: %w", err)
		}
	}
	if tilFlag != "" {
		if til, err = time.Parse(datoFormat, tilFlag); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse -til: %w", err)
		}
	}
	if !fra.Before(til) {
		return time.Time{}, time.Time{}, fmt.Errorf("window is empty: fra=%s til=%s", fraFlag, tilFlag)
	}

	return fra, til, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
