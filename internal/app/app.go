package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/utbetaling/internal/health"
	"github.com/vladislavdragonenkov/utbetaling/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/utbetaling/internal/oppdrag"
	outboxsvc "github.com/vladislavdragonenkov/utbetaling/internal/service/outbox"
	utbsvc "github.com/vladislavdragonenkov/utbetaling/internal/service/utbetaling"
	"github.com/vladislavdragonenkov/utbetaling/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает и запускает сервис выплат: хранилище, gateway внешней системы,
// consumers входных топиков, outbox worker и операционный HTTP API.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	var transport oppdrag.Transport
	if producer != nil {
		transport = producer
	} else {
		logger.Warn("kafka is not configured, oppdrag transmission goes to log only")
		transport = &loggingTransport{logger: logger.WithField("layer", "dev-transport")}
	}

	gateway := oppdrag.NewGateway(transport, kafka.TopicOppdrag, logger.WithField("layer", "gateway"))
	svc := utbsvc.NewService(deps.Repo, deps.HendelseRepo, gateway, logger.WithField("layer", "service"))

	var consumers []*kafka.Consumer
	if producer != nil {
		brokers := splitBrokers(cfg.KafkaBrokers)

		vedtakConsumer, err := kafka.NewConsumerWithDLQ(
			brokers, cfg.ConsumerGroup,
			[]string{kafka.TopicVedtak},
			newVedtakHandler(svc, logger.WithField("layer", "vedtak-consumer")),
			producer, cfg.ConsumerMaxRetries,
		)
		if err != nil {
			return err
		}
		kvitteringConsumer, err := kafka.NewConsumerWithDLQ(
			brokers, cfg.ConsumerGroup,
			[]string{kafka.TopicKvittering},
			newKvitteringHandler(svc, logger.WithField("layer", "kvittering-consumer")),
			producer, cfg.ConsumerMaxRetries,
		)
		if err != nil {
			return err
		}

		consumers = append(consumers, vedtakConsumer, kvitteringConsumer)
		for _, consumer := range consumers {
			if err := consumer.Start(ctx); err != nil {
				return err
			}
		}

		worker := outboxsvc.NewWorker(
			deps.OutboxRepo,
			kafka.NewOutboxPublisher(producer, kafka.TopicUtbetalingEvents),
			outboxsvc.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outboxsvc.WithLogger(logger.WithField("layer", "outbox-worker")),
			outboxsvc.WithPollInterval(cfg.OutboxPollInterval),
			outboxsvc.WithBatchSize(cfg.OutboxBatchSize),
		)
		go worker.Run(ctx)
	} else {
		logger.Warn("consumers and outbox worker are disabled without kafka")
	}

	v, _, _ := version.Info()
	healthHandler := healthcheck.NewHandler(v)
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(pingCtx)
		}))
	}
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.OutboxRepo, 1000, 5*time.Minute))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newRouter(svc, deps.HendelseRepo, healthHandler, logger.WithField("layer", "http")),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdownHTTP(srv, logger)
		stopConsumers(consumers, logger)
		return ctx.Err()
	case err := <-errCh:
		stopConsumers(consumers, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func splitBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(brokers, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

func stopConsumers(consumers []*kafka.Consumer, logger *log.Entry) {
	for _, consumer := range consumers {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
