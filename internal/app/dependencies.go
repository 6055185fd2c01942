package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/storage/memory"
	"github.com/vladislavdragonenkov/utbetaling/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения.
type Dependencies struct {
	Repo         domain.UtbetalingRepository
	OutboxRepo   domain.OutboxRepository
	HendelseRepo domain.HendelseRepository
	// Store не nil только при работе с PostgreSQL; используется для health check
	// и закрытия подключения.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies выбирает хранилище по конфигурации: PostgreSQL при заданном
// DSN, иначе in-memory для локальной разработки.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	if cfg.PostgresDSN == "" {
		logger.Warn("UTB_POSTGRES_DSN is not set, using in-memory ledger")
		// Реестр и outbox делят одну очередь: UpdateStatusWithEvent ставит
		// события туда же, откуда их забирает worker.
		outboxRepo := memory.NewOutboxRepository()
		return &Dependencies{
			Repo:         memory.NewUtbetalingRepositoryWithOutbox(outboxRepo),
			OutboxRepo:   outboxRepo,
			HendelseRepo: memory.NewHendelseRepository(),
			Logger:       logger,
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("postgres ledger initialized")

	return &Dependencies{
		Repo:         postgres.NewUtbetalingRepository(store),
		OutboxRepo:   postgres.NewOutboxRepository(store),
		HendelseRepo: postgres.NewHendelseRepository(store),
		Store:        store,
		Logger:       logger,
	}, nil
}

// Close освобождает ресурсы хранилищ.
func (d *Dependencies) Close() {
	if d == nil || d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
}
