package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/storage/postgres"
)

// Интеграционные тесты требуют живую базу и включаются через
// UTB_TEST_POSTGRES_DSN. Без неё пакет проходит как skipped.

func openTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("UTB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("UTB_TEST_POSTGRES_DSN is not set, skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func nyTestUtbetaling(sakID, vedtakID string, noekkel time.Time) domain.Utbetaling {
	linjeID := domain.UtbetalingslinjeId(uuid.NewString())
	return domain.Utbetaling{
		ID:                 uuid.NewString(),
		SakID:              domain.SakId(sakID),
		BehandlingID:       "behandling-1",
		VedtakID:           domain.VedtakId(vedtakID),
		Status:             domain.StatusSendt,
		Opprettet:          noekkel,
		Endret:             noekkel,
		Avstemmingsnoekkel: noekkel,
		Stoenadsmottaker:   "12345678901",
		Saksbehandler:      "Z111111",
		Attestant:          "Z222222",
		Vedtak:             []byte(`{"vedtakId":"` + vedtakID + `"}`),
		Oppdragsmelding:    []byte("<oppdrag/>"),
		Linjer: []domain.Utbetalingslinje{
			{
				ID:        linjeID,
				Opprettet: noekkel,
				Fra:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
				Beloep:    decimal.NewFromInt(1000),
				SakID:     domain.SakId(sakID),
			},
		},
	}
}

func TestIntegration_CreateGetRoundtrip(t *testing.T) {
	store := openTestStore(t)
	repo := postgres.NewUtbetalingRepository(store)

	sakID := "sak-" + uuid.NewString()
	vedtakID := "vedtak-" + uuid.NewString()
	noekkel := time.Now().UTC().Truncate(time.Microsecond)

	utb := nyTestUtbetaling(sakID, vedtakID, noekkel)
	require.NoError(t, repo.Create(utb))

	stored, err := repo.GetByVedtakID(domain.VedtakId(vedtakID))
	require.NoError(t, err)
	require.Equal(t, utb.ID, stored.ID)
	require.Equal(t, domain.StatusSendt, stored.Status)
	require.True(t, stored.Avstemmingsnoekkel.Equal(noekkel))
	require.Len(t, stored.Linjer, 1)
	require.True(t, stored.Linjer[0].Beloep.Equal(decimal.NewFromInt(1000)))

	require.ErrorIs(t, repo.Create(utb), domain.ErrUtbetalingFinnes)
}

func TestIntegration_UpdateStatusAndKvittering(t *testing.T) {
	store := openTestStore(t)
	repo := postgres.NewUtbetalingRepository(store)

	sakID := "sak-" + uuid.NewString()
	vedtakID := "vedtak-" + uuid.NewString()
	noekkel := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.Create(nyTestUtbetaling(sakID, vedtakID, noekkel)))

	endret := noekkel.Add(time.Minute)
	raw := []byte("<kvittering/>")
	require.NoError(t, repo.UpdateKvittering(domain.VedtakId(vedtakID), raw, "OK", "", "00", endret))
	require.NoError(t, repo.UpdateStatus(domain.VedtakId(vedtakID), domain.StatusGodkjent, endret))

	stored, err := repo.GetByVedtakID(domain.VedtakId(vedtakID))
	require.NoError(t, err)
	require.Equal(t, domain.StatusGodkjent, stored.Status)
	require.Equal(t, raw, stored.Kvitteringsmelding)
	require.Equal(t, "00", stored.KvitteringMeldingKode)

	missing := domain.VedtakId("vedtak-" + uuid.NewString())
	require.ErrorIs(t, repo.UpdateStatus(missing, domain.StatusGodkjent, endret), domain.ErrInkonsistentLedger)
}

func TestIntegration_ListByWindow(t *testing.T) {
	store := openTestStore(t)
	repo := postgres.NewUtbetalingRepository(store)

	sakID := "sak-" + uuid.NewString()
	fra := time.Now().UTC().Truncate(time.Microsecond)
	til := fra.Add(time.Hour)

	innenfor := nyTestUtbetaling(sakID, "vedtak-"+uuid.NewString(), fra)
	utenfor := nyTestUtbetaling(sakID, "vedtak-"+uuid.NewString(), til)
	require.NoError(t, repo.Create(innenfor))
	require.NoError(t, repo.Create(utenfor))

	utbetalinger, err := repo.ListByWindow(fra, til)
	require.NoError(t, err)

	funnet := map[domain.VedtakId]bool{}
	for _, utb := range utbetalinger {
		funnet[utb.VedtakID] = true
	}
	require.True(t, funnet[innenfor.VedtakID], "lower bound is inclusive")
	require.False(t, funnet[utenfor.VedtakID], "upper bound is exclusive")
}

func TestIntegration_OutboxLifecycle(t *testing.T) {
	store := openTestStore(t)
	repo := postgres.NewOutboxRepository(store)

	vedtakID := domain.VedtakId("vedtak-" + uuid.NewString())
	msg, err := repo.Enqueue(domain.OutboxMessage{
		VedtakID:  vedtakID,
		SakID:     domain.SakId("sak-" + uuid.NewString()),
		EventType: "utbetaling_oppdatert",
		Payload:   []byte(`{"@status":"GODKJENT_MED_FEIL"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	// Повторная постановка того же (vedtak, тип) замещает payload вместо
	// второй записи в очереди.
	igjen, err := repo.Enqueue(domain.OutboxMessage{
		VedtakID:  vedtakID,
		SakID:     msg.SakID,
		EventType: "utbetaling_oppdatert",
		Payload:   []byte(`{"@status":"GODKJENT"}`),
	})
	require.NoError(t, err)
	require.Equal(t, msg.ID, igjen.ID)

	pending, err := repo.PullPending(1000)
	require.NoError(t, err)

	var funnet *domain.OutboxMessage
	antall := 0
	for i, p := range pending {
		if p.VedtakID == vedtakID {
			funnet = &pending[i]
			antall++
		}
	}
	require.NotNil(t, funnet, "enqueued message must be pending")
	require.Equal(t, 1, antall, "replacement must not add a second pending event")
	require.Equal(t, []byte(`{"@status":"GODKJENT"}`), funnet.Payload)

	require.NoError(t, repo.MarkSent(msg.ID))
	require.ErrorIs(t, repo.MarkSent(uuid.NewString()), domain.ErrOutboxPublish)
}

func TestIntegration_UpdateStatusWithEvent(t *testing.T) {
	store := openTestStore(t)
	repo := postgres.NewUtbetalingRepository(store)
	outbox := postgres.NewOutboxRepository(store)

	sakID := "sak-" + uuid.NewString()
	vedtakID := domain.VedtakId("vedtak-" + uuid.NewString())
	noekkel := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.Create(nyTestUtbetaling(sakID, string(vedtakID), noekkel)))

	endret := noekkel.Add(time.Minute)
	event := domain.OutboxMessage{
		VedtakID:  vedtakID,
		SakID:     domain.SakId(sakID),
		EventType: "utbetaling_oppdatert",
		Payload:   []byte(`{"@status":"GODKJENT"}`),
	}
	require.NoError(t, repo.UpdateStatusWithEvent(vedtakID, domain.StatusGodkjent, endret, event))

	stored, err := repo.GetByVedtakID(vedtakID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusGodkjent, stored.Status)

	pending, err := outbox.PullPending(1000)
	require.NoError(t, err)
	var funnet bool
	for _, p := range pending {
		if p.VedtakID == vedtakID {
			funnet = true
		}
	}
	require.True(t, funnet, "status event must be enqueued with the update")

	// Несуществующий vedtak откатывает транзакцию целиком: события нет.
	missing := domain.VedtakId("vedtak-" + uuid.NewString())
	event.VedtakID = missing
	require.ErrorIs(t,
		repo.UpdateStatusWithEvent(missing, domain.StatusGodkjent, endret, event),
		domain.ErrInkonsistentLedger)

	pending, err = outbox.PullPending(1000)
	require.NoError(t, err)
	for _, p := range pending {
		require.NotEqual(t, missing, p.VedtakID, "rolled back update must not leave an event")
	}
}

func TestIntegration_CreateAvviserUtdatertKjede(t *testing.T) {
	store := openTestStore(t)
	repo := postgres.NewUtbetalingRepository(store)

	sakID := "sak-" + uuid.NewString()
	noekkel := time.Now().UTC().Truncate(time.Microsecond)

	foerste := nyTestUtbetaling(sakID, "vedtak-"+uuid.NewString(), noekkel)
	require.NoError(t, repo.Create(foerste))
	require.NoError(t, repo.UpdateStatus(foerste.VedtakID, domain.StatusGodkjent, noekkel.Add(time.Minute)))

	// Цепочка без якоря игнорирует принятый хвост дела и отклоняется.
	utdatert := nyTestUtbetaling(sakID, "vedtak-"+uuid.NewString(), noekkel.Add(time.Hour))
	require.ErrorIs(t, repo.Create(utdatert), domain.ErrKjedeUtdatert)

	fersk := nyTestUtbetaling(sakID, "vedtak-"+uuid.NewString(), noekkel.Add(time.Hour))
	anker := foerste.Linjer[0].ID
	fersk.Linjer[0].ErstatterID = &anker
	require.NoError(t, repo.Create(fersk))
}
