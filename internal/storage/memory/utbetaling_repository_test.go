package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/storage/memory"
)

func nyUtbetaling(vedtakID string, opprettet time.Time) domain.Utbetaling {
	return domain.Utbetaling{
		ID:                 "utb-" + vedtakID,
		SakID:              "sak-1",
		BehandlingID:       "behandling-1",
		VedtakID:           domain.VedtakId(vedtakID),
		Status:             domain.StatusSendt,
		Opprettet:          opprettet,
		Endret:             opprettet,
		Avstemmingsnoekkel: opprettet,
		Stoenadsmottaker:   "12345678901",
		Linjer: []domain.Utbetalingslinje{
			{
				ID:        domain.UtbetalingslinjeId("linje-" + vedtakID),
				Opprettet: opprettet,
				Fra:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
				Beloep:    decimal.NewFromInt(1000),
				SakID:     "sak-1",
			},
		},
	}
}

func TestUtbetalingRepository_CreateGet(t *testing.T) {
	repo := memory.NewUtbetalingRepository()
	utb := nyUtbetaling("vedtak-1", time.Now().UTC())

	if err := repo.Create(utb); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.GetByVedtakID("vedtak-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != utb.ID {
		t.Fatalf("expected id %s, got %s", utb.ID, stored.ID)
	}
	if len(stored.Linjer) != 1 {
		t.Fatalf("expected 1 linje, got %d", len(stored.Linjer))
	}
}

func TestUtbetalingRepository_DuplicateVedtak(t *testing.T) {
	repo := memory.NewUtbetalingRepository()
	utb := nyUtbetaling("vedtak-1", time.Now().UTC())

	if err := repo.Create(utb); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(utb); !errors.Is(err, domain.ErrUtbetalingFinnes) {
		t.Fatalf("expected ErrUtbetalingFinnes, got %v", err)
	}
}

func TestUtbetalingRepository_GetMissing(t *testing.T) {
	repo := memory.NewUtbetalingRepository()

	if _, err := repo.GetByVedtakID("nope"); !errors.Is(err, domain.ErrUtbetalingIkkeFunnet) {
		t.Fatalf("expected ErrUtbetalingIkkeFunnet, got %v", err)
	}
}

func TestUtbetalingRepository_ListBySakOrdered(t *testing.T) {
	repo := memory.NewUtbetalingRepository()
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	// Вставляем в обратном порядке, ожидаем порядок создания.
	if err := repo.Create(nyUtbetaling("vedtak-2", base.Add(time.Hour))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(nyUtbetaling("vedtak-1", base)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	utbetalinger, err := repo.ListBySak("sak-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(utbetalinger) != 2 {
		t.Fatalf("expected 2 utbetalinger, got %d", len(utbetalinger))
	}
	if utbetalinger[0].VedtakID != "vedtak-1" || utbetalinger[1].VedtakID != "vedtak-2" {
		t.Fatalf("expected creation order, got %s then %s", utbetalinger[0].VedtakID, utbetalinger[1].VedtakID)
	}
}

func TestUtbetalingRepository_ListByWindowHalfOpen(t *testing.T) {
	repo := memory.NewUtbetalingRepository()
	fra := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	til := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)

	foerVindu := nyUtbetaling("vedtak-foer", fra.Add(-time.Second))
	paaGrensen := nyUtbetaling("vedtak-fom", fra)
	innenfor := nyUtbetaling("vedtak-inne", fra.Add(12*time.Hour))
	paaOevreGrensen := nyUtbetaling("vedtak-tom", til)

	for _, utb := range []domain.Utbetaling{foerVindu, paaGrensen, innenfor, paaOevreGrensen} {
		if err := repo.Create(utb); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	utbetalinger, err := repo.ListByWindow(fra, til)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(utbetalinger) != 2 {
		t.Fatalf("expected 2 utbetalinger in [fra, til), got %d", len(utbetalinger))
	}
	for _, utb := range utbetalinger {
		if utb.VedtakID == "vedtak-foer" || utb.VedtakID == "vedtak-tom" {
			t.Fatalf("utbetaling %s is outside the half-open window", utb.VedtakID)
		}
	}
}

func TestUtbetalingRepository_UpdateStatus(t *testing.T) {
	repo := memory.NewUtbetalingRepository()
	utb := nyUtbetaling("vedtak-1", time.Now().UTC())
	if err := repo.Create(utb); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	endret := time.Now().UTC().Add(time.Minute)
	if err := repo.UpdateStatus("vedtak-1", domain.StatusGodkjent, endret); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	stored, err := repo.GetByVedtakID("vedtak-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.StatusGodkjent {
		t.Fatalf("expected GODKJENT, got %s", stored.Status)
	}
	if !stored.Endret.Equal(endret) {
		t.Fatalf("expected endret %s, got %s", endret, stored.Endret)
	}

	if err := repo.UpdateStatus("missing", domain.StatusGodkjent, endret); !errors.Is(err, domain.ErrInkonsistentLedger) {
		t.Fatalf("expected ErrInkonsistentLedger for missing vedtak, got %v", err)
	}
}

func TestUtbetalingRepository_CreateAvviserUtdatertKjede(t *testing.T) {
	repo := memory.NewUtbetalingRepository()
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	foerste := nyUtbetaling("vedtak-1", base)
	if err := repo.Create(foerste); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.UpdateStatus("vedtak-1", domain.StatusGodkjent, base.Add(time.Minute)); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	// Цепочка без якоря построена до того, как первое поручение стало
	// принятым хвостом дела.
	utdatert := nyUtbetaling("vedtak-2", base.Add(time.Hour))
	if err := repo.Create(utdatert); !errors.Is(err, domain.ErrKjedeUtdatert) {
		t.Fatalf("expected ErrKjedeUtdatert for stale chain, got %v", err)
	}

	fersk := nyUtbetaling("vedtak-2", base.Add(time.Hour))
	anker := foerste.Linjer[0].ID
	fersk.Linjer[0].ErstatterID = &anker
	if err := repo.Create(fersk); err != nil {
		t.Fatalf("create with fresh anchor failed: %v", err)
	}
}

func TestUtbetalingRepository_UpdateStatusWithEvent(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewUtbetalingRepositoryWithOutbox(outbox)

	utb := nyUtbetaling("vedtak-1", time.Now().UTC())
	if err := repo.Create(utb); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	endret := time.Now().UTC().Add(time.Minute)
	event := domain.OutboxMessage{
		VedtakID:  "vedtak-1",
		SakID:     "sak-1",
		EventType: "utbetaling_oppdatert",
		Payload:   []byte(`{"@status":"GODKJENT"}`),
	}
	if err := repo.UpdateStatusWithEvent("vedtak-1", domain.StatusGodkjent, endret, event); err != nil {
		t.Fatalf("update status with event failed: %v", err)
	}

	stored, err := repo.GetByVedtakID("vedtak-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.StatusGodkjent {
		t.Fatalf("expected GODKJENT, got %s", stored.Status)
	}

	pending := outbox.AllPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if pending[0].VedtakID != "vedtak-1" || pending[0].EventType != "utbetaling_oppdatert" {
		t.Fatalf("unexpected pending event %+v", pending[0])
	}

	// Несуществующий vedtak не оставляет событий в очереди.
	err = repo.UpdateStatusWithEvent("missing", domain.StatusGodkjent, endret, event)
	if !errors.Is(err, domain.ErrInkonsistentLedger) {
		t.Fatalf("expected ErrInkonsistentLedger, got %v", err)
	}
	if got := len(outbox.AllPending()); got != 1 {
		t.Fatalf("failed update must not enqueue events, got %d pending", got)
	}
}

func TestUtbetalingRepository_UpdateKvittering(t *testing.T) {
	repo := memory.NewUtbetalingRepository()
	utb := nyUtbetaling("vedtak-1", time.Now().UTC())
	if err := repo.Create(utb); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	endret := time.Now().UTC().Add(time.Minute)
	raw := []byte("<kvittering/>")
	if err := repo.UpdateKvittering("vedtak-1", raw, "OK", "", "00", endret); err != nil {
		t.Fatalf("update kvittering failed: %v", err)
	}

	stored, err := repo.GetByVedtakID("vedtak-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(stored.Kvitteringsmelding) != "<kvittering/>" {
		t.Fatalf("unexpected kvitteringsmelding %q", stored.Kvitteringsmelding)
	}
	if stored.KvitteringMeldingKode != "00" {
		t.Fatalf("expected melding kode 00, got %s", stored.KvitteringMeldingKode)
	}
}
