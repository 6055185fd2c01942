package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// utbetalingRepositoryInMemory — простая in-memory реализация UtbetalingRepository.
type utbetalingRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[domain.VedtakId]domain.Utbetaling
	outbox *outboxRepositoryInMemory
}

// NewUtbetalingRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewUtbetalingRepository() domain.UtbetalingRepository {
	return NewUtbetalingRepositoryWithOutbox(NewOutboxRepository())
}

// NewUtbetalingRepositoryWithOutbox связывает реестр с общим outbox, чтобы
// UpdateStatusWithEvent ставил события в ту же очередь, которую опрашивает worker.
func NewUtbetalingRepositoryWithOutbox(outbox *outboxRepositoryInMemory) domain.UtbetalingRepository {
	return &utbetalingRepositoryInMemory{
		items:  make(map[domain.VedtakId]domain.Utbetaling),
		outbox: outbox,
	}
}

// Create сохраняет новое поручение, если на vedtak ещё нет записи.
// Цепочка замещений проверяется против текущего принятого хвоста дела:
// поручение, собранное по устаревшей истории, отклоняется с ErrKjedeUtdatert.
func (r *utbetalingRepositoryInMemory) Create(utbetaling domain.Utbetaling) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[utbetaling.VedtakID]; exists {
		return domain.ErrUtbetalingFinnes
	}

	if len(utbetaling.Linjer) > 0 {
		historie := make([]domain.Utbetaling, 0, len(r.items))
		for _, eksisterende := range r.items {
			if eksisterende.SakID == utbetaling.SakID {
				historie = append(historie, eksisterende)
			}
		}
		if !sammeLinjeID(domain.SisteAksepterteLinjeID(historie), utbetaling.Linjer[0].ErstatterID) {
			return domain.ErrKjedeUtdatert
		}
	}

	r.items[utbetaling.VedtakID] = kopier(utbetaling)
	return nil
}

func sammeLinjeID(a, b *domain.UtbetalingslinjeId) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// GetByVedtakID возвращает поручение или ErrUtbetalingIkkeFunnet, если его нет.
func (r *utbetalingRepositoryInMemory) GetByVedtakID(vedtakID domain.VedtakId) (domain.Utbetaling, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	utbetaling, ok := r.items[vedtakID]
	if !ok {
		return domain.Utbetaling{}, domain.ErrUtbetalingIkkeFunnet
	}
	return kopier(utbetaling), nil
}

// ListBySak возвращает поручения дела в порядке создания.
func (r *utbetalingRepositoryInMemory) ListBySak(sakID domain.SakId) ([]domain.Utbetaling, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Utbetaling, 0, len(r.items))
	for _, utbetaling := range r.items {
		if utbetaling.SakID != sakID {
			continue
		}
		result = append(result, kopier(utbetaling))
	}

	sortUtbetalinger(result)
	return result, nil
}

// ListByWindow возвращает поручения с avstemmingsnoekkel в полуоткрытом окне [fra, til).
func (r *utbetalingRepositoryInMemory) ListByWindow(fra, til time.Time) ([]domain.Utbetaling, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Utbetaling, 0)
	for _, utbetaling := range r.items {
		noekkel := utbetaling.Avstemmingsnoekkel
		if noekkel.Before(fra) || !noekkel.Before(til) {
			continue
		}
		result = append(result, kopier(utbetaling))
	}

	sortUtbetalinger(result)
	return result, nil
}

// UpdateStatus меняет статус поручения.
func (r *utbetalingRepositoryInMemory) UpdateStatus(vedtakID domain.VedtakId, status domain.UtbetalingStatus, endret time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	utbetaling, ok := r.items[vedtakID]
	if !ok {
		return domain.ErrInkonsistentLedger
	}
	utbetaling.Status = status
	utbetaling.Endret = endret
	r.items[vedtakID] = utbetaling
	return nil
}

// UpdateStatusWithEvent меняет статус и ставит событие в связанный outbox под
// одной блокировкой реестра: наблюдатели не увидят статус без события.
func (r *utbetalingRepositoryInMemory) UpdateStatusWithEvent(vedtakID domain.VedtakId, status domain.UtbetalingStatus, endret time.Time, event domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	utbetaling, ok := r.items[vedtakID]
	if !ok {
		return domain.ErrInkonsistentLedger
	}
	utbetaling.Status = status
	utbetaling.Endret = endret
	r.items[vedtakID] = utbetaling

	if _, err := r.outbox.Enqueue(event); err != nil {
		return err
	}
	return nil
}

// UpdateKvittering сохраняет квитанцию и её поля.
func (r *utbetalingRepositoryInMemory) UpdateKvittering(vedtakID domain.VedtakId, melding []byte, beskrivelse, feilkode, meldingKode string, endret time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	utbetaling, ok := r.items[vedtakID]
	if !ok {
		return domain.ErrInkonsistentLedger
	}
	utbetaling.Kvitteringsmelding = append([]byte(nil), melding...)
	utbetaling.KvitteringBeskrivelse = beskrivelse
	utbetaling.KvitteringFeilkode = feilkode
	utbetaling.KvitteringMeldingKode = meldingKode
	utbetaling.Endret = endret
	r.items[vedtakID] = utbetaling
	return nil
}

func sortUtbetalinger(utbetalinger []domain.Utbetaling) {
	sort.Slice(utbetalinger, func(i, j int) bool {
		if !utbetalinger[i].Opprettet.Equal(utbetalinger[j].Opprettet) {
			return utbetalinger[i].Opprettet.Before(utbetalinger[j].Opprettet)
		}
		return utbetalinger[i].ID < utbetalinger[j].ID
	})
}

// kopier возвращает копию поручения с собственным срезом строк,
// чтобы избежать непредсказуемых мутаций извне.
func kopier(utbetaling domain.Utbetaling) domain.Utbetaling {
	utbetaling.Linjer = append([]domain.Utbetalingslinje(nil), utbetaling.Linjer...)
	return utbetaling
}

var _ domain.UtbetalingRepository = (*utbetalingRepositoryInMemory)(nil)
