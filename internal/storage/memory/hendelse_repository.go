package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// hendelseRepositoryInMemory — простое in-memory хранилище журнала аудита.
type hendelseRepositoryInMemory struct {
	mu        sync.RWMutex
	hendelser map[domain.VedtakId][]domain.Hendelse
}

// NewHendelseRepository создаёт in-memory реализацию HendelseRepository.
func NewHendelseRepository() domain.HendelseRepository {
	return &hendelseRepositoryInMemory{
		hendelser: make(map[domain.VedtakId][]domain.Hendelse),
	}
}

// Append добавляет событие в конец журнала поручения.
func (r *hendelseRepositoryInMemory) Append(hendelse domain.Hendelse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hendelse.Occurred.IsZero() {
		hendelse.Occurred = time.Now().UTC()
	}
	r.hendelser[hendelse.VedtakID] = append(r.hendelser[hendelse.VedtakID], hendelse)
	return nil
}

// List возвращает журнал поручения в порядке записи.
func (r *hendelseRepositoryInMemory) List(vedtakID domain.VedtakId) ([]domain.Hendelse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.Hendelse(nil), r.hendelser[vedtakID]...), nil
}

var _ domain.HendelseRepository = (*hendelseRepositoryInMemory)(nil)
