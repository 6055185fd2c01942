package domain

import "time"

// UtbetalingRepository описывает требования к хранилищу платёжных поручений.
// Это единственный источник истины о реестре выплат.
type UtbetalingRepository interface {
	// Create атомарно сохраняет поручение со всеми строками.
	// Возвращает ErrUtbetalingFinnes, если на vedtak уже есть поручение.
	Create(utbetaling Utbetaling) error
	// GetByVedtakID возвращает поручение по версии решения или ErrUtbetalingIkkeFunnet.
	GetByVedtakID(vedtakID VedtakId) (Utbetaling, error)
	// ListBySak возвращает все поручения дела в порядке создания.
	ListBySak(sakID SakId) ([]Utbetaling, error)
	// ListByWindow возвращает поручения с avstemmingsnoekkel в полуоткрытом окне [fra, til).
	ListByWindow(fra, til time.Time) ([]Utbetaling, error)
	// UpdateStatus меняет статус поручения. Затронуто должно быть ровно одна строка,
	// иначе ErrInkonsistentLedger.
	UpdateStatus(vedtakID VedtakId, status UtbetalingStatus, endret time.Time) error
	// UpdateStatusWithEvent меняет статус и ставит доменное событие в outbox
	// атомарно: либо фиксируются оба, либо ни одного. Гарантии на число
	// затронутых строк те же, что у UpdateStatus.
	UpdateStatusWithEvent(vedtakID VedtakId, status UtbetalingStatus, endret time.Time, event OutboxMessage) error
	// UpdateKvittering сохраняет квитанцию и её поля. Те же гарантии, что у UpdateStatus.
	UpdateKvittering(vedtakID VedtakId, melding []byte, beskrivelse, feilkode, meldingKode string, endret time.Time) error
}

// OppdragGateway — узкий контракт внешней системы выплат: кодирование
// и передача поручения, разбор квитанций. Остальная система не должна
// зависеть от объектной модели внешней схемы.
type OppdragGateway interface {
	// Send кодирует поручение в wire-формат и передаёт его.
	// Возвращает фактически отправленные байты; при ошибке ничего не отправлено.
	Send(utbetaling Utbetaling) ([]byte, error)
	// DecodeKvittering разбирает входящую квитанцию.
	DecodeKvittering(raw []byte) (Kvittering, error)
	// EncodeKvittering кодирует квитанцию (используется для ручной квитанции оператора).
	EncodeKvittering(kvittering Kvittering) ([]byte, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// HendelseRepository хранит журнал аудита платёжных поручений.
type HendelseRepository interface {
	Append(hendelse Hendelse) error
	List(vedtakID VedtakId) ([]Hendelse, error)
}

// OutboxMessage — доменное событие реестра выплат, ожидающее публикации.
// Повторная постановка того же (VedtakID, EventType) при непубликованном
// предшественнике замещает его payload: подписчикам важен последний снимок.
type OutboxMessage struct {
	ID        string
	VedtakID  VedtakId
	SakID     SakId
	EventType string
	Payload   []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
