package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора дела.
	ErrSakIDRequired = errors.New("sak_id is required")
	// Ошибка отсутствующего идентификатора версии решения.
	ErrVedtakIDRequired = errors.New("vedtak_id is required")
	// Ошибка отсутствующего получателя выплаты.
	ErrMottakerRequired = errors.New("stoenadsmottaker is required")
	// Ошибка отсутствия периодов в решении.
	ErrPerioderRequired = errors.New("vedtak must contain at least one period")
	// Ошибка периода без даты начала.
	ErrPeriodeFraRequired = errors.New("vedtak period must have a start date")
	// Ошибка поручения без строк.
	ErrLinjerRequired = errors.New("utbetaling must contain at least one linje")
	// Ошибка расхождения avstemmingsnoekkel между поручением и строками.
	ErrNoekkelMismatch = errors.New("linje timestamp does not match utbetaling avstemmingsnoekkel")
	// ErrOpphoerFoerstegang — доменный отказ: прекращение не может быть первым
	// поручением дела, ему нечего закрывать во внешнем реестре.
	ErrOpphoerFoerstegang = errors.New("opphoer cannot be the first utbetaling for a sak")
	// ErrUtbetalingFinnes — на эту версию решения поручение уже существует.
	ErrUtbetalingFinnes = errors.New("utbetaling already exists for vedtak")
	// ErrUtbetalingIkkeFunnet возвращается, если поручение не найдено в хранилище.
	ErrUtbetalingIkkeFunnet = errors.New("utbetaling not found")
	// Ошибка неподдерживаемого статуса или перехода.
	ErrUgyldigStatus = errors.New("invalid utbetaling status")
	// ErrStatusLaast — поручение уже в конечном статусе; смена запрещена.
	ErrStatusLaast = errors.New("utbetaling status is terminal and cannot be changed")
	// ErrInkonsistentLedger — обновление затронуло неожиданное число строк.
	// Фатальное рассогласование реестра и сервиса, не no-op.
	ErrInkonsistentLedger = errors.New("ledger update affected unexpected number of rows")
	// ErrKjedeUtdatert — цепочка замещений поручения построена по устаревшей
	// истории дела: между чтением истории и вставкой другое поручение стало
	// принятым хвостом. Повтор с перечитанной историей безопасен.
	ErrKjedeUtdatert = errors.New("replacement chain is built from stale sak history")
	// ErrOverfoering — передача поручения во внешнюю систему не удалась.
	// Ничего не сохранено, повтор безопасен.
	ErrOverfoering = errors.New("oppdrag transmission failed")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsDuplikat проверяет, является ли ошибка дубликатом поручения.
func IsDuplikat(err error) bool {
	return errors.Is(err, ErrUtbetalingFinnes)
}

// IsInkonsistent проверяет, является ли ошибка фатальным рассогласованием реестра.
func IsInkonsistent(err error) bool {
	return errors.Is(err, ErrInkonsistentLedger)
}
