package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UtbetalingStatus описывает жизненный цикл платёжного поручения.
type UtbetalingStatus string

const (
	// StatusSendt — поручение передано во внешнюю систему, квитанция ещё не получена.
	// Единственный начальный статус.
	StatusSendt UtbetalingStatus = "SENDT"
	// StatusGodkjent — внешняя система приняла поручение.
	StatusGodkjent UtbetalingStatus = "GODKJENT"
	// StatusGodkjentMedFeil — поручение принято с предупреждением.
	StatusGodkjentMedFeil UtbetalingStatus = "GODKJENT_MED_FEIL"
	// StatusAvvist — поручение отклонено внешней системой.
	StatusAvvist UtbetalingStatus = "AVVIST"
	// StatusFeilet — обработка поручения завершилась ошибкой до приёма.
	StatusFeilet UtbetalingStatus = "FEILET"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s UtbetalingStatus) Valid() bool {
	switch s {
	case StatusSendt, StatusGodkjent, StatusGodkjentMedFeil, StatusAvvist, StatusFeilet:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным для данного поручения.
// Коррекция после конечного статуса — это всегда новое поручение.
func (s UtbetalingStatus) Terminal() bool {
	switch s {
	case StatusGodkjent, StatusGodkjentMedFeil, StatusAvvist, StatusFeilet:
		return true
	default:
		return false
	}
}

// Akseptert сообщает, принято ли поручение внешним реестром.
// Только принятые поручения участвуют в цепочке замещений.
func (s UtbetalingStatus) Akseptert() bool {
	return s == StatusGodkjent || s == StatusGodkjentMedFeil
}

// Linjeendring помечает специальные строки поручения.
type Linjeendring string

// LinjeendringOpphoer — строка-прекращение: закрывает открытый период без дальнейших выплат.
const LinjeendringOpphoer Linjeendring = "OPPHOER"

// Utbetalingslinje — одна непрерывная пара «период/сумма» внутри поручения.
type Utbetalingslinje struct {
	ID        UtbetalingslinjeId
	Opprettet time.Time
	// Fra/Til задают период строки; Til == nil означает открытый (текущий) период.
	Fra time.Time
	Til *time.Time
	// Beloep — сумма за период, со знаком.
	Beloep decimal.Decimal
	// UtbetalingID и SakID — обратные ссылки на поручение и дело.
	UtbetalingID string
	SakID        SakId
	// ErstatterID указывает на строку внешнего реестра, которую данная строка замещает.
	// nil допустим только для первой строки первого поручения дела.
	ErstatterID *UtbetalingslinjeId
	// Endring, если задан, помечает строку как специальную (сейчас только OPPHOER).
	Endring Linjeendring
}

// Utbetaling — платёжное поручение, отправленное по одной версии решения.
// После сохранения изменяемы только статус, поля квитанции и Endret.
type Utbetaling struct {
	ID           string
	SakID        SakId
	BehandlingID BehandlingId
	VedtakID     VedtakId
	Status       UtbetalingStatus
	Opprettet    time.Time
	Endret       time.Time
	// Avstemmingsnoekkel — логическое время события для сверки. Одно значение
	// на поручение и все его строки: поручение сверяется как неделимая единица.
	Avstemmingsnoekkel time.Time
	Stoenadsmottaker   Foedselsnummer
	Saksbehandler      NavIdent
	Attestant          NavIdent
	// Vedtak — исходное решение как оно пришло (для аудита/replay).
	Vedtak []byte
	// Oppdragsmelding — фактически отправленное wire-сообщение.
	Oppdragsmelding []byte
	// Kvitteringsmelding и поля ниже заполняются после получения квитанции.
	Kvitteringsmelding    []byte
	KvitteringBeskrivelse string
	KvitteringFeilkode    string
	KvitteringMeldingKode string
	Linjer                []Utbetalingslinje
}

// SisteLinje возвращает последнюю строку поручения или nil, если строк нет.
func (u *Utbetaling) SisteLinje() *Utbetalingslinje {
	if len(u.Linjer) == 0 {
		return nil
	}
	return &u.Linjer[len(u.Linjer)-1]
}

// SisteAksepterteLinjeID возвращает идентификатор последней строки самого
// свежего принятого поручения дела — актуальный хвост внешнего реестра.
// nil, если принятых поручений ещё нет (начало цепочки).
func SisteAksepterteLinjeID(utbetalinger []Utbetaling) *UtbetalingslinjeId {
	var siste *Utbetaling
	for i := range utbetalinger {
		kandidat := &utbetalinger[i]
		if !kandidat.Status.Akseptert() || len(kandidat.Linjer) == 0 {
			continue
		}
		if siste == nil || kandidat.Opprettet.After(siste.Opprettet) {
			siste = kandidat
		}
	}
	if siste == nil {
		return nil
	}
	id := siste.SisteLinje().ID
	return &id
}

// ValidateInvariants проверяет базовые инварианты поручения и возвращает список замечаний.
func (u *Utbetaling) ValidateInvariants() []error {
	var errs []error

	if u.SakID == "" {
		errs = append(errs, ErrSakIDRequired)
	}
	if u.VedtakID == "" {
		errs = append(errs, ErrVedtakIDRequired)
	}
	if u.Stoenadsmottaker == "" {
		errs = append(errs, ErrMottakerRequired)
	}
	if !u.Status.Valid() {
		errs = append(errs, ErrUgyldigStatus)
	}
	if len(u.Linjer) == 0 {
		errs = append(errs, ErrLinjerRequired)
	}

	// Все строки делят один avstemmingsnoekkel с поручением.
	for _, linje := range u.Linjer {
		if !linje.Opprettet.Equal(u.Avstemmingsnoekkel) {
			errs = append(errs, ErrNoekkelMismatch)
			break
		}
	}

	return errs
}
