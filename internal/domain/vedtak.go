package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Periodetype различает обычную выплату и прекращение.
type Periodetype string

const (
	// PeriodetypeUtbetaling — обычный период с выплатой.
	PeriodetypeUtbetaling Periodetype = "UTBETALING"
	// PeriodetypeOpphoer — прекращение ранее открытого периода.
	PeriodetypeOpphoer Periodetype = "OPPHOER"
)

// Vedtaksperiode — один период решения с типом, суммой и датами.
type Vedtaksperiode struct {
	Type   Periodetype
	Beloep decimal.Decimal
	Fra    time.Time
	Til    *time.Time
}

// Vedtak — входящее решение о выплате, произведённое внешней подсистемой.
// Это триггер для построения платёжного поручения.
type Vedtak struct {
	VedtakID         VedtakId
	BehandlingID     BehandlingId
	SakID            SakId
	Stoenadsmottaker Foedselsnummer
	Saksbehandler    NavIdent
	Attestant        NavIdent
	// PensjonTilUtbetaling — упорядоченный список периодов решения.
	PensjonTilUtbetaling []Vedtaksperiode
}

// Validate проверяет корректность полей решения и возвращает ошибки, если они есть.
func (v *Vedtak) Validate() []error {
	var errs []error

	if v.SakID == "" {
		errs = append(errs, ErrSakIDRequired)
	}
	if v.VedtakID == "" {
		errs = append(errs, ErrVedtakIDRequired)
	}
	if v.Stoenadsmottaker == "" {
		errs = append(errs, ErrMottakerRequired)
	}
	if len(v.PensjonTilUtbetaling) == 0 {
		errs = append(errs, ErrPerioderRequired)
	}
	for _, periode := range v.PensjonTilUtbetaling {
		if periode.Fra.IsZero() {
			errs = append(errs, ErrPeriodeFraRequired)
			break
		}
	}

	return errs
}
