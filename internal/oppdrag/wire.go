package oppdrag

import (
	"fmt"
	"time"
)

// Wire-формат внешней системы выплат. Схема принадлежит внешнему стандарту;
// остальной код работает только через Gateway.

const (
	datoFormat    = "2006-01-02"
	noekkelFormat = "20060102150405"
)

// oppdragMelding — исходящее платёжное поручение.
type oppdragMelding struct {
	XMLName            struct{}        `xml:"oppdrag"`
	VedtakID           string          `xml:"vedtakId"`
	FagsystemID        string          `xml:"fagsystemId"`
	UtbetalesTil       string          `xml:"utbetalesTilId"`
	Saksbehandler      string          `xml:"saksbehId"`
	Attestant          string          `xml:"attestantId"`
	Avstemmingsnoekkel string          `xml:"avstemmingsnoekkel"`
	Linjer             []oppdragslinje `xml:"oppdragslinje"`
}

// oppdragslinje — одна строка поручения в wire-формате.
type oppdragslinje struct {
	DelytelseID    string `xml:"delytelseId"`
	Sats           string `xml:"sats"`
	DatoFom        string `xml:"datoVedtakFom"`
	DatoTom        string `xml:"datoVedtakTom,omitempty"`
	RefDelytelseID string `xml:"refDelytelseId,omitempty"`
	KodeEndring    string `xml:"kodeEndringLinje,omitempty"`
}

// kvitteringMelding — входящая квитанция внешней системы.
type kvitteringMelding struct {
	XMLName     struct{} `xml:"kvittering"`
	VedtakID    string   `xml:"vedtakId"`
	SystemID    string   `xml:"systemId"`
	KodeMelding string   `xml:"kodeMelding"`
	KodeFeil    string   `xml:"kodeFeil,omitempty"`
	Beskrivelse string   `xml:"beskrivelse,omitempty"`
}

// FormatNoekkel форматирует avstemmingsnoekkel как строку фиксированной ширины
// с микросекундной точностью (14 + 6 цифр). Этот же формат используется
// в сообщениях сверки.
func FormatNoekkel(t time.Time) string {
	return t.Format(noekkelFormat) + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}
