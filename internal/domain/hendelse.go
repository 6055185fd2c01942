package domain

import "time"

// Типы событий аудита платёжного поручения.
const (
	HendelseSendt             = "sendt"
	HendelseKvitteringMottatt = "kvittering_mottatt"
	HendelseStatusEndret      = "status_endret"
	HendelseManuellKvittering = "manuell_kvittering"
)

// Hendelse описывает событие в жизненном цикле платёжного поручения.
// Журнал append-only: ручные вмешательства должны быть различимы при аудите.
type Hendelse struct {
	VedtakID VedtakId
	Type     string
	Detalj   string
	// UtfoertAv заполняется для ручных операций оператора.
	UtfoertAv NavIdent
	Occurred  time.Time
}
