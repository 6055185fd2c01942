package domain

// KvitteringOK — код сообщения, означающий успешный приём поручения.
const KvitteringOK = "00"

// Kvittering — квитанция внешней системы на ранее отправленное поручение.
// Корреляция выполняется по встроенному VedtakID.
type Kvittering struct {
	VedtakID VedtakId
	// MeldingKode — код результата ("00" = успех).
	MeldingKode string
	// Feilkode — код ошибки внешней системы, если есть.
	Feilkode string
	// Beskrivelse — человекочитаемое описание результата.
	Beskrivelse string
	// SystemID — идентификатор отправившей системы.
	SystemID string
}

// OK сообщает, подтверждает ли квитанция успешный приём.
func (k Kvittering) OK() bool {
	return k.MeldingKode == KvitteringOK
}
