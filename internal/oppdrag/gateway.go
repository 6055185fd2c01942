package oppdrag

import (
	"encoding/xml"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// Transport — транспорт, по которому уходят wire-сообщения внешней системы.
type Transport interface {
	PublishRaw(topic, key string, payload []byte) error
}

// Gateway кодирует платёжные поручения в wire-формат внешней системы
// и передаёт их через очередь сообщений.
type Gateway struct {
	transport Transport
	topic     string
	logger    *log.Entry
}

// NewGateway создаёт gateway для внешней системы выплат.
func NewGateway(transport Transport, topic string, logger *log.Entry) *Gateway {
	if logger == nil {
		logger = log.WithField("component", "oppdrag-gateway")
	}
	return &Gateway{
		transport: transport,
		topic:     topic,
		logger:    logger,
	}
}

// Send кодирует поручение и передаёт его. Возвращает фактически отправленные
// байты: именно они сохраняются рядом с поручением.
func (g *Gateway) Send(utbetaling domain.Utbetaling) ([]byte, error) {
	payload, err := Encode(utbetaling)
	if err != nil {
		return nil, fmt.Errorf("encode oppdrag: %w", err)
	}

	if err := g.transport.PublishRaw(g.topic, utbetaling.VedtakID.String(), payload); err != nil {
		return nil, fmt.Errorf("transmit oppdrag: %w", err)
	}

	g.logger.WithFields(log.Fields{
		"vedtak_id": utbetaling.VedtakID.String(),
		"linjer":    len(utbetaling.Linjer),
	}).Debug("oppdrag transmitted")

	return payload, nil
}

// DecodeKvittering разбирает входящую квитанцию внешней системы.
func (g *Gateway) DecodeKvittering(raw []byte) (domain.Kvittering, error) {
	var melding kvitteringMelding
	if err := xml.Unmarshal(raw, &melding); err != nil {
		return domain.Kvittering{}, fmt.Errorf("unmarshal kvittering: %w", err)
	}
	if melding.VedtakID == "" {
		return domain.Kvittering{}, fmt.Errorf("kvittering without vedtakId cannot be correlated")
	}

	return domain.Kvittering{
		VedtakID:    domain.VedtakId(melding.VedtakID),
		MeldingKode: melding.KodeMelding,
		Feilkode:    melding.KodeFeil,
		Beskrivelse: melding.Beskrivelse,
		SystemID:    melding.SystemID,
	}, nil
}

// EncodeKvittering кодирует квитанцию в wire-формат.
// Используется для синтетических квитанций оператора.
func (g *Gateway) EncodeKvittering(kvittering domain.Kvittering) ([]byte, error) {
	payload, err := xml.Marshal(kvitteringMelding{
		VedtakID:    kvittering.VedtakID.String(),
		SystemID:    kvittering.SystemID,
		KodeMelding: kvittering.MeldingKode,
		KodeFeil:    kvittering.Feilkode,
		Beskrivelse: kvittering.Beskrivelse,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal kvittering: %w", err)
	}
	return payload, nil
}

// Encode кодирует поручение в wire-формат внешней системы.
func Encode(utbetaling domain.Utbetaling) ([]byte, error) {
	melding := oppdragMelding{
		VedtakID:           utbetaling.VedtakID.String(),
		FagsystemID:        utbetaling.SakID.String(),
		UtbetalesTil:       utbetaling.Stoenadsmottaker.String(),
		Saksbehandler:      utbetaling.Saksbehandler.String(),
		Attestant:          utbetaling.Attestant.String(),
		Avstemmingsnoekkel: FormatNoekkel(utbetaling.Avstemmingsnoekkel),
		Linjer:             make([]oppdragslinje, 0, len(utbetaling.Linjer)),
	}

	for _, linje := range utbetaling.Linjer {
		wireLinje := oppdragslinje{
			DelytelseID: linje.ID.String(),
			Sats:        linje.Beloep.String(),
			DatoFom:     linje.Fra.Format(datoFormat),
			KodeEndring: string(linje.Endring),
		}
		if linje.Til != nil {
			wireLinje.DatoTom = linje.Til.Format(datoFormat)
		}
		if linje.ErstatterID != nil {
			wireLinje.RefDelytelseID = linje.ErstatterID.String()
		}
		melding.Linjer = append(melding.Linjer, wireLinje)
	}

	payload, err := xml.Marshal(melding)
	if err != nil {
		return nil, fmt.Errorf("marshal oppdrag: %w", err)
	}
	return payload, nil
}

var _ domain.OppdragGateway = (*Gateway)(nil)
