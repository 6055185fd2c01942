package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// Topics для Kafka.
const (
	// TopicVedtak — входящие решения о выплате.
	TopicVedtak = "utbetaling.vedtak"
	// TopicKvittering — входящие квитанции внешней системы.
	TopicKvittering = "utbetaling.kvittering"
	// TopicUtbetalingEvents — исходящие доменные события смены статуса.
	TopicUtbetalingEvents = "utbetaling.events"
	// TopicOppdrag — исходящие платёжные поручения (wire-формат).
	TopicOppdrag = "oppdrag.utbetaling"
	// TopicAvstemming — исходящие сообщения сверки.
	TopicAvstemming = "oppdrag.avstemming"
	// TopicDeadLetterQueue — Dead Letter Queue для failed messages.
	TopicDeadLetterQueue = "utbetaling.dlq"
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// VedtakMelding — JSON-представление решения на входном топике.
type VedtakMelding struct {
	VedtakID         string           `json:"vedtakId"`
	BehandlingID     string           `json:"behandlingId"`
	SakID            string           `json:"sakId"`
	Stoenadsmottaker string           `json:"stoenadsmottaker"`
	Saksbehandler    string           `json:"saksbehandler"`
	Attestant        string           `json:"attestant"`
	Perioder         []PeriodeMelding `json:"pensjonTilUtbetaling"`
}

// PeriodeMelding — один период решения на проводе.
type PeriodeMelding struct {
	Type   string          `json:"type"`
	Beloep decimal.Decimal `json:"beloep"`
	Fra    time.Time       `json:"fra"`
	Til    *time.Time      `json:"til,omitempty"`
}

// ParseVedtak разбирает решение из сообщения входного топика.
func ParseVedtak(message *sarama.ConsumerMessage) (domain.Vedtak, error) {
	var melding VedtakMelding
	if err := json.Unmarshal(message.Value, &melding); err != nil {
		return domain.Vedtak{}, fmt.Errorf("failed to unmarshal vedtak: %w", err)
	}

	vedtak := domain.Vedtak{
		VedtakID:         domain.VedtakId(melding.VedtakID),
		BehandlingID:     domain.BehandlingId(melding.BehandlingID),
		SakID:            domain.SakId(melding.SakID),
		Stoenadsmottaker: domain.Foedselsnummer(melding.Stoenadsmottaker),
		Saksbehandler:    domain.NavIdent(melding.Saksbehandler),
		Attestant:        domain.NavIdent(melding.Attestant),
	}
	for _, periode := range melding.Perioder {
		vedtak.PensjonTilUtbetaling = append(vedtak.PensjonTilUtbetaling, domain.Vedtaksperiode{
			Type:   domain.Periodetype(periode.Type),
			Beloep: periode.Beloep,
			Fra:    periode.Fra,
			Til:    periode.Til,
		})
	}
	return vedtak, nil
}
