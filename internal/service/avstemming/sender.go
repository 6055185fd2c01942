package avstemming

import (
	"encoding/xml"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/oppdrag"
)

// Sender передаёт сообщения сверки во внешнюю очередь строго по порядку:
// START, затем DATA в порядке detalj-записей, затем AVSL.
type Sender struct {
	transport oppdrag.Transport
	topic     string
	logger    *log.Entry
}

// NewSender создаёт sender для очереди сверки.
func NewSender(transport oppdrag.Transport, topic string, logger *log.Entry) *Sender {
	if logger == nil {
		logger = log.WithField("component", "avstemming-sender")
	}
	return &Sender{
		transport: transport,
		topic:     topic,
		logger:    logger,
	}
}

// SendBatch отправляет батч по порядку. Ошибка прерывает отправку:
// батч перезапускается повторным прогоном того же окна, сверка ничего
// не мутирует.
func (s *Sender) SendBatch(batchID string, meldinger []Avstemmingsdata) error {
	for i, melding := range meldinger {
		payload, err := xml.Marshal(melding)
		if err != nil {
			return fmt.Errorf("marshal avstemmingsmelding %d/%d: %w", i+1, len(meldinger), err)
		}
		if err := s.transport.PublishRaw(s.topic, batchID, payload); err != nil {
			return fmt.Errorf("send avstemmingsmelding %d/%d (%s): %w",
				i+1, len(meldinger), melding.Aksjon.AksjonType, err)
		}
	}

	s.logger.WithFields(log.Fields{
		"batch_id":  batchID,
		"meldinger": len(meldinger),
	}).Info("avstemmingsbatch sendt")
	return nil
}
