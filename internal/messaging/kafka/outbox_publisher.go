package kafka

import (
	"fmt"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
// Payload уходит как есть: подписчики получают доменное событие в том
// формате, в каком оно было поставлено в очередь, без конверта.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicUtbetalingEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	// Ключ — vedtak: события одного решения попадают в одну партицию
	// и сохраняют порядок для подписчиков.
	key := event.VedtakID.String()
	if key == "" {
		key = event.ID
	}

	return p.producer.PublishRaw(p.topic, key, event.Payload)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
