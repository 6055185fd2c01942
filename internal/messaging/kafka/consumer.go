package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// DLQPublisher публикует необработанные сообщения в dead letter topic.
// *Producer реализует контракт; в тестах подставляется заглушка.
type DLQPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// Consumer читает входные топики реестра выплат (решения и квитанции).
// Ключ сообщения на этих топиках — идентификатор версии решения, поэтому
// логи consumer'а привязываются к vedtak, а не только к offset'ам.
type Consumer struct {
	consumer   sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	wg         sync.WaitGroup
	dlq        DLQPublisher
	maxRetries int
}

// NewConsumer создает новый Kafka consumer без DLQ.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создает consumer с поддержкой Dead Letter Queue.
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlq DLQPublisher, maxRetries int) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		consumer:   consumer,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		dlq:        dlq,
		maxRetries: maxRetries,
	}, nil
}

// Start запускает consumer.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume вызывается в цикле: при rebalance он завершается.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			messageLogger := c.messageLogger(message)
			messageLogger.Debug("received message")

			if err := c.processMessage(session.Context(), message); err != nil {
				messageLogger.WithError(err).Error("message processing failed after all retries")
				// Не маркируем сообщение: оно уйдёт в DLQ или будет переработано.
				continue
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// messageLogger привязывает лог к vedtak (ключ сообщения) и координатам в топике.
func (c *Consumer) messageLogger(message *sarama.ConsumerMessage) *log.Entry {
	fields := log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}
	if len(message.Key) > 0 {
		fields["vedtak_id"] = string(message.Key)
	}
	return c.logger.WithFields(fields)
}

// processMessage обрабатывает сообщение с retry-бюджетом и отправкой в DLQ.
// Повторная доставка безопасна: обработчики идемпотентны на уровне реестра.
func (c *Consumer) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handler(ctx, message)
	if err == nil {
		return nil
	}

	attempts := retryCount(message)
	if attempts < c.maxRetries {
		c.messageLogger(message).WithFields(log.Fields{
			"retry_count": attempts,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")
		return err
	}

	// Исчерпаны все попытки — отправляем в DLQ.
	if c.dlq != nil {
		if dlqErr := c.deadLetter(message, err); dlqErr != nil {
			c.messageLogger(message).WithError(dlqErr).Error("failed to send message to DLQ")
			return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
		}
		c.messageLogger(message).WithField("retry_count", attempts).
			Info("message sent to DLQ after max retries")
		return nil
	}

	return err
}

// retryCount извлекает retry count из headers сообщения. Заголовок ставит
// cmd/dlq-reprocess при возврате сообщения на исходный топик.
func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) == HeaderRetryCount {
			count, err := strconv.Atoi(string(header.Value))
			if err == nil {
				return count
			}
		}
	}
	return 0
}

// inngaaendeDLQEnvelope — конверт необработанного входного сообщения в DLQ.
// original-поля читает cmd/dlq-reprocess при возврате на исходный топик.
type inngaaendeDLQEnvelope struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	VedtakID          string `json:"vedtak_id"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// deadLetter отправляет необработанное сообщение в Dead Letter Queue.
func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, processingErr error) error {
	envelope := inngaaendeDLQEnvelope{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		VedtakID:          string(message.Key),
		ErrorMessage:      processingErr.Error(),
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        retryCount(message),
	}

	return c.dlq.PublishEvent(TopicDeadLetterQueue, string(message.Key), envelope)
}
