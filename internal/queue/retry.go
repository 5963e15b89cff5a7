package queue

import (
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const retriesHeader = "x-retries"

// DefaultMaxRetries is how often a message is retried before it is moved to
// the dead-letter queue.
const DefaultMaxRetries = 10

// Acknowledger is the part of amqp091.Delivery used to settle a message.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Retries returns the retry count stored in the message headers.
func Retries(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError moves a failed message to the retry queue, or to the
// dead-letter queue once maxRetries is reached. The message is requeued when
// neither publish succeeds.
func HandleProcessingError(p Publisher, ack Acknowledger, msg amqp091.Delivery, queueName string, maxRetries int) {
	retries := Retries(msg.Headers)

	if retries >= maxRetries {
		dlqName := queueName + "_dlq"
		logger.Warn("[Queue] sending message to DLQ", "dlq", dlqName, "retries", retries)
		err := p.Publish("", dlqName, false, false, amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      msg.Headers,
			DeliveryMode: amqp091.Persistent,
		})
		settle(ack, err, dlqName)
		return
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	retryName := queueName + "_retry"
	err := p.Publish("", retryName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	settle(ack, err, retryName)
}

func settle(ack Acknowledger, publishErr error, target string) {
	if publishErr != nil {
		logger.Error("[Queue] failed to publish", "queue", target, "err", publishErr)
		if err := ack.Nack(false, true); err != nil {
			logger.Error("[Queue] failed to nack message", "err", err)
		}
		return
	}
	if err := ack.Ack(false); err != nil {
		logger.Error("[Queue] failed to ack message", "err", err)
	}
}
