package queue

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ExtractQueue = "extract_queue"

	// EventsExchange receives a topic message per finished chapter, routed
	// as "chapter.<status>".
	EventsExchange = "storygraph_events"

	retryTTL = 10 * time.Second
)

// Queues lists every work queue the worker consumes.
var Queues = []string{ExtractQueue}

// Publisher is the part of *amqp091.Channel used for publishing.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Dial(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares each queue together with its "_dlq" dead-letter queue
// and its "_retry" queue, which dead-letters back into the main queue after
// a delay. The events exchange is declared as well.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare %s: %w", EventsExchange, err)
	}

	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryTTL.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("queue declare %s: %w", retryName, err)
		}
		logger.Debug("[Queue] declared", "queue", name)
	}
	return nil
}

// PublishFIFO publishes a persistent message to a queue.
func PublishFIFO(p Publisher, queueName string, data []byte) error {
	return p.Publish("", queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

// PublishTopic publishes an event to the events exchange.
func PublishTopic(p Publisher, topic string, data []byte) error {
	return p.Publish(EventsExchange, topic, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
	})
}
