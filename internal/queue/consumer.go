package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer wraps one partition's delivery channel, grounded on the
// Tim275-oms consumer files' Listen(ch *amqp.Channel) shape (QueueDeclare
// with a dead-letter table, then Consume).
type Consumer struct {
	Partition int
	Deliveries <-chan amqp.Delivery
	channel    *amqp.Channel
}

// NewConsumer declares the topology (idempotent) and opens a bounded
// consumer on one partition queue, honoring RABBITMQ_PREFETCH_COUNT.
func NewConsumer(conn *amqp.Connection, partition, partitions, prefetch int, consumerTag string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	if err := DeclareTopology(ch, partitions); err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("queue: qos: %w", err)
	}

	deliveries, err := ch.Consume(QueueName(partition), consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: consume partition %d: %w", partition, err)
	}

	return &Consumer{Partition: partition, Deliveries: deliveries, channel: ch}, nil
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}
