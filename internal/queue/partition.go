// Package queue is the stable hash partitioner and RabbitMQ topology
// declaration C11 specifies: a direct exchange, N partitioned durable
// queues with priority and TTL, dead-lettering to a shared exchange.
// Grounded on the amqp091-go QueueDeclare/QueueBind shape used by the
// pack's order-microservices consumer files (orders-consumer.go.go,
// payments-consumer.go.go).
package queue

import (
	"fmt"
	"hash/fnv"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "order_updates_exchange"
	DLXName      = "order_updates_dlx"
)

// Partition returns a stable integer in [0, n) for userID, the selection
// rule spec.md §4.11 and §6 require ("stable integer hash over user_id
// modulo N").
func Partition(userID string, n int) int {
	if n <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(n))
}

func QueueName(partition int) string {
	return fmt.Sprintf("order_db_update_queue_partition_%d", partition)
}

func RoutingKey(partition int) string {
	return fmt.Sprintf("partition_%d", partition)
}

// Priority maps a message kind to the header priority spec.md §4.11 orders:
// close > open > pending-confirmed > pending-triggered > rejection >
// id-update > trigger-update.
func Priority(messageType string) uint8 {
	switch messageType {
	case "ORDER_CLOSE_CONFIRMED":
		return 10
	case "ORDER_OPEN_CONFIRMED":
		return 8
	case "ORDER_PENDING_CONFIRMED":
		return 6
	case "ORDER_PENDING_TRIGGERED":
		return 5
	case "ORDER_REJECTED", "ORDER_REJECTION_RECORD":
		return 4
	case "ORDER_CLOSE_ID_UPDATE":
		return 2
	default:
		return 1
	}
}

// DeclareTopology declares the exchange, the dead-letter exchange, and all N
// partitioned queues, binding each queue to its routing key. Idempotent —
// safe to call from every consumer instance at startup.
func DeclareTopology(ch *amqp.Channel, partitions int) error {
	if err := ch.ExchangeDeclare(ExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(DLXName, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare dlx: %w", err)
	}

	for k := 0; k < partitions; k++ {
		args := amqp.Table{
			"x-max-priority":           10,
			"x-message-ttl":            int32(300000),
			"x-dead-letter-exchange":   DLXName,
		}
		q, err := ch.QueueDeclare(QueueName(k), true, false, false, false, args)
		if err != nil {
			return fmt.Errorf("queue: declare partition %d: %w", k, err)
		}
		if err := ch.QueueBind(q.Name, RoutingKey(k), ExchangeName, false, nil); err != nil {
			return fmt.Errorf("queue: bind partition %d: %w", k, err)
		}
	}
	return nil
}
