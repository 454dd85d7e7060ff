package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "kickoff.tasks"
	ExchangeDLQ   Exchange = "kickoff.dlq"
)

// Queues — служебные очереди.
const (
	QueueDLQTasks Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyDLQTasks RoutingKey = "tasks"
)

// MaxPriority — максимальный приоритет сообщений в lane-очередях.
const MaxPriority uint8 = 9

// LaneQueue — описание очереди одной lane.
type LaneQueue struct {
	// Lane — имя lane (analysis, odds, ...).
	Lane string

	// ConsumerTimeout — сколько брокер ждёт ack, прежде чем вернуть сообщение
	// в очередь. Это lock/visibility duration lane.
	ConsumerTimeout time.Duration
}

// LaneQueueName возвращает имя очереди для lane.
func LaneQueueName(lane string) Queue {
	return Queue("lane." + lane)
}

// LaneRoutingKey возвращает ключ маршрутизации для lane.
func LaneRoutingKey(lane string) RoutingKey {
	return RoutingKey(lane)
}

// SetupTopology объявляет exchanges, lane-очереди и DLQ.
func SetupTopology(ctx context.Context, conn *Connection, lanes []LaneQueue) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch, lanes); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		return bindQueues(ch, lanes)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range []Exchange{ExchangeTasks, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	return nil
}

// laneQueueArgs — аргументы lane-очереди: DLX, приоритеты и consumer timeout.
func laneQueueArgs(l LaneQueue) amqp.Table {
	args := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
		"x-max-priority":            int32(MaxPriority),
	}
	if l.ConsumerTimeout > 0 {
		args["x-consumer-timeout"] = l.ConsumerTimeout.Milliseconds()
	}
	return args
}

// declareQueues создаёт lane-очереди и DLQ.
func declareQueues(ch *amqp.Channel, lanes []LaneQueue) error {
	for _, l := range lanes {
		name := LaneQueueName(l.Lane)
		_, err := ch.QueueDeclare(
			string(name),     // name
			true,             // durable
			false,            // delete when unused
			false,            // exclusive
			false,            // no-wait
			laneQueueArgs(l), // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	_, err := ch.QueueDeclare(string(QueueDLQTasks), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDLQTasks, err)
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel, lanes []LaneQueue) error {
	type binding struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}

	bindings := make([]binding, 0, len(lanes)+1)
	for _, l := range lanes {
		bindings = append(bindings, binding{LaneQueueName(l.Lane), LaneRoutingKey(l.Lane), ExchangeTasks})
	}
	bindings = append(bindings, binding{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ})

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(lanes []LaneQueue) string {
	var b strings.Builder
	b.WriteString("Kickoff RabbitMQ Topology:\n\n")
	fmt.Fprintf(&b, "  %s (direct)\n", ExchangeTasks)
	for _, l := range lanes {
		fmt.Fprintf(&b, "  ├── %s [routing: %s, consumer timeout: %s]\n",
			LaneQueueName(l.Lane), LaneRoutingKey(l.Lane), l.ConsumerTimeout)
	}
	fmt.Fprintf(&b, "\n  %s (direct)\n", ExchangeDLQ)
	fmt.Fprintf(&b, "  └── %s [routing: %s] → dead letter archive\n", QueueDLQTasks, RoutingKeyDLQTasks)
	return b.String()
}
