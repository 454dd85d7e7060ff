package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди (совпадает с типом задачи).
type MessageType string

// HeaderIdempotencyKey — AMQP заголовок с ключом идемпотентности задачи.
const HeaderIdempotencyKey = "x-idempotency-key"

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Lane — lane, в которую адресовано сообщение.
	Lane string `json:"lane,omitempty"`

	// IdempotencyKey — ключ задачи.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, lane, idempotencyKey string, payload any) *Message {
	return &Message{
		ID:             uuid.New().String(),
		Type:           msgType,
		Lane:           lane,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
		Timestamp:      time.Now(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, priority uint8) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if priority > MaxPriority {
		priority = MaxPriority
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Priority:     priority,
				Type:         string(msg.Type),
				Headers:      amqp.Table{HeaderIdempotencyKey: msg.IdempotencyKey},
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
			"idempotency_key", msg.IdempotencyKey,
		)

		return nil
	})
}

// PublishToLane публикует задачу в очередь lane.
// Потребитель: Worker этой lane.
func (p *Publisher) PublishToLane(ctx context.Context, lane string, msg *Message, priority uint8) error {
	msg.Lane = lane
	return p.Publish(ctx, ExchangeTasks, LaneRoutingKey(lane), msg, priority)
}

// IsHealthy сообщает о здоровье соединения под publisher.
func (p *Publisher) IsHealthy() bool {
	return p.conn.IsHealthy()
}
