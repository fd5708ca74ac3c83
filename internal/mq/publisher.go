package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/smolev/konveyer/internal/domain"
)

// MessageType — тип сообщения в очереди runs.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunQueued MessageType = "run.queued"
)

// Message — конверт сообщения очереди runs.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunQueuedPayload — payload сообщения о run'е, ожидающем выполнения.
type RunQueuedPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// publish отправляет готовое тело в exchange с указанным routing key.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, key RoutingKey, body []byte, messageID string) error {
	ch := p.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	err := ch.PublishWithContext(
		ctx,
		string(exchange), // exchange
		string(key),      // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
	}
	return nil
}

// PublishRunQueued ставит run в очередь на выполнение.
// Потребитель: dispatcher.
func (p *Publisher) PublishRunQueued(ctx context.Context, runID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeRunQueued,
		Payload:   RunQueuedPayload{RunID: runID},
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := p.publish(ctx, ExchangeRuns, RoutingKeyQueued, body, msg.ID); err != nil {
		return err
	}

	p.logger.Debug("published run.queued", "run_id", runID)
	return nil
}

// PublishEvent публикует run-событие в topic exchange событий.
// Fire-and-forget: доставка гарантируется только подключённым
// на момент публикации gateway-процессам, replay'а нет.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := EventRoutingKey(ev.RunID.String())
	if err := p.publish(ctx, ExchangeEvents, key, body, uuid.New().String()); err != nil {
		return err
	}

	p.logger.Debug("published event", "run_id", ev.RunID, "kind", ev.Kind)
	return nil
}
