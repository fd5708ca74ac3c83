package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/smolev/konveyer/internal/domain"
)

// EventSinkFunc принимает run-событие, доставленное через konveyer.events.
type EventSinkFunc func(ctx context.Context, ev domain.Event) error

// EventRelay доставляет run-события из topic exchange в процесс gateway.
//
// Каждый процесс объявляет собственную эксклюзивную auto-delete очередь
// и подписывает её на run.#: события видят все запущенные API-инстансы,
// а после рестарта очередь создаётся заново без накопленной истории.
// Replay прошлых событий, соответственно, невозможен.
type EventRelay struct {
	conn   *Connection
	logger *slog.Logger
	sink   EventSinkFunc
}

// NewEventRelay создаёт новый EventRelay.
func NewEventRelay(conn *Connection, logger *slog.Logger, sink EventSinkFunc) *EventRelay {
	return &EventRelay{conn: conn, logger: logger, sink: sink}
}

// Start подписывается на события и доставляет их в sink до отмены ctx.
func (r *EventRelay) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := r.setupConsume()
		if err != nil {
			r.logger.Error("failed to setup event relay", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.conn.ReconnectNotify():
				r.logger.Info("reconnected, restarting event relay")
				continue
			}
		}

		r.logger.Info("event relay started")

		if err := r.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("event deliveries channel closed, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume объявляет эксклюзивную очередь, биндит её на run.#
// и начинает потребление.
func (r *EventRelay) setupConsume() (<-chan amqp.Delivery, error) {
	ch := r.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	q, err := ch.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare relay queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,                // queue name
		EventBindingPattern,   // routing key
		string(ExchangeEvents), // exchange
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("bind relay queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag (auto-generated)
		true,   // auto-ack: события fire-and-forget
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume relay queue: %w", err)
	}

	return deliveries, nil
}

// processDeliveries обрабатывает события из канала.
func (r *EventRelay) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			var ev domain.Event
			if err := json.Unmarshal(raw.Body, &ev); err != nil {
				r.logger.Error("failed to unmarshal event", "error", err, "body", string(raw.Body))
				continue
			}

			if err := r.sink(ctx, ev); err != nil {
				r.logger.Error("event sink failed", "run_id", ev.RunID, "kind", ev.Kind, "error", err)
			}
		}
	}
}
