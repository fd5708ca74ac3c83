package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	// ExchangeRuns — очередь run'ов на выполнение.
	ExchangeRuns Exchange = "konveyer.runs"

	// ExchangeEvents — run-события для gateway-процессов.
	// Topic exchange: события run публикуются с ключом "run.<id>",
	// каждый gateway слушает "run.#" через свою эксклюзивную очередь.
	ExchangeEvents Exchange = "konveyer.events"

	// ExchangeDLQ — dead letter queue для некорректных сообщений.
	ExchangeDLQ Exchange = "konveyer.dlq"
)

// Queues.
const (
	QueueRunsQueued Queue = "runs.queued"
	QueueDLQRuns    Queue = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyQueued  RoutingKey = "queued"
	RoutingKeyDLQRuns RoutingKey = "runs"
)

// EventRoutingKey возвращает ключ маршрутизации для событий run.
func EventRoutingKey(runID string) RoutingKey {
	return RoutingKey("run." + runID)
}

// EventBindingPattern — паттерн подписки gateway на все run-события.
const EventBindingPattern = "run.#"

// SetupTopology объявляет exchanges, queues и bindings.
// Идемпотентно: повторное объявление с теми же параметрами безопасно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	ch := conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeRuns, "direct"},
		{ExchangeEvents, "topic"},
		{ExchangeDLQ, "direct"},
	}
	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// runs.queued — с DLQ: некорректные сообщения уходят в dlq.runs,
	// а не крутятся в очереди.
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueRunsQueued, dlqArgs},
		{QueueDLQRuns, nil},
	}
	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunsQueued, RoutingKeyQueued, ExchangeRuns},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	}
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
