// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление из очереди runs.queued (dispatcher)
//   - relay.go      — доставка run-событий в процесс gateway
//
// Exchanges:
//   - konveyer.runs   — очередь run'ов на выполнение (direct)
//   - konveyer.events — run-события для подписчиков (topic, routing key run.<id>)
//   - konveyer.dlq    — dead letter queue
package mq
