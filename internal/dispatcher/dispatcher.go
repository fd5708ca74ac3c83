// Package dispatcher связывает очередь runs.queued с executor'ом.
//
// Dispatcher потребляет сообщения run.queued и запускает выполнение
// каждого run в отдельной горутине, ограничивая число одновременных
// run'ов. Сообщение подтверждается при взятии run'а в работу:
// доставка at-most-once, повторный запуск уже идущего run'а гасится
// условным переходом queued → running в БД. Некорректные сообщения
// отвергаются с mq.ErrMalformed и уезжают в DLQ.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/mq"
	"github.com/smolev/konveyer/internal/telemetry"
)

// defaultConcurrency — число одновременно выполняемых run'ов по умолчанию.
const defaultConcurrency = 4

// RunExecutor выполняет один run целиком.
// Реализуется executor.Executor.
type RunExecutor interface {
	Execute(ctx context.Context, runID uuid.UUID) error
}

// Dispatcher — stateless компонент, масштабируется горизонтально:
// несколько экземпляров потребляют из одной очереди.
type Dispatcher struct {
	conn     *mq.Connection
	executor RunExecutor
	consumer *mq.Consumer

	concurrency int
	slots       chan struct{}

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Dispatcher.
type Config struct {
	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// Executor — исполнитель run'ов.
	Executor RunExecutor

	// Concurrency — максимум одновременных run'ов (default: 4).
	Concurrency int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Dispatcher.
func New(cfg Config) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		conn:        cfg.Conn,
		executor:    cfg.Executor,
		concurrency: concurrency,
		slots:       make(chan struct{}, concurrency),
		logger:      logger,
	}
}

// Start запускает потребление очереди runs.queued.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancelFunc = cancel

	d.logger.Info("starting dispatcher", "concurrency", d.concurrency)

	d.consumer = mq.NewConsumer(d.conn, d.logger, mq.ConsumerConfig{
		Queue:    mq.QueueRunsQueued,
		Handler:  d.handleRunQueued,
		Prefetch: d.concurrency,
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("run consumer error", "error", err)
		}
	}()

	d.logger.Info("dispatcher started")
	return nil
}

// Stop останавливает Dispatcher, дожидаясь выполняемых run'ов.
func (d *Dispatcher) Stop() {
	d.stoppedMu.Lock()
	d.stopped = true
	d.stoppedMu.Unlock()

	d.logger.Info("stopping dispatcher...")

	if d.cancelFunc != nil {
		d.cancelFunc()
	}
	if d.consumer != nil {
		d.consumer.Stop()
	}

	d.wg.Wait()

	d.logger.Info("dispatcher stopped")
}

// IsStopped проверяет, остановлен ли Dispatcher.
func (d *Dispatcher) IsStopped() bool {
	d.stoppedMu.RLock()
	defer d.stoppedMu.RUnlock()
	return d.stopped
}

// handleRunQueued обрабатывает сообщение run.queued.
//
// Блокируется, пока не освободится слот выполнения, затем запускает
// run в горутине и возвращается: consumer подтверждает сообщение,
// не дожидаясь конца run'а.
func (d *Dispatcher) handleRunQueued(ctx context.Context, msg *mq.Delivery) error {
	if msg.Message.Type != mq.MessageTypeRunQueued {
		return fmt.Errorf("%w: unexpected message type %s", mq.ErrMalformed, msg.Message.Type)
	}

	payload, err := mq.ParsePayload[mq.RunQueuedPayload](&msg.Message)
	if err != nil {
		return fmt.Errorf("%w: parse run.queued payload: %w", mq.ErrMalformed, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.slots <- struct{}{}:
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		logger := telemetry.WithRunID(d.logger, payload.RunID.String())
		logger.Info("dispatching run")

		if err := d.executor.Execute(ctx, payload.RunID); err != nil {
			logger.Error("run execution error", "error", err)
		}
	}()

	return nil
}
