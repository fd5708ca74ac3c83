// Package gateway управляет подписками observer'ов на run-события.
//
// Observer — один подключённый клиент (SSE-соединение). Observer может
// следить за несколькими run'ами одновременно; все события его run'ов
// сливаются в один упорядоченный исходящий канал.
//
// Gateway сидит поверх внутрипроцессной шины событий: на каждый
// интересующий run observer получает подписку шины, а gateway
// перекачивает события из неё в буфер observer'а. Observer, чей буфер
// переполнен, отключается целиком: клиент, не успевающий читать,
// не должен задерживать остальных.
package gateway

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/bus"
	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/telemetry"
)

// defaultObserverBuffer — размер исходящего буфера observer'а.
const defaultObserverBuffer = 256

// Observer — подключённый подписчик run-событий.
type Observer struct {
	id     uuid.UUID
	events chan domain.Event
	done   chan struct{}

	mu   sync.Mutex
	subs map[uuid.UUID]*bus.Subscription

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ID возвращает идентификатор observer'а.
func (o *Observer) ID() uuid.UUID {
	return o.id
}

// Events возвращает исходящий канал событий.
// Канал закрывается при Disconnect или при отключении за медленное чтение.
func (o *Observer) Events() <-chan domain.Event {
	return o.events
}

// Gateway — реестр observer'ов и их подписок на run'ы.
type Gateway struct {
	bus    *bus.Bus
	logger *slog.Logger

	mu        sync.RWMutex
	observers map[uuid.UUID]*Observer
}

// New создаёт новый Gateway поверх шины событий.
func New(b *bus.Bus, logger *slog.Logger) *Gateway {
	return &Gateway{
		bus:       b,
		logger:    logger,
		observers: make(map[uuid.UUID]*Observer),
	}
}

// Register регистрирует нового observer'а.
// bufferSize <= 0 означает размер по умолчанию.
func (g *Gateway) Register(bufferSize int) *Observer {
	if bufferSize <= 0 {
		bufferSize = defaultObserverBuffer
	}

	obs := &Observer{
		id:     uuid.New(),
		events: make(chan domain.Event, bufferSize),
		done:   make(chan struct{}),
		subs:   make(map[uuid.UUID]*bus.Subscription),
	}

	g.mu.Lock()
	g.observers[obs.id] = obs
	g.mu.Unlock()

	telemetry.ObserversConnected.Inc()
	g.logger.Debug("observer registered", "observer_id", obs.id)

	return obs
}

// Subscribe подписывает observer'а на события run.
// Повторная подписка на тот же run — no-op.
func (g *Gateway) Subscribe(observerID, runID uuid.UUID) error {
	obs := g.observer(observerID)
	if obs == nil {
		return fmt.Errorf("observer %s not registered", observerID)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()

	if _, ok := obs.subs[runID]; ok {
		return nil
	}

	sub := g.bus.Subscribe(runID, 0)
	obs.subs[runID] = sub

	obs.wg.Add(1)
	go g.pump(obs, sub)

	g.logger.Debug("observer subscribed", "observer_id", observerID, "run_id", runID)
	return nil
}

// Unsubscribe снимает подписку observer'а на run.
// Отсутствующая подписка — no-op.
func (g *Gateway) Unsubscribe(observerID, runID uuid.UUID) {
	obs := g.observer(observerID)
	if obs == nil {
		return
	}

	obs.mu.Lock()
	sub, ok := obs.subs[runID]
	delete(obs.subs, runID)
	obs.mu.Unlock()

	if ok {
		// Закрытие канала подписки завершает pump.
		g.bus.Unsubscribe(sub)
		g.logger.Debug("observer unsubscribed", "observer_id", observerID, "run_id", runID)
	}
}

// Disconnect полностью отключает observer'а: снимает все его подписки
// и закрывает исходящий канал. Повторный вызов безопасен.
func (g *Gateway) Disconnect(observerID uuid.UUID) {
	g.mu.Lock()
	obs, ok := g.observers[observerID]
	delete(g.observers, observerID)
	g.mu.Unlock()

	if !ok {
		return
	}

	obs.closeOnce.Do(func() {
		close(obs.done)

		obs.mu.Lock()
		for runID, sub := range obs.subs {
			g.bus.Unsubscribe(sub)
			delete(obs.subs, runID)
		}
		obs.mu.Unlock()

		// Дожидаемся pump'ов перед закрытием исходящего канала.
		obs.wg.Wait()
		close(obs.events)

		telemetry.ObserversConnected.Dec()
		g.logger.Debug("observer disconnected", "observer_id", observerID)
	})
}

// ObserverCount возвращает число зарегистрированных observer'ов.
func (g *Gateway) ObserverCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.observers)
}

// observer возвращает observer'а по ID, nil если не зарегистрирован.
func (g *Gateway) observer(id uuid.UUID) *Observer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.observers[id]
}

// pump перекачивает события подписки шины в буфер observer'а.
// Переполненный буфер означает, что клиент не успевает читать:
// такой observer отключается целиком.
func (g *Gateway) pump(obs *Observer, sub *bus.Subscription) {
	defer obs.wg.Done()

	for {
		select {
		case <-obs.done:
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}

			select {
			case <-obs.done:
				return
			case obs.events <- ev:
			default:
				telemetry.ObserversDropped.Inc()
				g.logger.Warn("dropping slow observer",
					"observer_id", obs.id,
					"run_id", sub.RunID(),
				)
				// Disconnect ждёт завершения pump'ов, поэтому из
				// самого pump'а зовём его асинхронно.
				go g.Disconnect(obs.id)
				return
			}
		}
	}
}
