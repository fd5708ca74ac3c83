// Package bus — внутрипроцессная шина run-событий.
//
// Шина связывает producer'ов событий (executor, service, relay из
// konveyer.events) с подписчиками gateway внутри одного процесса.
// Подписка привязана к runID: подписчик видит только события своего run.
//
// Гарантии:
//   - порядок событий одного run сохраняется для каждого подписчика;
//   - доставка только подписанным на момент публикации, без replay;
//   - медленный подписчик с переполненным буфером отключается,
//     публикация никогда не блокируется.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
)

// defaultBufferSize — размер буфера подписки по умолчанию.
const defaultBufferSize = 64

// Subscription — подписка на события одного run.
type Subscription struct {
	runID  uuid.UUID
	events chan domain.Event

	once sync.Once
}

// RunID возвращает run, на который оформлена подписка.
func (s *Subscription) RunID() uuid.UUID {
	return s.runID
}

// Events возвращает канал событий. Канал закрывается при отписке
// или при отключении за медленное чтение.
func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// close закрывает канал подписки ровно один раз.
func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.events)
	})
}

// Bus — шина событий с подписками по runID.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

// New создаёт новую шину.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Subscribe оформляет подписку на события run.
// bufferSize <= 0 означает размер по умолчанию.
func (b *Bus) Subscribe(runID uuid.UUID, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	sub := &Subscription{
		runID:  runID,
		events: make(chan domain.Event, bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[runID] == nil {
		b.subs[runID] = make(map[*Subscription]struct{})
	}
	b.subs[runID][sub] = struct{}{}

	return sub
}

// Unsubscribe снимает подписку и закрывает её канал.
// Повторный вызов безопасен.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[sub.runID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.runID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

// Publish доставляет событие всем подписчикам его run.
//
// Доставка неблокирующая: подписчик с переполненным буфером
// отключается, его канал закрывается. Producer никогда не ждёт
// потребителя.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	set := b.subs[ev.RunID]
	targets := make([]*Subscription, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	var dropped []*Subscription
	for _, sub := range targets {
		select {
		case sub.events <- ev:
		default:
			dropped = append(dropped, sub)
		}
	}

	for _, sub := range dropped {
		b.logger.Warn("dropping slow subscriber", "run_id", sub.runID)
		b.Unsubscribe(sub)
	}
}

// PublishEvent доставляет событие подписчикам.
// Сигнатура совместима с sink'ами событий executor и service.
func (b *Bus) PublishEvent(_ context.Context, ev domain.Event) error {
	b.Publish(ev)
	return nil
}

// SubscriberCount возвращает число активных подписок на run.
func (b *Bus) SubscriberCount(runID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[runID])
}

// Close снимает все подписки и закрывает их каналы.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for runID, set := range b.subs {
		for sub := range set {
			sub.close()
		}
		delete(b.subs, runID)
	}
}
