package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
)

// heartbeatInterval — период keep-alive комментариев в SSE-потоке.
// Прокси обрывают тихие соединения; комментарий не виден клиенту.
const heartbeatInterval = 15 * time.Second

// StreamRunEvents обрабатывает GET /api/v1/runs/{id}/events.
//
// Server-Sent Events: соединение держится открытым, события run
// пишутся по мере поступления. Первым всегда отправляется снапшот
// run:status — клиент получает текущее состояние, даже если run уже
// завершён и новых событий не будет.
func (h *Handler) StreamRunEvents(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, _, err := h.svc.GetRun(r.Context(), runID)
	if HandleServiceError(w, h.logger, err, "run not found") {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, h.logger, fmt.Errorf("response writer does not support streaming"))
		return
	}

	obs := h.gateway.Register(0)
	defer h.gateway.Disconnect(obs.ID())

	if err := h.gateway.Subscribe(obs.ID(), runID); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot := domain.NewRunStatusEvent(run)
	h.writeSSE(w, string(snapshot.Kind), snapshot.Payload)
	flusher.Flush()

	h.logger.Debug("sse stream opened", "run_id", runID, "observer_id", obs.ID())

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("sse client disconnected", "run_id", runID)
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case ev, open := <-obs.Events():
			if !open {
				// Observer отключён gateway'ем (переполнение буфера).
				h.logger.Warn("sse stream closed by gateway", "run_id", runID)
				return
			}
			h.writeSSE(w, string(ev.Kind), ev.Payload)
			flusher.Flush()
		}
	}
}

// writeSSE пишет одно событие в формате Server-Sent Events.
func (h *Handler) writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal sse payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
