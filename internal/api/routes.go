package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("POST /api/v1/pipelines", chain(http.HandlerFunc(h.CreatePipeline)))
	mux.Handle("GET /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.GetPipeline)))
	mux.Handle("DELETE /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.DeletePipeline)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/pipelines/{id}/runs", chain(http.HandlerFunc(h.TriggerRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))
	mux.Handle("POST /api/v1/runs/{id}/rerun", chain(http.HandlerFunc(h.Rerun)))
	mux.Handle("GET /api/v1/runs/{id}/logs", chain(http.HandlerFunc(h.RunLogs)))

	// CI integration
	mux.Handle("POST /api/v1/ci/runs/{id}/status", chain(http.HandlerFunc(h.ReportRunStatus)))
	mux.Handle("POST /api/v1/ci/steps", chain(http.HandlerFunc(h.ReportStep)))
	mux.Handle("POST /api/v1/ci/logs", chain(http.HandlerFunc(h.ReportLog)))

	// Events stream. Logging middleware сюда не вешаем: запрос живёт
	// столько же, сколько подписка.
	mux.Handle("GET /api/v1/runs/{id}/events", Recovery(h.logger)(http.HandlerFunc(h.StreamRunEvents)))
}
