package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/repo"
	"github.com/smolev/konveyer/internal/service"
)

// ListRuns обрабатывает GET /api/v1/runs.
//
// Фильтры: pipeline_id, status, repo, branch, limit, offset.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{
		Repo:   q.Get("repo"),
		Branch: q.Get("branch"),
	}

	if raw := q.Get("pipeline_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid pipeline_id")
			return
		}
		filter.PipelineID = &id
	}

	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseRunStatus(raw)
		if !ok {
			BadRequest(w, "invalid status: "+raw)
			return
		}
		filter.Status = status
	}

	filter.Limit = intQuery(q.Get("limit"))
	filter.Offset = intQuery(q.Get("offset"))

	runs, err := h.svc.ListRuns(r.Context(), filter)
	if HandleServiceError(w, h.logger, err, "runs not found") {
		return
	}

	resp := make([]RunResponse, len(runs))
	for i := range runs {
		resp[i] = RunFromDomain(&runs[i])
	}
	List(w, resp, len(resp))
}

// TriggerRun обрабатывает POST /api/v1/pipelines/{id}/runs.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	pipelineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	// Тело опционально: запуск без параметров валиден.
	var req TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	run, err := h.svc.TriggerRun(r.Context(), pipelineID, service.TriggerOptions{
		Repo:        req.Repo,
		Branch:      req.Branch,
		TriggeredBy: req.TriggeredBy,
		Meta:        req.Meta,
	})
	if HandleServiceError(w, h.logger, err, "pipeline not found") {
		return
	}

	Created(w, RunFromDomain(run))
}

// GetRun обрабатывает GET /api/v1/runs/{id}. Ответ включает steps.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, steps, err := h.svc.GetRun(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunWithStepsFromDomain(run, steps))
}

// CancelRun обрабатывает POST /api/v1/runs/{id}/cancel.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.svc.CancelRun(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(run))
}

// Rerun обрабатывает POST /api/v1/runs/{id}/rerun.
func (h *Handler) Rerun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.svc.Rerun(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "run not found") {
		return
	}

	Created(w, RunFromDomain(run))
}

// RunLogs обрабатывает GET /api/v1/runs/{id}/logs.
//
// Фильтры: step_id, limit, offset.
func (h *Handler) RunLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	q := r.URL.Query()
	filter := repo.LogFilter{
		Limit:  intQuery(q.Get("limit")),
		Offset: intQuery(q.Get("offset")),
	}
	if raw := q.Get("step_id"); raw != "" {
		stepID, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid step_id")
			return
		}
		filter.StepID = &stepID
	}

	lines, err := h.svc.RunLogs(r.Context(), id, filter)
	if HandleServiceError(w, h.logger, err, "run not found") {
		return
	}

	resp := make([]LogLineResponse, len(lines))
	for i, line := range lines {
		resp[i] = LogLineFromDomain(line)
	}
	List(w, resp, len(resp))
}

// intQuery парсит числовой query-параметр, невалидное значение — 0.
func intQuery(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
