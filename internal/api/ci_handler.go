package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
)

// ReportRunStatus обрабатывает POST /api/v1/ci/runs/{id}/status.
//
// Внешняя CI-система сообщает статус run. Недопустимый переход
// отклоняется с 422.
func (h *Handler) ReportRunStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	var req ReportRunStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	status, ok := domain.ParseRunStatus(req.Status)
	if !ok {
		BadRequest(w, "invalid status: "+req.Status)
		return
	}

	run, err := h.svc.ReportRunStatus(r.Context(), runID, status, req.CIURL)
	if HandleServiceError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(run))
}

// ReportStep обрабатывает POST /api/v1/ci/steps.
//
// Шаг ищется по имени в рамках run; неизвестный шаг создаётся.
func (h *Handler) ReportStep(w http.ResponseWriter, r *http.Request) {
	var req ReportStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	runID, err := uuid.Parse(req.RunID)
	if err != nil {
		BadRequest(w, "invalid runId")
		return
	}

	status, ok := domain.ParseStepStatus(req.Status)
	if !ok {
		BadRequest(w, "invalid status: "+req.Status)
		return
	}

	step, err := h.svc.ReportStepStatus(r.Context(), runID, req.StepName, req.Stage, status)
	if HandleServiceError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, StepFromDomain(step))
}

// ReportLog обрабатывает POST /api/v1/ci/logs.
func (h *Handler) ReportLog(w http.ResponseWriter, r *http.Request) {
	var req ReportLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	runID, err := uuid.Parse(req.RunID)
	if err != nil {
		BadRequest(w, "invalid runId")
		return
	}

	var ts time.Time
	if req.Ts != nil {
		ts = *req.Ts
	}

	if HandleServiceError(w, h.logger,
		h.svc.ReportLog(r.Context(), runID, req.StepName, req.Level, req.Message, ts),
		"run not found") {
		return
	}

	NoContent(w)
}
