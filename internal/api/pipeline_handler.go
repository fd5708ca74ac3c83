package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// ListPipelines обрабатывает GET /api/v1/pipelines.
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.svc.ListPipelines(r.Context())
	if HandleServiceError(w, h.logger, err, "pipelines not found") {
		return
	}

	resp := make([]PipelineResponse, len(pipelines))
	for i := range pipelines {
		resp[i] = PipelineFromDomain(&pipelines[i])
	}
	List(w, resp, len(resp))
}

// CreatePipeline обрабатывает POST /api/v1/pipelines.
func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req CreatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	pipeline, err := h.svc.CreatePipeline(r.Context(), req.Name, req.Config)
	if HandleServiceError(w, h.logger, err, "pipeline not found") {
		return
	}

	Created(w, PipelineFromDomain(pipeline))
}

// GetPipeline обрабатывает GET /api/v1/pipelines/{id}.
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	pipeline, err := h.svc.GetPipeline(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(pipeline))
}

// DeletePipeline обрабатывает DELETE /api/v1/pipelines/{id}.
func (h *Handler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	if HandleServiceError(w, h.logger, h.svc.DeletePipeline(r.Context(), id), "pipeline not found") {
		return
	}

	NoContent(w)
}
