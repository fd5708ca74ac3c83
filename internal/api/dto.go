package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
)

// CreatePipelineRequest — тело запроса создания pipeline.
type CreatePipelineRequest struct {
	Name   string                `json:"name"`
	Config domain.PipelineConfig `json:"config"`
}

// TriggerRunRequest — тело запроса запуска pipeline.
// Все поля опциональны.
type TriggerRunRequest struct {
	Repo        string         `json:"repo"`
	Branch      string         `json:"branch"`
	TriggeredBy string         `json:"triggeredBy"`
	Meta        map[string]any `json:"meta"`
}

// ReportRunStatusRequest — отчёт внешней CI-системы о статусе run.
type ReportRunStatusRequest struct {
	Status string `json:"status"`
	CIURL  string `json:"ciUrl"`
}

// ReportStepRequest — отчёт внешней CI-системы о статусе шага.
type ReportStepRequest struct {
	RunID    string `json:"runId"`
	StepName string `json:"stepName"`
	Stage    string `json:"stage"`
	Status   string `json:"status"`
}

// ReportLogRequest — лог-строка от внешней CI-системы.
type ReportLogRequest struct {
	RunID    string     `json:"runId"`
	StepName string     `json:"stepName"`
	Level    string     `json:"level"`
	Message  string     `json:"message"`
	Ts       *time.Time `json:"ts"`
}

// PipelineResponse — pipeline в ответе API.
type PipelineResponse struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Config    domain.PipelineConfig `json:"config"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// PipelineFromDomain преобразует доменный Pipeline в DTO.
func PipelineFromDomain(p *domain.Pipeline) PipelineResponse {
	return PipelineResponse{
		ID:        p.ID,
		Name:      p.Name,
		Config:    p.Config,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// RunResponse — run в ответе API.
type RunResponse struct {
	ID          uuid.UUID        `json:"id"`
	PipelineID  uuid.UUID        `json:"pipelineId"`
	Repo        string           `json:"repo,omitempty"`
	Branch      string           `json:"branch,omitempty"`
	TriggeredBy string           `json:"triggeredBy,omitempty"`
	Status      domain.RunStatus `json:"status"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	FinishedAt  *time.Time       `json:"finishedAt,omitempty"`
	DurationMs  int64            `json:"durationMs,omitempty"`
	Error       string           `json:"error,omitempty"`
	Meta        map[string]any   `json:"meta,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	Steps       []StepResponse   `json:"steps,omitempty"`
}

// RunFromDomain преобразует доменный Run в DTO.
func RunFromDomain(r *domain.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		PipelineID:  r.PipelineID,
		Repo:        r.Repo,
		Branch:      r.Branch,
		TriggeredBy: r.TriggeredBy,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationMs:  r.Duration().Milliseconds(),
		Error:       r.Error(),
		Meta:        r.Meta,
		CreatedAt:   r.CreatedAt,
	}
}

// RunWithStepsFromDomain преобразует run вместе с его шагами.
func RunWithStepsFromDomain(r *domain.Run, steps []domain.Step) RunResponse {
	resp := RunFromDomain(r)
	resp.Steps = make([]StepResponse, len(steps))
	for i := range steps {
		resp.Steps[i] = StepFromDomain(&steps[i])
	}
	return resp
}

// StepResponse — step в ответе API.
type StepResponse struct {
	ID         uuid.UUID         `json:"id"`
	RunID      uuid.UUID         `json:"runId"`
	Seq        int               `json:"seq"`
	Name       string            `json:"name"`
	Stage      string            `json:"stage"`
	Status     domain.StepStatus `json:"status"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	DurationMs int64             `json:"durationMs,omitempty"`
}

// StepFromDomain преобразует доменный Step в DTO.
func StepFromDomain(s *domain.Step) StepResponse {
	return StepResponse{
		ID:         s.ID,
		RunID:      s.RunID,
		Seq:        s.Seq,
		Name:       s.Name,
		Stage:      s.Stage,
		Status:     s.Status,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		DurationMs: s.Duration().Milliseconds(),
	}
}

// LogLineResponse — лог-строка в ответе API.
type LogLineResponse struct {
	RunID   uuid.UUID  `json:"runId"`
	StepID  *uuid.UUID `json:"stepId,omitempty"`
	Ts      time.Time  `json:"ts"`
	Level   string     `json:"level"`
	Message string     `json:"message"`
}

// LogLineFromDomain преобразует доменную LogLine в DTO.
func LogLineFromDomain(l domain.LogLine) LogLineResponse {
	return LogLineResponse{
		RunID:   l.RunID,
		StepID:  l.StepID,
		Ts:      l.Ts,
		Level:   l.Level,
		Message: l.Message,
	}
}
