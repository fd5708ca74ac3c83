package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Pipeline — шаблон pipeline.
//
// Pipeline неизменяем: обновление возможно только заменой конфигурации
// целиком. Runs ссылаются на pipeline, но не владеют им.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Name — имя pipeline (например, "backend-ci").
	Name string `json:"name"`

	// Config — конфигурация: stages и их шаги.
	Config PipelineConfig `json:"config"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней замены конфигурации.
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineConfig — конфигурация pipeline (содержимое JSONB поля config).
type PipelineConfig struct {
	// Stages — упорядоченный список stages.
	Stages []StageDef `json:"stages"`

	// Schedule — опциональное cron-выражение для автоматического
	// запуска (5 полей, например "0 3 * * *"). Пустая строка —
	// pipeline запускается только вручную или по rerun.
	Schedule string `json:"schedule,omitempty"`
}

// StageDef — определение stage: именованная группа шагов.
type StageDef struct {
	// Name — имя stage (например, "Build", "Test").
	Name string `json:"name"`

	// Steps — упорядоченный список шагов stage.
	Steps []StepDef `json:"steps"`
}

// StepDef — определение шага в шаблоне.
type StepDef struct {
	// Name — имя шага.
	Name string `json:"name"`

	// Command — спецификация команды для step-runner'а.
	// Ядро передаёт её насквозь в meta шага.
	Command string `json:"command,omitempty"`
}

// Validate проверяет конфигурацию pipeline.
func (c *PipelineConfig) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("pipeline config has no stages")
	}
	for i, stage := range c.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if len(stage.Steps) == 0 {
			return fmt.Errorf("stage %q has no steps", stage.Name)
		}
		for j, step := range stage.Steps {
			if step.Name == "" {
				return fmt.Errorf("step %d in stage %q has no name", j, stage.Name)
			}
		}
	}
	return nil
}

// StepCount возвращает общее количество шагов во всех stages.
func (c *PipelineConfig) StepCount() int {
	n := 0
	for _, stage := range c.Stages {
		n += len(stage.Steps)
	}
	return n
}

// BuildSteps создаёт steps для нового run из шаблона.
// Шаги нумеруются по порядку обхода stages, статус pending.
func (c *PipelineConfig) BuildSteps(runID uuid.UUID) []Step {
	steps := make([]Step, 0, c.StepCount())
	now := time.Now().UTC()
	seq := 0
	for _, stage := range c.Stages {
		for _, def := range stage.Steps {
			seq++
			meta := map[string]any{}
			if def.Command != "" {
				meta["command"] = def.Command
			}
			steps = append(steps, Step{
				ID:        uuid.New(),
				RunID:     runID,
				Seq:       seq,
				Name:      def.Name,
				Stage:     stage.Name,
				Status:    StepStatusPending,
				Meta:      meta,
				CreatedAt: now,
			})
		}
	}
	return steps
}
