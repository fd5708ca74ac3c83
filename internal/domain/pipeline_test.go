package domain

import (
	"testing"

	"github.com/google/uuid"
)

func validConfig() PipelineConfig {
	return PipelineConfig{
		Stages: []StageDef{
			{Name: "Build", Steps: []StepDef{{Name: "compile", Command: "make build"}}},
			{Name: "Test", Steps: []StepDef{{Name: "unit", Command: "make test"}, {Name: "lint"}}},
		},
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	empty := PipelineConfig{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for config without stages")
	}

	noName := PipelineConfig{Stages: []StageDef{{Steps: []StepDef{{Name: "x"}}}}}
	if err := noName.Validate(); err == nil {
		t.Error("expected error for unnamed stage")
	}

	noSteps := PipelineConfig{Stages: []StageDef{{Name: "Build"}}}
	if err := noSteps.Validate(); err == nil {
		t.Error("expected error for stage without steps")
	}

	unnamedStep := PipelineConfig{Stages: []StageDef{{Name: "Build", Steps: []StepDef{{}}}}}
	if err := unnamedStep.Validate(); err == nil {
		t.Error("expected error for unnamed step")
	}
}

func TestBuildSteps(t *testing.T) {
	cfg := validConfig()
	runID := uuid.New()

	steps := cfg.BuildSteps(runID)
	if len(steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(steps))
	}

	wantNames := []string{"compile", "unit", "lint"}
	wantStages := []string{"Build", "Test", "Test"}
	for i, step := range steps {
		if step.Seq != i+1 {
			t.Errorf("steps[%d].Seq = %d, want %d", i, step.Seq, i+1)
		}
		if step.Name != wantNames[i] {
			t.Errorf("steps[%d].Name = %q, want %q", i, step.Name, wantNames[i])
		}
		if step.Stage != wantStages[i] {
			t.Errorf("steps[%d].Stage = %q, want %q", i, step.Stage, wantStages[i])
		}
		if step.RunID != runID {
			t.Errorf("steps[%d].RunID = %s", i, step.RunID)
		}
		if step.Status != StepStatusPending {
			t.Errorf("steps[%d].Status = %q, want pending", i, step.Status)
		}
		if step.ID == uuid.Nil {
			t.Errorf("steps[%d] has no id", i)
		}
		if step.CreatedAt.IsZero() {
			t.Errorf("steps[%d] has no created_at", i)
		}
	}

	// Command доезжает до meta, шаг без command получает пустую meta.
	if steps[0].Meta["command"] != "make build" {
		t.Errorf("meta.command = %v", steps[0].Meta["command"])
	}
	if _, ok := steps[2].Meta["command"]; ok {
		t.Error("step without command must not have meta.command")
	}
}

func TestRunMarkFailed(t *testing.T) {
	run := &Run{ID: uuid.New(), Status: RunStatusRunning}
	run.MarkFailed("step deploy failed")

	if run.Status != RunStatusFailed {
		t.Errorf("status = %q", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if run.Error() != "step deploy failed" {
		t.Errorf("Error() = %q", run.Error())
	}

	// Пустое сообщение не создаёт ключ в meta.
	clean := &Run{ID: uuid.New(), Status: RunStatusRunning}
	clean.MarkFailed("")
	if clean.Error() != "" {
		t.Errorf("Error() = %q, want empty", clean.Error())
	}
}

func TestRunDuration(t *testing.T) {
	run := &Run{}
	if run.Duration() != 0 {
		t.Error("unstarted run must have zero duration")
	}

	run.MarkRunning()
	if run.Duration() != 0 {
		t.Error("unfinished run must have zero duration")
	}

	run.MarkSuccess()
	if run.Duration() < 0 {
		t.Error("negative duration")
	}
}
