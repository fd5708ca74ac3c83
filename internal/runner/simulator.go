package runner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smolev/konveyer/internal/domain"
)

// logTemplates — пул сообщений симулируемого CI-шага.
var logTemplates = []string{
	"Installing dependencies...",
	"Checking environment configuration",
	"Running pre-build scripts",
	"Compiling source files",
	"Running linter",
	"Generating build artifacts",
	"Running test suite",
	"Code coverage: {coverage}%",
	"All tests passed",
	"Packaging application",
	"Uploading to artifact repository",
	"Deployment in progress",
	"Health check passed",
	"Rollout complete",
}

// SimulatorConfig — параметры симуляции.
type SimulatorConfig struct {
	// FailureRate — вероятность провала шага, [0, 1].
	FailureRate float64

	// MinLogLines, MaxLogLines — диапазон числа лог-строк на шаг.
	MinLogLines int
	MaxLogLines int

	// MinStepDuration, MaxStepDuration — диапазон длительности шага.
	MinStepDuration time.Duration
	MaxStepDuration time.Duration
}

// DefaultSimulatorConfig возвращает параметры по умолчанию.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		FailureRate:     0.1,
		MinLogLines:     5,
		MaxLogLines:     15,
		MinStepDuration: 2 * time.Second,
		MaxStepDuration: 8 * time.Second,
	}
}

// SimulatorConfigFromEnv читает параметры из переменных окружения,
// отсутствующие берёт из DefaultSimulatorConfig.
//
// Переменные: FAILURE_RATE, MIN_LOG_LINES, MAX_LOG_LINES,
// MIN_STEP_DURATION_MS, MAX_STEP_DURATION_MS.
func SimulatorConfigFromEnv() SimulatorConfig {
	cfg := DefaultSimulatorConfig()

	if v := os.Getenv("FAILURE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FailureRate = f
		}
	}
	if v := os.Getenv("MIN_LOG_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinLogLines = n
		}
	}
	if v := os.Getenv("MAX_LOG_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxLogLines = n
		}
	}
	if v := os.Getenv("MIN_STEP_DURATION_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinStepDuration = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("MAX_STEP_DURATION_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxStepDuration = time.Duration(n) * time.Millisecond
		}
	}

	return cfg
}

// Simulator — runner, симулирующий выполнение CI-шага.
//
// Генерирует случайное число лог-строк, растянутых на случайную
// длительность, и завершает шаг успехом или провалом согласно
// FailureRate. Имитация достаточно правдоподобна, чтобы гонять
// на ней всю цепочку run → steps → events → подписчики.
type Simulator struct {
	cfg SimulatorConfig
}

// NewSimulator создаёт Simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.MaxLogLines < cfg.MinLogLines {
		cfg.MaxLogLines = cfg.MinLogLines
	}
	if cfg.MaxStepDuration < cfg.MinStepDuration {
		cfg.MaxStepDuration = cfg.MinStepDuration
	}
	return &Simulator{cfg: cfg}
}

// Run симулирует выполнение step, стримя логи в sink.
func (s *Simulator) Run(ctx context.Context, step *domain.Step, logs LogSink) (*Result, error) {
	numLogs := randomBetween(s.cfg.MinLogLines, s.cfg.MaxLogLines)
	duration := s.cfg.MinStepDuration +
		time.Duration(rand.Int64N(int64(s.cfg.MaxStepDuration-s.cfg.MinStepDuration)+1))
	interval := duration / time.Duration(numLogs)

	for i := 0; i < numLogs; i++ {
		// Джиттер до 200ms поверх базового интервала.
		jitter := time.Duration(rand.Int64N(int64(200 * time.Millisecond)))
		if err := sleepCtx(ctx, interval+jitter); err != nil {
			return nil, err
		}

		line := domain.LogLine{
			RunID:   step.RunID,
			StepID:  &step.ID,
			Ts:      time.Now().UTC(),
			Level:   randomLevel(),
			Message: randomMessage(),
		}
		if err := logs(ctx, line); err != nil {
			return nil, fmt.Errorf("log sink: %w", err)
		}
	}

	if rand.Float64() < s.cfg.FailureRate {
		errMsg := "Step failed: Exit code 1"
		line := domain.LogLine{
			RunID:   step.RunID,
			StepID:  &step.ID,
			Ts:      time.Now().UTC(),
			Level:   domain.LogLevelError,
			Message: errMsg,
		}
		if err := logs(ctx, line); err != nil {
			return nil, fmt.Errorf("log sink: %w", err)
		}
		return &Result{Status: domain.StepStatusFailed, Error: errMsg}, nil
	}

	return &Result{Status: domain.StepStatusSuccess}, nil
}

// randomBetween возвращает случайное число из [min, max].
func randomBetween(min, max int) int {
	return min + rand.IntN(max-min+1)
}

// randomLevel выбирает уровень лога: изредка warn, обычно info.
func randomLevel() string {
	if rand.Float64() < 0.1 {
		return domain.LogLevelWarn
	}
	return domain.LogLevelInfo
}

// randomMessage выбирает сообщение из пула шаблонов.
func randomMessage() string {
	msg := logTemplates[rand.IntN(len(logTemplates))]
	if strings.Contains(msg, "{coverage}") {
		msg = strings.ReplaceAll(msg, "{coverage}", strconv.Itoa(randomBetween(75, 98)))
	}
	return msg
}

// sleepCtx спит заданное время или до отмены ctx.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
