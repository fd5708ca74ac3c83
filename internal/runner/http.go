package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smolev/konveyer/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPRunner — runner для шагов, делегируемых внешней CI-системе
// через HTTP-вызов.
//
// Config (из step.Meta):
//   - method (string): HTTP-метод (GET, POST, PUT, DELETE). Default: POST
//   - url (string): URL для запроса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// HTTP-код >= 400 означает провал шага; тело ответа попадает в лог.
type HTTPRunner struct{}

// Run выполняет HTTP-запрос шага.
func (r *HTTPRunner) Run(ctx context.Context, step *domain.Step, logs LogSink) (*Result, error) {
	method := getString(step.Meta, "method", http.MethodPost)
	url := getString(step.Meta, "url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrHTTPRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout(step.Meta))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := step.Meta["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}

	setHeaders(req, step.Meta)
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := r.log(ctx, logs, step, domain.LogLevelInfo,
		fmt.Sprintf("%s %s", method, url)); err != nil {
		return nil, err
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	if resp.StatusCode >= 400 {
		errMsg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		if err := r.log(ctx, logs, step, domain.LogLevelError, errMsg); err != nil {
			return nil, err
		}
		return &Result{Status: domain.StepStatusFailed, Error: errMsg}, nil
	}

	if err := r.log(ctx, logs, step, domain.LogLevelInfo,
		fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))); err != nil {
		return nil, err
	}

	return &Result{Status: domain.StepStatusSuccess}, nil
}

// log пишет одну строку в sink.
func (r *HTTPRunner) log(ctx context.Context, logs LogSink, step *domain.Step, level, message string) error {
	line := domain.LogLine{
		RunID:   step.RunID,
		StepID:  &step.ID,
		Ts:      time.Now().UTC(),
		Level:   level,
		Message: message,
	}
	if err := logs(ctx, line); err != nil {
		return fmt.Errorf("log sink: %w", err)
	}
	return nil
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}

// getTimeout извлекает таймаут из meta.
func getTimeout(meta map[string]any) time.Duration {
	if val, ok := meta["timeout_sec"]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultHTTPTimeout
}

// setHeaders устанавливает заголовки из meta.
func setHeaders(req *http.Request, meta map[string]any) {
	headers, ok := meta["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
