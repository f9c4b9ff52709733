package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRemoteTimeout = 5 * time.Minute
	maxResponseBody      = 10 * 1024 * 1024 // 10 MB
	maxErrorBody         = 512
)

// RemoteExecutor — исполнитель, делегирующий шаг сервису извлечения.
//
// Запрос:
//
//	POST {baseURL}/v1/extract/{step}
//	{"session_id": "...", "step": "images", "url": "...", "domain": "...",
//	 "property_id": "...", "cache_decision": {...}, "attempt": 1}
//
// Ответ 2xx:
//
//	{"property_id": "...", "outputs": {...}, "artifacts": [...]}
//
// Любой другой код — *HTTPError.
type RemoteExecutor struct {
	baseURL string
	step    string
	client  *http.Client
}

// NewRemoteExecutor создаёт исполнитель шага step.
// client == nil — клиент с таймаутом по умолчанию.
func NewRemoteExecutor(baseURL, step string, client *http.Client) *RemoteExecutor {
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	return &RemoteExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		step:    step,
		client:  client,
	}
}

// RemoteExecutors создаёт исполнителей для всех names с общим клиентом.
func RemoteExecutors(baseURL string, client *http.Client, names ...string) map[string]Executor {
	out := make(map[string]Executor, len(names))
	for _, name := range names {
		out[name] = NewRemoteExecutor(baseURL, name, client)
	}
	return out
}

// Execute вызывает сервис извлечения.
func (e *RemoteExecutor) Execute(ctx context.Context, rc *RunContext) (*Result, error) {
	body, err := json.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("marshal run context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/extract/"+e.step, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", rc.SessionID.String())

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       truncate(string(respBody), maxErrorBody),
		}
	}

	result := &Result{}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("decode extraction result: %w", err)
		}
	}
	return result, nil
}

// HTTPError — ответ сервиса извлечения с кодом не 2xx.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Retryable возвращает true для кодов, которые имеет смысл повторить
// (429 и 5xx).
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsHTTPError проверяет, является ли ошибка HTTP ошибкой.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
