package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// --- Типы ответов (дублируют api/dto.go) ---

// SubmitResponse — принятая заявка.
type SubmitResponse struct {
	SessionID  string  `json:"session_id"`
	PropertyID *string `json:"property_id"`
	Status     string  `json:"status"`
}

// StepResponse — состояние шага.
type StepResponse struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	SkipReason  string `json:"skip_reason,omitempty"`
	Attempts    int    `json:"attempts"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// StepErrorResponse — ошибка шага.
type StepErrorResponse struct {
	Step      string `json:"step"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse — статус run'а.
type StatusResponse struct {
	SessionID      string                  `json:"session_id"`
	Status         string                  `json:"status"`
	CurrentStep    *string                 `json:"current_step"`
	CompletedSteps []string                `json:"completed_steps"`
	Errors         []StepErrorResponse     `json:"errors"`
	PropertyID     *string                 `json:"property_id"`
	URL            string                  `json:"url"`
	Steps          map[string]StepResponse `json:"steps"`
	CacheDecision  map[string]any          `json:"cache_decision,omitempty"`
	CreatedAt      string                  `json:"created_at"`
	UpdatedAt      string                  `json:"updated_at"`
	FinishedAt     string                  `json:"finished_at,omitempty"`
}

// IsTerminal сообщает, что run завершён.
func (s *StatusResponse) IsTerminal() bool {
	switch s.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// MissingResponse — недостающие извлечения объекта.
type MissingResponse struct {
	PropertyID string   `json:"property_id"`
	Missing    []string `json:"missing"`
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент API онбординга.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit отправляет заявку на онбординг.
func (c *Client) Submit(ctx context.Context, rawURL string, force bool) (*SubmitResponse, error) {
	body := map[string]any{"url": rawURL, "force_reonboard": force}
	var resp SubmitResponse
	err := c.doData(ctx, http.MethodPost, "/api/v1/onboarding", body, &resp)
	return &resp, err
}

// Status возвращает статус run'а.
func (c *Client) Status(ctx context.Context, sessionID string) (*StatusResponse, error) {
	var resp StatusResponse
	err := c.doData(ctx, http.MethodGet, "/api/v1/onboarding/"+url.PathEscape(sessionID), nil, &resp)
	return &resp, err
}

// Retry возвращает упавший шаг в работу.
func (c *Client) Retry(ctx context.Context, sessionID, step string) error {
	body := map[string]string{"step_name": step}
	return c.doData(ctx, http.MethodPost, "/api/v1/onboarding/"+url.PathEscape(sessionID)+"/retry", body, nil)
}

// Cancel отменяет run.
func (c *Client) Cancel(ctx context.Context, sessionID string) (*StatusResponse, error) {
	var resp StatusResponse
	err := c.doData(ctx, http.MethodPost, "/api/v1/onboarding/"+url.PathEscape(sessionID)+"/cancel", nil, &resp)
	return &resp, err
}

// Missing возвращает недостающие извлечения объекта.
func (c *Client) Missing(ctx context.Context, propertyID string) (*MissingResponse, error) {
	var resp MissingResponse
	err := c.doData(ctx, http.MethodGet, "/api/v1/properties/"+url.PathEscape(propertyID)+"/missing-extractions", nil, &resp)
	return &resp, err
}

// WaitFinished опрашивает статус, пока run не завершится.
func (c *Client) WaitFinished(ctx context.Context, sessionID string, interval time.Duration) (*StatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if status.IsTerminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// --- HTTP helpers ---

func (c *Client) doData(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
