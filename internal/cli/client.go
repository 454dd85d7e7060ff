package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// DeadLetterResponse — запись Dead Letter Archive.
type DeadLetterResponse struct {
	TaskID         string          `json:"task_id"`
	Lane           string          `json:"lane"`
	TaskType       string          `json:"task_type"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Reason         string          `json:"reason"`
	Attempts       int             `json:"attempts"`
	FailedAt       string          `json:"failed_at"`
}

// ProviderResponse — состояние провайдера прогнозов.
type ProviderResponse struct {
	Provider            string `json:"provider"`
	Status              string `json:"status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
	FailureReason       string `json:"failure_reason,omitempty"`
}

// ScheduleResponse — результат ручного планирования.
type ScheduleResponse struct {
	MatchID string `json:"match_id"`
	Created int    `json:"created"`
}

// CancelResponse — результат отмены задач матча.
type CancelResponse struct {
	MatchID   string `json:"match_id"`
	Cancelled int    `json:"cancelled"`
}

// ReconcileResponse — результат сверки.
type ReconcileResponse struct {
	ScheduledCount int `json:"scheduled_count"`
	MatchesSeen    int `json:"matches_seen"`
	StuckFixed     int `json:"stuck_fixed"`
	Failed         int `json:"failed"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Kickoff API.
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

// --- Dead letters ---

// ListDeadLetters возвращает страницу архива и общее число записей.
func (c *Client) ListDeadLetters(limit, offset int) ([]DeadLetterResponse, int, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	var entries []DeadLetterResponse
	total, err := c.list("/api/v1/dlq", params, &entries)
	return entries, total, err
}

// CountDeadLetters возвращает размер архива.
func (c *Client) CountDeadLetters() (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.get("/api/v1/dlq/count", &resp)
	return resp.Count, err
}

// DeleteDeadLetter удаляет запись архива.
func (c *Client) DeleteDeadLetter(lane, taskID string) error {
	return c.delete("/api/v1/dlq/" + url.PathEscape(lane) + "/" + url.PathEscape(taskID))
}

// ClearDeadLetters очищает архив и возвращает число удалённых записей.
func (c *Client) ClearDeadLetters() (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	err := c.doData(http.MethodDelete, "/api/v1/dlq", nil, &resp)
	return resp.Removed, err
}

// --- Providers ---

// ListProviders возвращает состояние всех провайдеров.
func (c *Client) ListProviders() ([]ProviderResponse, error) {
	var providers []ProviderResponse
	_, err := c.list("/api/v1/providers", nil, &providers)
	return providers, err
}

// ListDisabledProviders возвращает автоматически отключённых провайдеров.
func (c *Client) ListDisabledProviders() ([]ProviderResponse, error) {
	var providers []ProviderResponse
	_, err := c.list("/api/v1/providers/disabled", nil, &providers)
	return providers, err
}

// --- Matches ---

// ScheduleMatch планирует задачи матча.
func (c *Client) ScheduleMatch(matchID string) (*ScheduleResponse, error) {
	var resp ScheduleResponse
	err := c.post("/api/v1/matches/"+url.PathEscape(matchID)+"/schedule", nil, &resp)
	return &resp, err
}

// CancelMatch отменяет задачи матча.
func (c *Client) CancelMatch(matchID string) (*CancelResponse, error) {
	var resp CancelResponse
	err := c.post("/api/v1/matches/"+url.PathEscape(matchID)+"/cancel", nil, &resp)
	return &resp, err
}

// Reconcile запускает внеплановую сверку.
func (c *Client) Reconcile() (*ReconcileResponse, error) {
	var resp ReconcileResponse
	err := c.post("/api/v1/reconcile", nil, &resp)
	return &resp, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
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

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
