package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/resilience"
)

const defaultFeedTimeout = 30 * time.Second

// LiveScore — текущее состояние матча из live-фида.
type LiveScore struct {
	Status domain.MatchStatus `json:"status"`
	Home   int                `json:"home"`
	Away   int                `json:"away"`
	Minute int                `json:"minute"`
}

// FeedClient — клиент upstream-фида данных матча.
//
// Эндпоинты:
//
//	GET {base}/matches/{id}/analysis
//	GET {base}/matches/{id}/odds
//	GET {base}/matches/{id}/lineups
//	GET {base}/matches/{id}/live
type FeedClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewFeedClient создаёт новый FeedClient.
func NewFeedClient(baseURL, apiKey string, client *http.Client) *FeedClient {
	if client == nil {
		client = &http.Client{Timeout: defaultFeedTimeout}
	}
	return &FeedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// Fetch загружает сырые данные матча вида kind.
// Пустой ответ (204) возвращает nil без ошибки: данных ещё нет.
func (c *FeedClient) Fetch(ctx context.Context, matchID, kind string) (json.RawMessage, error) {
	body, status, err := c.get(ctx, matchID, kind)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s feed returned invalid json", resilience.ErrParse, kind)
	}
	return json.RawMessage(body), nil
}

// LiveScore возвращает текущее состояние матча.
func (c *FeedClient) LiveScore(ctx context.Context, matchID string) (*LiveScore, error) {
	body, _, err := c.get(ctx, matchID, "live")
	if err != nil {
		return nil, err
	}

	var raw struct {
		Status string `json:"status"`
		Home   int    `json:"home"`
		Away   int    `json:"away"`
		Minute int    `json:"minute"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode live score: %v", resilience.ErrParse, err)
	}

	return &LiveScore{
		Status: domain.ParseMatchStatus(raw.Status),
		Home:   raw.Home,
		Away:   raw.Away,
		Minute: raw.Minute,
	}, nil
}

func (c *FeedClient) get(ctx context.Context, matchID, kind string) ([]byte, int, error) {
	u := fmt.Sprintf("%s/matches/%s/%s", c.baseURL, url.PathEscape(matchID), kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s response: %w", kind, err)
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, &resilience.StatusError{
			Code:    resp.StatusCode,
			Message: truncate(string(body), maxErrorBody),
		}
	}
	return body, resp.StatusCode, nil
}
