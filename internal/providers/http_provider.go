package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/orchestrator"
	"github.com/shaiso/Kickoff/internal/resilience"
)

const (
	defaultProviderTimeout = 90 * time.Second
	maxErrorBody           = 200
	maxResponseBody        = 10 * 1024 * 1024 // 10 MB
)

// HTTPProvider — провайдер прогнозов с JSON batch-эндпоинтом.
//
// Запрос:
//
//	POST {endpoint}
//	{"model": "...", "matches": [{"id", "home_team", "away_team", "competition", "kickoff_at"}]}
//
// Ответ:
//
//	{"predictions": [{"match_id", "home", "away"}], "failed_match_ids": [...],
//	 "usage": {"input_tokens", "output_tokens", "cost_usd"}, "error": "..."}
type HTTPProvider struct {
	spec   ProviderSpec
	apiKey string
	client *http.Client
}

// NewHTTPProvider создаёт HTTPProvider.
func NewHTTPProvider(spec ProviderSpec, apiKey string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{}
	}
	if spec.Timeout <= 0 {
		spec.Timeout = defaultProviderTimeout
	}
	return &HTTPProvider{spec: spec, apiKey: apiKey, client: client}
}

var (
	_ orchestrator.Provider = (*HTTPProvider)(nil)
	_ orchestrator.Pacer    = (*HTTPProvider)(nil)
)

// Name возвращает имя провайдера.
func (p *HTTPProvider) Name() string {
	return p.spec.Name
}

// CallInterval возвращает минимальный интервал между вызовами.
func (p *HTTPProvider) CallInterval() time.Duration {
	return p.spec.CallInterval
}

type batchMatch struct {
	ID          string    `json:"id"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	Competition string    `json:"competition,omitempty"`
	KickoffAt   time.Time `json:"kickoff_at"`
}

type batchRequest struct {
	Model   string       `json:"model,omitempty"`
	Matches []batchMatch `json:"matches"`
}

type batchPrediction struct {
	MatchID string `json:"match_id"`
	Home    *int   `json:"home"`
	Away    *int   `json:"away"`
}

type batchResponse struct {
	Predictions    []batchPrediction  `json:"predictions"`
	FailedMatchIDs []string           `json:"failed_match_ids"`
	Usage          orchestrator.Usage `json:"usage"`
	Error          string             `json:"error"`
}

// PredictBatch реализует orchestrator.Provider.
func (p *HTTPProvider) PredictBatch(ctx context.Context, req orchestrator.BatchRequest) (*orchestrator.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.spec.Timeout)
	defer cancel()

	body := batchRequest{Model: p.spec.Model, Matches: make([]batchMatch, len(req.Matches))}
	for i, m := range req.Matches {
		body.Matches[i] = batchMatch{
			ID:          m.ID,
			HomeTeam:    m.HomeTeam,
			AwayTeam:    m.AwayTeam,
			Competition: m.Competition,
			KickoffAt:   m.KickoffAt,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.spec.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", p.spec.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &resilience.StatusError{
			Code:    resp.StatusCode,
			Message: truncate(string(respBody), maxErrorBody),
		}
	}

	var decoded batchResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return &orchestrator.BatchResult{ProcessingTime: elapsed},
			fmt.Errorf("%w: decode %s response: %v", resilience.ErrParse, p.spec.Name, err)
	}

	return buildResult(req, decoded, elapsed), nil
}

// buildResult оставляет только прогнозы на запрошенные матчи с корректным счётом.
func buildResult(req orchestrator.BatchRequest, resp batchResponse, elapsed time.Duration) *orchestrator.BatchResult {
	requested := make(map[string]bool, len(req.Matches))
	for _, id := range req.MatchIDs() {
		requested[id] = true
	}

	result := &orchestrator.BatchResult{
		Predictions:    make(map[string]domain.Score, len(resp.Predictions)),
		ProcessingTime: elapsed,
		FailedMatchIDs: resp.FailedMatchIDs,
		Usage:          resp.Usage,
		Error:          resp.Error,
	}

	for _, pr := range resp.Predictions {
		if !requested[pr.MatchID] || pr.Home == nil || pr.Away == nil || *pr.Home < 0 || *pr.Away < 0 {
			continue
		}
		result.Predictions[pr.MatchID] = domain.Score{Home: *pr.Home, Away: *pr.Away}
	}

	result.Success = len(result.Predictions) > 0 && resp.Error == ""
	if resp.Error == "" && len(result.Predictions) == 0 {
		result.Error = "no predictions in response"
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Не режем многобайтовый символ
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
