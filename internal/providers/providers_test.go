package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/orchestrator"
	"github.com/shaiso/Kickoff/internal/resilience"
)

func testRequest(ids ...string) orchestrator.BatchRequest {
	var req orchestrator.BatchRequest
	for _, id := range ids {
		req.Matches = append(req.Matches, domain.Match{ID: id, HomeTeam: "Home", AwayTeam: "Away"})
	}
	return req
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPProvider(ProviderSpec{Name: "alpha", Endpoint: srv.URL, Model: "m-1"}, "secret", srv.Client())
}

func TestHTTPProvider_PredictBatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "m-1" || len(req.Matches) != 3 {
			t.Errorf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"predictions": [
				{"match_id": "a", "home": 2, "away": 1},
				{"match_id": "b", "home": 0, "away": 0},
				{"match_id": "ghost", "home": 1, "away": 1},
				{"match_id": "c", "home": -1, "away": 3}
			],
			"failed_match_ids": ["c"],
			"usage": {"input_tokens": 1200, "output_tokens": 90, "cost_usd": 0.004}
		}`))
	})

	res, err := p.PredictBatch(context.Background(), testRequest("a", "b", "c"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Predictions) != 2 {
		t.Fatalf("expected 2 usable predictions, got %v", res.Predictions)
	}
	if res.Predictions["a"] != (domain.Score{Home: 2, Away: 1}) {
		t.Errorf("unexpected prediction for a: %+v", res.Predictions["a"])
	}
	if _, ok := res.Predictions["ghost"]; ok {
		t.Error("prediction for unrequested match must be dropped")
	}
	if !res.Success {
		t.Error("response with predictions should be successful")
	}
	if res.Usage.InputTokens != 1200 || res.Usage.CostUSD != 0.004 {
		t.Errorf("unexpected usage: %+v", res.Usage)
	}
}

func TestHTTPProvider_ErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     resilience.ErrorKind
		terminal bool
	}{
		{"rate limit", 429, `{"error":"slow down"}`, resilience.KindRateLimit, false},
		{"server error", 502, `bad gateway`, resilience.KindServerError, false},
		{"unauthorized", 401, `{"error":"invalid api key"}`, resilience.KindClientError, true},
		{"payment required", 402, `{"error":"insufficient_quota"}`, resilience.KindClientError, true},
		{"bad request", 400, `{"error":"context too long"}`, resilience.KindClientError, false},
		{"gateway timeout", 504, ``, resilience.KindTimeout, false},
		{"garbage body", 200, `<html>oops</html>`, resilience.KindParseError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := p.PredictBatch(context.Background(), testRequest("a"))
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := resilience.Classify(err); kind != tt.kind {
				t.Errorf("Classify = %s, want %s (err: %v)", kind, tt.kind, err)
			}
			if got := resilience.IsTerminal(err); got != tt.terminal {
				t.Errorf("IsTerminal = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestHTTPProvider_EmptyPredictions(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"predictions": []}`))
	})

	res, err := p.PredictBatch(context.Background(), testRequest("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("empty response must not be successful")
	}
	if resilience.ClassifyMessage(res.Error) != resilience.KindParseError {
		t.Errorf("empty response should read as parse error, got %q", res.Error)
	}
}

func TestHTTPProvider_ResponseBodyLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		// Валидный JSON, но длиннее лимита
		w.Write([]byte(`{"predictions": [{"match_id": "a", "home": 1, "away": 0}]`))
		w.Write([]byte(strings.Repeat(" ", maxResponseBody)))
		w.Write([]byte(`}`))
	})

	_, err := p.PredictBatch(context.Background(), testRequest("a"))
	if err == nil {
		t.Fatal("oversized body must not be decoded")
	}
	if kind := resilience.Classify(err); kind != resilience.KindParseError {
		t.Errorf("Classify = %s, want %s", kind, resilience.KindParseError)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"ошибка", 3, "о..."},
		{"ошибка", 4, "ош..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestParseCatalogue(t *testing.T) {
	data := []byte(`
providers:
  - name: alpha
    endpoint: https://alpha.example/predict
    model: alpha-large
    api_key_env: ALPHA_KEY
    timeout: 45s
    call_interval: 2s
  - name: beta
    endpoint: https://beta.example/predict
    disabled: true
`)

	c, err := ParseCatalogue(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(c.Providers))
	}
	if c.Providers[0].Timeout != 45*time.Second || c.Providers[0].CallInterval != 2*time.Second {
		t.Errorf("durations not parsed: %+v", c.Providers[0])
	}
	if names := c.Names(); len(names) != 1 || names[0] != "alpha" {
		t.Errorf("expected only alpha enabled, got %v", names)
	}

	t.Setenv("ALPHA_KEY", "k")
	built := c.Build(nil)
	if len(built) != 1 || built[0].Name() != "alpha" {
		t.Fatalf("unexpected providers: %v", built)
	}
	if pacer, ok := built[0].(orchestrator.Pacer); !ok || pacer.CallInterval() != 2*time.Second {
		t.Error("HTTP provider should expose its call interval")
	}
}

func TestParseCatalogue_Invalid(t *testing.T) {
	data := []byte(`
providers:
  - name: alpha
    endpoint: https://a
  - name: alpha
  - endpoint: https://nameless
`)
	_, err := ParseCatalogue(data)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate name", "endpoint is required", "name is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestFeedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/matches/m1/lineups":
			w.Write([]byte(`{"home":["A","B"],"away":["C","D"]}`))
		case "/matches/m1/odds":
			w.WriteHeader(http.StatusNoContent)
		case "/matches/m1/live":
			w.Write([]byte(`{"status":"live","home":1,"away":0,"minute":57}`))
		case "/matches/m2/live":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewFeedClient(srv.URL+"/", "", srv.Client())
	ctx := context.Background()

	lineups, err := c.Fetch(ctx, "m1", "lineups")
	if err != nil || !strings.Contains(string(lineups), `"home"`) {
		t.Errorf("unexpected lineups: %s, %v", lineups, err)
	}

	odds, err := c.Fetch(ctx, "m1", "odds")
	if err != nil || odds != nil {
		t.Errorf("no content should return nil data, got %s, %v", odds, err)
	}

	live, err := c.LiveScore(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live.Status != domain.MatchStatusLive || live.Home != 1 || live.Minute != 57 {
		t.Errorf("unexpected live score: %+v", live)
	}

	_, err = c.LiveScore(ctx, "m2")
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status error 503, got %v", err)
	}
}
