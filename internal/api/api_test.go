package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Kickoff/internal/deadletter"
	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/repo"
	"github.com/shaiso/Kickoff/internal/scheduler"
)

type fakeDeadLetters struct {
	entries    []domain.DeadLetterEntry
	listLimit  int
	listOffset int
	deleted    []string
	listErr    error
}

func (f *fakeDeadLetters) List(_ context.Context, limit, offset int) ([]domain.DeadLetterEntry, error) {
	f.listLimit, f.listOffset = limit, offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.entries) {
		return nil, nil
	}
	end := min(offset+limit, len(f.entries))
	return f.entries[offset:end], nil
}

func (f *fakeDeadLetters) Count(context.Context) (int64, error) {
	return int64(len(f.entries)), nil
}

func (f *fakeDeadLetters) Delete(_ context.Context, lane domain.Lane, taskID string) error {
	for i, e := range f.entries {
		if e.Lane == lane && e.TaskID == taskID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			f.deleted = append(f.deleted, string(lane)+"/"+taskID)
			return nil
		}
	}
	return deadletter.ErrNotFound
}

func (f *fakeDeadLetters) Clear(context.Context) (int, error) {
	n := len(f.entries)
	f.entries = nil
	return n, nil
}

type fakeProviders struct {
	list []domain.ProviderHealth
}

func (f *fakeProviders) List(context.Context) ([]domain.ProviderHealth, error) {
	return f.list, nil
}

func (f *fakeProviders) ListDisabled(context.Context) ([]domain.ProviderHealth, error) {
	var out []domain.ProviderHealth
	for _, p := range f.list {
		if p.AutoDisabled {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeScheduler struct {
	scheduled []string
	cancelled []string
	created   int
}

func (f *fakeScheduler) ScheduleMatchTasks(_ context.Context, m *domain.Match) (int, error) {
	f.scheduled = append(f.scheduled, m.ID)
	return f.created, nil
}

func (f *fakeScheduler) CancelMatchTasks(_ context.Context, id string) (int, error) {
	f.cancelled = append(f.cancelled, id)
	return 6, nil
}

type fakeMatches map[string]*domain.Match

func (f fakeMatches) GetByID(_ context.Context, id string) (*domain.Match, error) {
	m, ok := f[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return m, nil
}

type fakeReconciler struct {
	calls int
}

func (f *fakeReconciler) Reconcile(context.Context) (scheduler.ReconcileResult, error) {
	f.calls++
	return scheduler.ReconcileResult{ScheduledCount: 4, MatchesSeen: 2, StuckFixed: 1}, nil
}

type fakeQueue struct {
	err error
}

func (f *fakeQueue) EnsureHealthy() error { return f.err }

type testEnv struct {
	dlq        *fakeDeadLetters
	providers  *fakeProviders
	scheduler  *fakeScheduler
	reconciler *fakeReconciler
	queue      *fakeQueue
	mux        *http.ServeMux
}

func newTestEnv() *testEnv {
	failedAt := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	env := &testEnv{
		dlq: &fakeDeadLetters{entries: []domain.DeadLetterEntry{
			{TaskID: "t1", Lane: domain.LaneOdds, TaskType: domain.TaskTypeRefreshOdds, Reason: "timeout", Attempts: 3, FailedAt: failedAt},
			{TaskID: "t2", Lane: domain.LaneLive, TaskType: domain.TaskTypeMonitorLive, Reason: "502", Attempts: 3, FailedAt: failedAt},
			{TaskID: "t3", Lane: domain.LaneOdds, TaskType: domain.TaskTypeRefreshOdds, Reason: "timeout", Attempts: 3, FailedAt: failedAt},
		}},
		providers: &fakeProviders{list: []domain.ProviderHealth{
			{Provider: "alpha"},
			{Provider: "beta", AutoDisabled: true, ConsecutiveFailures: 5, FailureReason: "model not found"},
		}},
		scheduler:  &fakeScheduler{created: 8},
		reconciler: &fakeReconciler{},
		queue:      &fakeQueue{},
		mux:        http.NewServeMux(),
	}

	h := NewHandler(Config{
		DeadLetters: env.dlq,
		Providers:   env.providers,
		Scheduler:   env.scheduler,
		Matches: fakeMatches{
			"m1": {ID: "m1", Status: domain.MatchStatusScheduled, KickoffAt: failedAt.Add(24 * time.Hour)},
			"m2": {ID: "m2", Status: domain.MatchStatusFinished},
		},
		Reconciler: env.reconciler,
		Queue:      env.queue,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.RegisterRoutes(env.mux)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data  T   `json:"data"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func TestListDeadLetters(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/dlq?limit=2&offset=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Data  []DeadLetterResponse `json:"data"`
		Total int                  `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 || resp.Data[0].TaskID != "t2" {
		t.Errorf("unexpected page: %+v", resp.Data)
	}
	if resp.Total != 3 {
		t.Errorf("expected total 3, got %d", resp.Total)
	}
	if env.dlq.listLimit != 2 || env.dlq.listOffset != 1 {
		t.Errorf("limit/offset not passed: %d/%d", env.dlq.listLimit, env.dlq.listOffset)
	}
}

func TestListDeadLetters_Limits(t *testing.T) {
	tests := []struct {
		query string
		code  int
		limit int
	}{
		{"", http.StatusOK, defaultListLimit},
		{"?limit=100000", http.StatusOK, maxListLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
		{"?offset=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			env := newTestEnv()
			rec := env.do(t, http.MethodGet, "/api/v1/dlq"+tt.query)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			if tt.code == http.StatusOK && env.dlq.listLimit != tt.limit {
				t.Errorf("expected limit %d, got %d", tt.limit, env.dlq.listLimit)
			}
		})
	}
}

func TestListDeadLetters_StoreError(t *testing.T) {
	env := newTestEnv()
	env.dlq.listErr = errors.New("redis down")

	rec := env.do(t, http.MethodGet, "/api/v1/dlq")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "redis down") {
		t.Error("internal error details must not leak to clients")
	}
}

func TestCountDeadLetters(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/dlq/count")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeData[CountResponse](t, rec); got.Count != 3 {
		t.Errorf("expected count 3, got %d", got.Count)
	}
}

func TestDeleteDeadLetter(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodDelete, "/api/v1/dlq/live/t2")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body)
	}
	if len(env.dlq.deleted) != 1 || env.dlq.deleted[0] != "live/t2" {
		t.Errorf("unexpected deletions: %v", env.dlq.deleted)
	}

	// Та же задача в другой очереди — другая запись.
	rec = env.do(t, http.MethodDelete, "/api/v1/dlq/odds/t2")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestClearDeadLetters(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodDelete, "/api/v1/dlq")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeData[ClearResponse](t, rec); got.Removed != 3 {
		t.Errorf("expected 3 removed, got %d", got.Removed)
	}
	if len(env.dlq.entries) != 0 {
		t.Error("archive should be empty")
	}
}

func TestListProviders(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	all := decodeData[[]ProviderResponse](t, rec)
	if len(all) != 2 || all[0].Status != "enabled" || all[1].Status != "disabled" {
		t.Errorf("unexpected providers: %+v", all)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/providers/disabled")
	disabled := decodeData[[]ProviderResponse](t, rec)
	if len(disabled) != 1 || disabled[0].Provider != "beta" || disabled[0].FailureReason != "model not found" {
		t.Errorf("unexpected disabled providers: %+v", disabled)
	}
}

func TestScheduleMatch(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/matches/m1/schedule")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decodeData[ScheduleResponse](t, rec)
	if got.MatchID != "m1" || got.Created != 8 {
		t.Errorf("unexpected response: %+v", got)
	}
	if len(env.scheduler.scheduled) != 1 {
		t.Errorf("expected scheduler call, got %v", env.scheduler.scheduled)
	}
}

func TestScheduleMatch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		queueErr error
		code     int
	}{
		{"unknown match", "/api/v1/matches/nope/schedule", nil, http.StatusNotFound},
		{"finished match", "/api/v1/matches/m2/schedule", nil, http.StatusConflict},
		{"broker down", "/api/v1/matches/m1/schedule", queue.ErrUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.queue.err = tt.queueErr

			rec := env.do(t, http.MethodPost, tt.path)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body)
			}
			if len(env.scheduler.scheduled) != 0 {
				t.Error("scheduler must not be called")
			}
		})
	}
}

func TestCancelMatch(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/matches/m1/cancel")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeData[CancelResponse](t, rec); got.Cancelled != 6 {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestReconcile(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/reconcile")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeData[ReconcileResponse](t, rec)
	if got.ScheduledCount != 4 || got.StuckFixed != 1 {
		t.Errorf("unexpected result: %+v", got)
	}
	if env.reconciler.calls != 1 {
		t.Errorf("expected one reconcile, got %d", env.reconciler.calls)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/reconcile")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
