package scout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openscouts/scoutd/scout/internal/ratelimit"
	"github.com/openscouts/scoutd/scout/internal/steps"
	"github.com/openscouts/scoutd/scout/internal/store"
)

func newTestAPI(t *testing.T, agent Agent) (*Service, http.Handler) {
	t.Helper()
	svc := newTestService(t, agent, nil, nil)
	r := chi.NewRouter()
	svc.Routes(r)
	return svc, r
}

func doJSON(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return m
}

func TestExecuteRequiresAuth(t *testing.T) {
	_, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})

	w := doJSON(t, h, http.MethodPost, "/api/scouts/execute", "", map[string]any{"scoutId": "sct-1"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestExecuteRequiresScoutID(t *testing.T) {
	_, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})

	w := doJSON(t, h, http.MethodPost, "/api/scouts/execute", "user-1", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestExecuteRejectsNonOwner(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})
	mustCreateScout(t, svc, nil) // owned by user-1

	w := doJSON(t, h, http.MethodPost, "/api/scouts/execute", "user-2", map[string]any{"scoutId": "sct-1"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status: %d", w.Code)
	}

	// Missing scouts get the same answer as foreign ones.
	w = doJSON(t, h, http.MethodPost, "/api/scouts/execute", "user-2", map[string]any{"scoutId": "nope"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status for missing: %d", w.Code)
	}
}

func TestExecuteAcceptsAndEnqueues(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})
	sc := mustCreateScout(t, svc, nil)

	w := doJSON(t, h, http.MethodPost, "/api/scouts/execute", sc.UserID, map[string]any{"scoutId": sc.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["scoutId"] != sc.ID {
		t.Errorf("body: %v", body)
	}

	// The hand-off is a queue row, not a finished run.
	if n, _ := svc.queue.Len(context.Background()); n != 1 {
		t.Errorf("queued runs: %d, want 1", n)
	}
	execs, _ := svc.Executions(context.Background(), sc.ID, 10)
	if len(execs) != 0 {
		t.Errorf("dispatch ran synchronously: %d executions", len(execs))
	}
}

// limiterClock pins the limiter to a fixed instant so cooldown and
// daily-window math does not depend on when the test runs.
func limiterClock(svc *Service, now time.Time) {
	svc.limiter = ratelimit.New(svc.store,
		ratelimit.WithClock(func() time.Time { return now }))
}

func TestExecuteCooldown(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})
	sc := mustCreateScout(t, svc, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	limiterClock(svc, now)

	// A run started 5 minutes ago puts the scout in cooldown.
	svc.store.InsertExecution(ctx, &store.Execution{
		ID:        "exec-recent",
		ScoutID:   sc.ID,
		StartedAt: now.Add(-5 * time.Minute).UnixMilli(),
	})
	svc.store.FailExecution(ctx, "exec-recent", "x")

	w := doJSON(t, h, http.MethodPost, "/api/scouts/execute", sc.UserID, map[string]any{"scoutId": sc.ID})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status: %d", w.Code)
	}
	body := decodeBody(t, w)
	if remaining, ok := body["cooldownRemaining"].(float64); !ok || remaining != 15*60 {
		t.Errorf("cooldownRemaining: %v", body["cooldownRemaining"])
	}
}

func TestExecuteDailyCap(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})
	sc := mustCreateScout(t, svc, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	limiterClock(svc, now)

	// Ten terminal runs today across the user's scouts, old enough to
	// clear the per-scout cooldown.
	base := now.Add(-2 * time.Hour).UnixMilli()
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("exec-%d", i)
		svc.store.InsertExecution(ctx, &store.Execution{ID: id, ScoutID: sc.ID, StartedAt: base + int64(i)})
		svc.store.FailExecution(ctx, id, "x")
	}

	w := doJSON(t, h, http.MethodPost, "/api/scouts/execute", sc.UserID, map[string]any{"scoutId": sc.ID})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["dailyLimit"] != float64(10) || body["currentCount"] != float64(10) {
		t.Errorf("body: %v", body)
	}
}

func TestScheduledRunIsSynchronous(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("found it")})
	sc := mustCreateScout(t, svc, nil)

	w := doJSON(t, h, http.MethodPost, "/internal/run?scoutId="+sc.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["scoutId"] != sc.ID || body["title"] != sc.Title {
		t.Errorf("body: %v", body)
	}

	// The response came back after the terminal write.
	execs, _ := svc.Executions(context.Background(), sc.ID, 10)
	if len(execs) != 1 || execs[0].Status != store.ExecutionCompleted {
		t.Errorf("executions: %+v", execs)
	}
}

func TestScheduledRunAcceptsBodyScoutID(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})
	sc := mustCreateScout(t, svc, nil)

	w := doJSON(t, h, http.MethodPost, "/internal/run", "", map[string]any{"scoutId": sc.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d (%s)", w.Code, w.Body.String())
	}
}

func TestScheduledRunErrors(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})

	w := doJSON(t, h, http.MethodPost, "/internal/run", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing id: %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/internal/run?scoutId=nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown scout: %d", w.Code)
	}

	mustCreateScout(t, svc, func(s *Scout) {
		s.ID = "sct-off"
		s.IsActive = false
	})
	w = doJSON(t, h, http.MethodPost, "/internal/run?scoutId=sct-off", "", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("inactive scout: %d", w.Code)
	}
}

func TestListStepsShowsEffectiveStatus(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})
	sc := mustCreateScout(t, svc, nil)
	ctx := context.Background()

	svc.store.InsertExecution(ctx, &store.Execution{ID: "exec-1", ScoutID: sc.ID})
	svc.store.InsertStep(ctx, &store.ExecutionStep{
		ID:          "step-1",
		ExecutionID: "exec-1",
		StepNumber:  1,
		StepType:    steps.TypeScrape,
		Description: "Fetching page",
		StartedAt:   time.Now().Add(-10 * time.Minute).UnixMilli(),
	})

	w := doJSON(t, h, http.MethodGet, "/api/executions/exec-1/steps", sc.UserID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d (%s)", w.Code, w.Body.String())
	}
	var body struct {
		Steps []struct {
			Status          string `json:"status"`
			EffectiveStatus string `json:"effective_status"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Steps) != 1 {
		t.Fatalf("steps: %d", len(body.Steps))
	}
	// Stored running, displayed failed: the step is stuck.
	if body.Steps[0].Status != store.StepRunning || body.Steps[0].EffectiveStatus != store.StepFailed {
		t.Errorf("step: %+v", body.Steps[0])
	}

	// Foreign callers cannot read the trace.
	w = doJSON(t, h, http.MethodGet, "/api/executions/exec-1/steps", "user-2", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign caller: %d", w.Code)
	}
}

func TestListExecutionsOwnership(t *testing.T) {
	svc, h := newTestAPI(t, &fakeAgent{result: foundResult("x")})
	sc := mustCreateScout(t, svc, nil)
	ctx := context.Background()
	svc.store.InsertExecution(ctx, &store.Execution{ID: "exec-1", ScoutID: sc.ID})

	w := doJSON(t, h, http.MethodGet, "/api/scouts/"+sc.ID+"/executions", sc.UserID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/scouts/"+sc.ID+"/executions", "user-2", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign caller: %d", w.Code)
	}
}
