package scout

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openscouts/scoutd/scout/internal/ratelimit"
)

// Authenticator resolves the calling user from a request. Empty user or
// an error means unauthenticated.
type Authenticator func(r *http.Request) (userID string, err error)

// Routes mounts the HTTP surface on a chi router.
//
//	POST /api/scouts/execute            manual trigger (auth, rate limited, async)
//	POST /internal/run                  scheduled trigger (trusted, synchronous)
//	GET  /api/scouts/{scoutID}/executions
//	GET  /api/executions/{executionID}/steps
func (svc *Service) Routes(r chi.Router) {
	r.Post("/api/scouts/execute", svc.handleExecute)
	r.Post("/internal/run", svc.handleScheduledRun)
	r.Get("/api/scouts/{scoutID}/executions", svc.handleListExecutions)
	r.Get("/api/executions/{executionID}/steps", svc.handleListSteps)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// handleExecute is the manual trigger. It authenticates, checks
// ownership and rate limits, then enqueues the run and returns without
// waiting: callers observe progress through the execution read path.
func (svc *Service) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := svc.auth(r)
	if err != nil || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body struct {
		ScoutID string `json:"scoutId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ScoutID == "" {
		writeError(w, http.StatusBadRequest, "scoutId is required")
		return
	}

	sc, err := svc.store.GetScout(ctx, body.ScoutID)
	if err != nil {
		svc.logger.Error("api: load scout", "scout_id", body.ScoutID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Missing and not-owned are indistinguishable to the caller.
	if sc == nil || sc.UserID != userID {
		writeError(w, http.StatusForbidden, "Scout not found or unauthorized")
		return
	}

	decision, err := svc.limiter.Check(ctx, userID, sc.ID)
	if err != nil {
		svc.logger.Error("api: rate limit check", "scout_id", sc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !decision.Allowed {
		writeRateLimited(w, decision)
		return
	}

	err = svc.queue.Enqueue(ctx, svc.ids(), RunRequest{
		ScoutID: sc.ID,
		UserID:  userID,
		Manual:  true,
	})
	if err != nil {
		svc.logger.Error("api: enqueue run", "scout_id", sc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger execution")
		return
	}

	svc.logger.Info("api: manual run accepted", "scout_id", sc.ID, "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Scout execution triggered",
		"scoutId": sc.ID,
	})
}

func writeRateLimited(w http.ResponseWriter, d Decision) {
	switch d.Reason {
	case ratelimit.ReasonDailyLimit:
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":        "Daily execution limit reached (10 per day). Please try again tomorrow.",
			"dailyLimit":   d.DailyLimit,
			"currentCount": d.CurrentCount,
		})
	default:
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             formatCooldownError(d.CooldownMinutes),
			"cooldownRemaining": d.CooldownRemaining,
		})
	}
}

func formatCooldownError(minutes int) string {
	if minutes == 1 {
		return "Please wait 1 minute before running this scout again"
	}
	return fmt.Sprintf("Please wait %d minutes before running this scout again", minutes)
}

// handleScheduledRun is the trusted scheduled path: no caller auth, no
// rate limit, and it runs the orchestrator to completion before
// responding. The scout id comes from the query or the body.
func (svc *Service) handleScheduledRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scoutID := r.URL.Query().Get("scoutId")
	if scoutID == "" {
		var body struct {
			ScoutID string `json:"scoutId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			scoutID = body.ScoutID
		}
	}
	if scoutID == "" {
		writeError(w, http.StatusBadRequest, "scoutId is required")
		return
	}

	sc, err := svc.store.GetScout(ctx, scoutID)
	if err != nil {
		svc.logger.Error("api: load scout", "scout_id", scoutID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sc == nil {
		writeError(w, http.StatusNotFound, "scout not found")
		return
	}

	_, err = svc.runner.Execute(ctx, scoutID, TriggerScheduled)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"scoutId": sc.ID,
			"title":   sc.Title,
		})
	case errors.Is(err, ErrNotRunnable):
		writeError(w, http.StatusConflict, "scout is not active or not complete")
	case errors.Is(err, ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "scout already has a running execution")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "scout not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (svc *Service) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := svc.auth(r)
	if err != nil || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scoutID := chi.URLParam(r, "scoutID")

	sc, err := svc.store.GetScout(ctx, scoutID)
	if err != nil {
		svc.logger.Error("api: load scout", "scout_id", scoutID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sc == nil || sc.UserID != userID {
		writeError(w, http.StatusForbidden, "Scout not found or unauthorized")
		return
	}

	execs, err := svc.store.ListExecutions(ctx, scoutID, 50)
	if err != nil {
		svc.logger.Error("api: list executions", "scout_id", scoutID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

func (svc *Service) handleListSteps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := svc.auth(r)
	if err != nil || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	executionID := chi.URLParam(r, "executionID")

	exec, err := svc.store.GetExecution(ctx, executionID)
	if err != nil {
		svc.logger.Error("api: load execution", "execution_id", executionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if exec == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	sc, err := svc.store.GetScout(ctx, exec.ScoutID)
	if err != nil || sc == nil || sc.UserID != userID {
		writeError(w, http.StatusForbidden, "Scout not found or unauthorized")
		return
	}

	// Steps carry their read-time effective status: a step running past
	// the stuck threshold is displayed as failed.
	views, err := svc.tracker.List(ctx, executionID)
	if err != nil {
		svc.logger.Error("api: list steps", "execution_id", executionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": views})
}
