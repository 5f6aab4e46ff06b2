// Package httpapi exposes the research orchestrator over HTTP: starting
// turns, answering clarification questions, and querying turn status. It is a
// thin translation layer; all orchestration lives in the Temporal workflow.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/config"
	"github.com/verity-labs/research-orchestrator/internal/db"
	"github.com/verity-labs/research-orchestrator/internal/metrics"
	"github.com/verity-labs/research-orchestrator/internal/workflows"
)

// TurnHandler starts research turns and routes signals and queries to them.
type TurnHandler struct {
	temporal client.Client
	history  *db.Client // optional; nil disables the turn-history endpoint
	cfg      func() *config.Research
	logger   *zap.Logger
}

// NewTurnHandler creates the handler. cfg returns the current config
// snapshot so hot reloads apply to new turns.
func NewTurnHandler(temporal client.Client, history *db.Client, cfg func() *config.Research, logger *zap.Logger) *TurnHandler {
	if cfg == nil {
		cfg = func() *config.Research { return nil }
	}
	return &TurnHandler{temporal: temporal, history: history, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the turn routes on the provided mux.
func (h *TurnHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /research/turns", h.handleStartTurn)
	mux.HandleFunc("POST /research/turns/{workflow_id}/input", h.handleHumanInput)
	mux.HandleFunc("GET /research/turns/{workflow_id}/status", h.handleStatus)
	mux.HandleFunc("GET /research/sessions/{session_id}/turns", h.handleTurnHistory)
}

type startTurnRequest struct {
	SessionID         string `json:"session_id,omitempty"`
	UserID            string `json:"user_id"`
	Query             string `json:"query"`
	CreateDeliverable bool   `json:"create_deliverable,omitempty"`
	DeliverableOnly   bool   `json:"deliverable_only,omitempty"`
	// Wait makes the request block until the turn completes and returns the
	// full result instead of just the workflow handle.
	Wait bool `json:"wait,omitempty"`
}

type startTurnResponse struct {
	WorkflowID string                `json:"workflow_id"`
	RunID      string                `json:"run_id"`
	SessionID  string                `json:"session_id,omitempty"`
	Result     *workflows.TurnResult `json:"result,omitempty"`
}

func (h *TurnHandler) handleStartTurn(w http.ResponseWriter, r *http.Request) {
	var req startTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Query == "" && !req.DeliverableOnly {
		http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
		return
	}

	input := workflows.TurnInput{
		SessionID:         req.SessionID,
		UserID:            req.UserID,
		Query:             req.Query,
		CreateDeliverable: req.CreateDeliverable,
		DeliverableOnly:   req.DeliverableOnly,
	}
	if cfg := h.cfg(); cfg != nil {
		input.MaxConcurrency = cfg.Dispatch.MaxConcurrency
		input.TaskTimeoutSeconds = cfg.Dispatch.TaskTimeoutSeconds
	}

	turnType := "research"
	if req.DeliverableOnly {
		turnType = "deliverable"
	}
	metrics.TurnsStarted.WithLabelValues(turnType).Inc()

	opts := client.StartWorkflowOptions{
		ID:                       fmt.Sprintf("research-turn-%s", uuid.New().String()),
		TaskQueue:                workflows.TaskQueue,
		WorkflowExecutionTimeout: h.turnTimeout(),
	}

	run, err := h.temporal.ExecuteWorkflow(r.Context(), opts, workflows.ResearchTurnWorkflow, input)
	if err != nil {
		h.logger.Error("Failed to start research turn",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		http.Error(w, `{"error":"failed to start research turn"}`, http.StatusBadGateway)
		return
	}

	resp := startTurnResponse{
		WorkflowID: run.GetID(),
		RunID:      run.GetRunID(),
		SessionID:  req.SessionID,
	}

	if req.Wait {
		var result workflows.TurnResult
		if err := run.Get(r.Context(), &result); err != nil {
			h.logger.Error("Research turn failed",
				zap.String("workflow_id", run.GetID()),
				zap.Error(err))
			http.Error(w, `{"error":"research turn failed"}`, http.StatusBadGateway)
			return
		}
		resp.Result = &result
		resp.SessionID = result.SessionID
	}

	writeJSON(w, http.StatusOK, resp)
}

type humanInputRequest struct {
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

func (h *TurnHandler) handleHumanInput(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflow_id")

	var req humanInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	err := h.temporal.SignalWorkflow(ctx, workflowID, req.RunID,
		workflows.SignalHumanInput, workflows.HumanInput{Message: req.Message})
	if err != nil {
		h.logger.Error("Failed to signal clarification input",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		http.Error(w, `{"error":"failed to signal workflow"}`, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "sent",
		"workflow_id": workflowID,
	})
}

func (h *TurnHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflow_id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	val, err := h.temporal.QueryWorkflow(ctx, workflowID, "", workflows.QueryTurnStatus)
	if err != nil {
		h.logger.Warn("Status query failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		http.Error(w, `{"error":"status unavailable"}`, http.StatusNotFound)
		return
	}

	var status workflows.TurnStatus
	if err := val.Get(&status); err != nil {
		http.Error(w, `{"error":"malformed status"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *TurnHandler) handleTurnHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, `{"error":"turn history is not enabled"}`, http.StatusNotFound)
		return
	}
	sessionID := r.PathValue("session_id")

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	turns, err := h.history.RecentTurns(ctx, sessionID, limit)
	if err != nil {
		h.logger.Error("Turn history lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		http.Error(w, `{"error":"turn history unavailable"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (h *TurnHandler) turnTimeout() time.Duration {
	if cfg := h.cfg(); cfg != nil && cfg.Dispatch.TurnTimeoutSeconds > 0 {
		return time.Duration(cfg.Dispatch.TurnTimeoutSeconds) * time.Second
	}
	return 15 * time.Minute
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StartServer runs the API on its own listener and returns the server for
// shutdown.
func StartServer(port int, handler *TurnHandler, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 16 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Starting research API server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Research API server failed", zap.Error(err))
		}
	}()
	return srv
}
