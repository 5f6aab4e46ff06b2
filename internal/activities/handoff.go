package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/metrics"
	"github.com/verity-labs/research-orchestrator/internal/tracing"
)

type deliverableResponse struct {
	URL   string                 `json:"url,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// CreateDeliverable hands the synthesized answer and citations to the
// deliverable service. A failed hand-off never discards the research results;
// the result carries the reason so the user can retry.
func (a *Activities) CreateDeliverable(ctx context.Context, in DeliverableInput) (result DeliverableResult, err error) {
	defer func() {
		status := "failed"
		if result.Success {
			status = "success"
		}
		metrics.DeliverablesCreated.WithLabelValues(status).Inc()
	}()

	ctx, span := tracing.StartSpan(ctx, "deliverable.handoff")
	defer span.End()

	base := a.deliverableURL()
	if base == "" {
		return DeliverableResult{
			ErrorMessage: "deliverable service is not configured; the research results above are still available",
		}, nil
	}

	body, err := json.Marshal(in)
	if err != nil {
		return DeliverableResult{ErrorMessage: fmt.Sprintf("encode deliverable request: %v", err)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/deliverables", bytes.NewReader(body))
	if err != nil {
		return DeliverableResult{ErrorMessage: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		a.logger.Warn("Deliverable hand-off failed",
			zap.String("session_id", in.SessionID),
			zap.Error(err))
		return DeliverableResult{
			ErrorMessage: fmt.Sprintf("deliverable service unreachable: %v; please try again later", err),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Warn("Deliverable service rejected hand-off",
			zap.String("session_id", in.SessionID),
			zap.Int("status", resp.StatusCode))
		return DeliverableResult{
			ErrorMessage: fmt.Sprintf("deliverable service returned status %d; please try again later", resp.StatusCode),
		}, nil
	}

	var out deliverableResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DeliverableResult{
			ErrorMessage: fmt.Sprintf("decode deliverable response: %v", err),
		}, nil
	}
	if out.Error != "" {
		return DeliverableResult{ErrorMessage: out.Error}, nil
	}

	a.logger.Info("Deliverable created",
		zap.String("session_id", in.SessionID),
		zap.String("url", out.URL))
	return DeliverableResult{URL: out.URL, Data: out.Data, Success: true}, nil
}

func (a *Activities) deliverableURL() string {
	if cfg := a.cfg(); cfg != nil && cfg.Deliverable.ServiceURL != "" {
		return cfg.Deliverable.ServiceURL
	}
	return os.Getenv("DELIVERABLE_SERVICE_URL")
}
