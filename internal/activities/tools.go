package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/tracing"
)

// ToolClient executes specialist tools through the tool service. The service
// owns the concrete retrieval clients; the orchestrator only ships arguments
// and receives free-form JSON results.
type ToolClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewToolClient builds a tool client from environment configuration.
func NewToolClient(logger *zap.Logger) *ToolClient {
	base := os.Getenv("TOOL_SERVICE_URL")
	if base == "" {
		base = "http://tool-service:8001"
	}

	timeoutSec := 60
	if v := os.Getenv("TOOL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeoutSec = n
		}
	}

	return &ToolClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		logger:     logger,
	}
}

type toolExecuteRequest struct {
	Source    string                 `json:"source"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type toolExecuteResponse struct {
	Output interface{} `json:"output"`
	Error  string      `json:"error,omitempty"`
}

// Execute runs one tool call and returns its raw output.
func (t *ToolClient) Execute(ctx context.Context, source string, call llm.ToolCall) (interface{}, error) {
	body, err := json.Marshal(toolExecuteRequest{
		Source:    source,
		Tool:      call.Name,
		Arguments: call.Arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tools/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool service returned status %d", resp.StatusCode)
	}

	var out toolExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tool response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("tool %s failed: %s", call.Name, out.Error)
	}
	return out.Output, nil
}
