package llm

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
	"golang.org/x/time/rate"

	"github.com/verity-labs/research-orchestrator/internal/tracing"
)

// Client talks to the LLM service over HTTP. It is safe for concurrent use;
// all tasks in a fan-out share one instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// GenerateRequest is one generation call. Tools may be nil to force a
// tool-free completion.
type GenerateRequest struct {
	Messages []Message  `json:"messages"`
	Tools    []ToolSpec `json:"tools,omitempty"`
}

// GenerateResponse is the service reply for a generation call.
type GenerateResponse struct {
	Message    Message `json:"message"`
	TokensUsed int     `json:"total_tokens"`
	ModelUsed  string  `json:"model_used,omitempty"`
}

// ClassifyRequest asks for structured output conforming to a JSON schema.
type ClassifyRequest struct {
	Prompt string                 `json:"prompt"`
	Schema map[string]interface{} `json:"schema,omitempty"`
}

type classifyResponse struct {
	Result json.RawMessage `json:"result"`
}

// NewClient builds a client from environment configuration.
// LLM_SERVICE_URL defaults to the in-cluster service address; timeout is
// configurable via LLM_TIMEOUT_SECONDS, request rate via LLM_MAX_RPS.
func NewClient(logger *zap.Logger) *Client {
	base := os.Getenv("LLM_SERVICE_URL")
	if base == "" {
		base = "http://llm-service:8000"
	}

	timeoutSec := 60
	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeoutSec = n
		}
	}

	maxRPS := 10.0
	if v := os.Getenv("LLM_MAX_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			maxRPS = f
		}
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(maxRPS), int(maxRPS)),
		logger:     logger,
	}
}

// Generate performs one completion over the given transcript.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	var out GenerateResponse
	if err := c.post(ctx, "/llm/generate", req, &out); err != nil {
		return GenerateResponse{}, err
	}
	return out, nil
}

// Classify performs one structured-output call. A nil RawMessage (service
// returned null) is a valid outcome; callers fall back deterministically.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (json.RawMessage, error) {
	var out classifyResponse
	if err := c.post(ctx, "/llm/classify", req, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("llm service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
