package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/verity-labs/research-orchestrator/internal/config"
	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/specialists"
)

func newTestActivities(t *testing.T, llmURL, toolURL string, cfg *config.Research) *Activities {
	t.Helper()
	logger := zaptest.NewLogger(t)

	t.Setenv("LLM_SERVICE_URL", llmURL)
	t.Setenv("TOOL_SERVICE_URL", toolURL)

	registry, err := specialists.NewRegistry(
		specialists.LoadConfig("testdata/missing.yaml", logger), logger)
	require.NoError(t, err)

	var cfgFn func() *config.Research
	if cfg != nil {
		cfgFn = func() *config.Research { return cfg }
	}
	return NewActivities(nil, nil, registry, llm.NewClient(logger), NewToolClient(logger), nil, cfgFn, logger)
}

// scriptedLLM serves /llm/generate: while the request offers tools, it keeps
// requesting one; once tools are withheld it answers with finalAnswer.
func scriptedLLM(t *testing.T, finalAnswer string, generations *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/llm/generate", r.URL.Path)
		*generations++

		var req llm.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var msg llm.Message
		if len(req.Tools) > 0 {
			msg = llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:        fmt.Sprintf("call-%d", *generations),
					Name:      req.Tools[0].Name,
					Arguments: map[string]interface{}{"query": "transformers"},
				}},
			}
		} else {
			msg = llm.Message{Role: llm.RoleAssistant, Content: llm.TextContent(finalAnswer)}
		}
		json.NewEncoder(w).Encode(llm.GenerateResponse{Message: msg, TokensUsed: 7})
	}))
}

func toolServer(t *testing.T, output interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tools/execute", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"output": output})
	}))
}

func TestExecuteSpecialistTaskStopsAtToolBudget(t *testing.T) {
	generations := 0
	llmSrv := scriptedLLM(t, "final synthesis of findings", &generations)
	defer llmSrv.Close()

	tools := toolServer(t, map[string]interface{}{
		"entry_id": "https://arxiv.org/abs/1706.03762",
		"title":    "Attention Is All You Need",
	})
	defer tools.Close()

	a := newTestActivities(t, llmSrv.URL, tools.URL, nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{
		Source: "academic", Question: "find transformer papers", Index: 0,
	})
	require.NoError(t, err)

	assert.Equal(t, MaxToolCalls, result.ToolCalls)
	assert.Equal(t, MaxToolCalls+1, generations)
	assert.True(t, result.Success)
	assert.Equal(t, "final synthesis of findings", result.Answer)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", result.Citations[0].URL)
}

func TestExecuteSpecialistTaskCapsItemsPerResult(t *testing.T) {
	items := make([]map[string]interface{}, 0, 25)
	for i := 0; i < 25; i++ {
		items = append(items, map[string]interface{}{
			"entry_id": fmt.Sprintf("https://arxiv.org/abs/2301.%05d", i),
			"title":    fmt.Sprintf("Paper %d", i),
		})
	}

	calls := 0
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var msg llm.Message
		if calls == 1 {
			msg = llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search_papers"}}}
		} else {
			msg = llm.Message{Role: llm.RoleAssistant, Content: llm.TextContent("summary")}
		}
		json.NewEncoder(w).Encode(llm.GenerateResponse{Message: msg})
	}))
	defer llmSrv.Close()

	tools := toolServer(t, items)
	defer tools.Close()

	a := newTestActivities(t, llmSrv.URL, tools.URL, nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{
		Source: "academic", Question: "papers",
	})
	require.NoError(t, err)
	assert.Len(t, result.Citations, MaxItemsPerResult)
	assert.Equal(t, 1, result.ToolCalls)
}

func TestExecuteSpecialistTaskDeduplicatesCitations(t *testing.T) {
	items := []map[string]interface{}{
		{"entry_id": "https://arxiv.org/abs/1706.03762", "title": "Attention Is All You Need"},
		{"entry_id": "https://arxiv.org/pdf/1706.03762v5.pdf", "title": "Attention Is All You Need (pdf)"},
		{"entry_id": "https://arxiv.org/abs/1810.04805", "title": "BERT"},
	}

	calls := 0
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var msg llm.Message
		if calls == 1 {
			msg = llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search_papers"}}}
		} else {
			msg = llm.Message{Role: llm.RoleAssistant, Content: llm.TextContent("two distinct papers")}
		}
		json.NewEncoder(w).Encode(llm.GenerateResponse{Message: msg})
	}))
	defer llmSrv.Close()

	tools := toolServer(t, items)
	defer tools.Close()

	a := newTestActivities(t, llmSrv.URL, tools.URL, nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{
		Source: "academic", Question: "papers",
	})
	require.NoError(t, err)
	require.Len(t, result.Citations, 2)
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", result.Citations[0].URL)
	assert.Equal(t, "https://arxiv.org/abs/1810.04805", result.Citations[1].URL)
}

func TestExecuteSpecialistTaskUnknownSource(t *testing.T) {
	a := newTestActivities(t, "http://unused", "http://unused", nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{Source: "bogus"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, NoAnswerSentinel, result.Answer)
	assert.Contains(t, result.ErrorMessage, "bogus")
}

func TestExecuteSpecialistTaskServiceFailure(t *testing.T) {
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer llmSrv.Close()

	a := newTestActivities(t, llmSrv.URL, "http://unused", nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{
		Source: "web", Question: "anything",
	})
	require.NoError(t, err, "specialist failures fold into the result")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Equal(t, NoAnswerSentinel, result.Answer)
}

func TestExecuteSpecialistTaskSummarizesCitationsWithoutProse(t *testing.T) {
	calls := 0
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var msg llm.Message
		if calls == 1 {
			msg = llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search_papers"}}}
		} else {
			msg = llm.Message{Role: llm.RoleAssistant, Content: llm.TextContent("")}
		}
		json.NewEncoder(w).Encode(llm.GenerateResponse{Message: msg})
	}))
	defer llmSrv.Close()

	tools := toolServer(t, map[string]interface{}{
		"entry_id": "https://arxiv.org/abs/1706.03762",
		"title":    "Attention Is All You Need",
	})
	defer tools.Close()

	a := newTestActivities(t, llmSrv.URL, tools.URL, nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{
		Source: "academic", Question: "papers",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Found 1 result(s): Attention Is All You Need", result.Answer)
}

func TestExecuteSpecialistTaskToolErrorFedBack(t *testing.T) {
	var sawToolResult bool
	calls := 0
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req llm.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var msg llm.Message
		if calls == 1 {
			msg = llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search_web"}}}
		} else {
			last := req.Messages[len(req.Messages)-1]
			if last.Role == llm.RoleTool {
				sawToolResult = true
				assert.Contains(t, last.Content.String(), "error:")
			}
			msg = llm.Message{Role: llm.RoleAssistant, Content: llm.TextContent("could not search")}
		}
		json.NewEncoder(w).Encode(llm.GenerateResponse{Message: msg})
	}))
	defer llmSrv.Close()

	tools := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "upstream timeout"})
	}))
	defer tools.Close()

	a := newTestActivities(t, llmSrv.URL, tools.URL, nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{
		Source: "web", Question: "anything",
	})
	require.NoError(t, err)
	assert.True(t, sawToolResult)
	assert.Empty(t, result.Citations)
	assert.Equal(t, "could not search", result.Answer)
}

func TestExecuteSpecialistTaskUntitledCitationGetsDomainTitle(t *testing.T) {
	calls := 0
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var msg llm.Message
		if calls == 1 {
			msg = llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search_web"}}}
		} else {
			msg = llm.Message{Role: llm.RoleAssistant, Content: llm.TextContent("found one article")}
		}
		json.NewEncoder(w).Encode(llm.GenerateResponse{Message: msg})
	}))
	defer llmSrv.Close()

	tools := toolServer(t, map[string]interface{}{
		"url":     "https://www.example.com/articles/attention",
		"snippet": "attention mechanisms explained",
	})
	defer tools.Close()

	a := newTestActivities(t, llmSrv.URL, tools.URL, nil)

	result, err := a.ExecuteSpecialistTask(context.Background(), TaskInput{
		Source: "web", Question: "attention mechanisms",
	})
	require.NoError(t, err)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "example.com", result.Citations[0].Title,
		"an untitled result is labeled with its domain")
}
