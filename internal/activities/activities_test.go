package activities

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verity-labs/research-orchestrator/internal/citations"
	"github.com/verity-labs/research-orchestrator/internal/config"
	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// classifyServer serves /llm/classify with a fixed result payload. A nil
// result answers null, which callers must treat as a miss.
func classifyServer(t *testing.T, result interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/llm/classify", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
	}))
}

func TestRewriteQueryClear(t *testing.T) {
	srv := classifyServer(t, map[string]interface{}{
		"clear":             true,
		"rewritten_queries": []string{"transformer architecture overview", "attention mechanism explained"},
	})
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.RewriteQuery(context.Background(), RewriteInput{Query: "explain that architecture"})
	require.NoError(t, err)
	assert.True(t, result.Clear)
	assert.Equal(t, []string{"transformer architecture overview", "attention mechanism explained"}, result.RewrittenQueries)
}

func TestRewriteQueryClarification(t *testing.T) {
	srv := classifyServer(t, map[string]interface{}{
		"clear":                  false,
		"clarification_question": "Which architecture do you mean?",
	})
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.RewriteQuery(context.Background(), RewriteInput{Query: "explain it"})
	require.NoError(t, err)
	assert.False(t, result.Clear)
	assert.Equal(t, "Which architecture do you mean?", result.ClarificationQuestion)
	assert.Empty(t, result.RewrittenQueries)
}

func TestRewriteQueryFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.RewriteQuery(context.Background(), RewriteInput{Query: "what is a transformer"})
	require.NoError(t, err)
	assert.True(t, result.Clear)
	assert.Equal(t, []string{"what is a transformer"}, result.RewrittenQueries)
}

func TestRewriteQueryUnclearWithoutQuestionFailsOpen(t *testing.T) {
	srv := classifyServer(t, map[string]interface{}{"clear": false})
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.RewriteQuery(context.Background(), RewriteInput{Query: "what is a transformer"})
	require.NoError(t, err)
	assert.True(t, result.Clear)
	assert.Equal(t, []string{"what is a transformer"}, result.RewrittenQueries)
}

func TestRewriteQueryCapsAndDeduplicates(t *testing.T) {
	srv := classifyServer(t, map[string]interface{}{
		"clear":             true,
		"rewritten_queries": []string{"a", " a ", "b", "c", "d", "e"},
	})
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.RewriteQuery(context.Background(), RewriteInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.RewrittenQueries)
}

func TestClassifyIntentModelSelection(t *testing.T) {
	srv := classifyServer(t, map[string]interface{}{
		"sources":    []string{"academic", "video"},
		"reasoning":  "papers and lectures fit",
		"confidence": 0.9,
	})
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.ClassifyIntent(context.Background(), IntentInput{Query: "transformer papers and lectures"})
	require.NoError(t, err)
	assert.Equal(t, []string{"academic", "video"}, result.Sources)
	assert.False(t, result.UsedFallback)
	assert.InDelta(t, 0.9, result.Confidence, 0.001)
}

func TestClassifyIntentDropsUnknownSources(t *testing.T) {
	srv := classifyServer(t, map[string]interface{}{
		"sources": []string{"academic", "wikipedia", "Academic"},
	})
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.ClassifyIntent(context.Background(), IntentInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"academic"}, result.Sources)
}

func TestClassifyIntentNullFallsBackToKeywords(t *testing.T) {
	srv := classifyServer(t, nil)
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.ClassifyIntent(context.Background(), IntentInput{Query: "find the github repo for this"})
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, []string{"repository", "local"}, result.Sources)
}

func TestClassifyIntentServiceDownFallsBackToKeywords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.ClassifyIntent(context.Background(), IntentInput{Query: "tell me about quantum entanglement"})
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.ElementsMatch(t, []string{"academic", "video", "repository", "web", "local"}, result.Sources)
}

func TestClassifyIntentFiltersDisabledSources(t *testing.T) {
	srv := classifyServer(t, map[string]interface{}{
		"sources": []string{"academic"},
	})
	defer srv.Close()

	cfg := &config.Research{}
	cfg.Specialists.Enabled = map[string]bool{"academic": false}

	a := newTestActivities(t, srv.URL, "http://unused", cfg)

	result, err := a.ClassifyIntent(context.Background(), IntentInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "web"}, result.Sources, "disabled selection falls back to the default pair")
}

func TestSynthesizeAnswerSinglePassThrough(t *testing.T) {
	a := newTestActivities(t, "http://unused", "http://unused", nil)

	result, err := a.SynthesizeAnswer(context.Background(), SynthesisInput{
		Query:   "q",
		Answers: []session.AnswerRecord{{Source: "web", Answer: "the only answer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "the only answer", result.Answer)
	assert.False(t, result.Degraded)
}

func TestSynthesizeAnswerMergesSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/llm/generate", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":      map[string]interface{}{"role": "assistant", "content": "merged answer"},
			"total_tokens": 42,
		})
	}))
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.SynthesizeAnswer(context.Background(), SynthesisInput{
		Query: "q",
		Answers: []session.AnswerRecord{
			{Source: "academic", Answer: "papers say X"},
			{Source: "web", Answer: "articles say Y"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "merged answer", result.Answer)
	assert.Equal(t, 42, result.TokensUsed)
	assert.False(t, result.Degraded)
}

func TestSynthesizeAnswerPromptFailsClosed(t *testing.T) {
	var req llm.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{"role": "assistant", "content": NoAnswerSentinel},
		})
	}))
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.SynthesizeAnswer(context.Background(), SynthesisInput{
		Query: "q",
		Answers: []session.AnswerRecord{
			{Source: "academic", Answer: "nothing relevant surfaced"},
			{Source: "web", Answer: "pages were off-topic"},
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, req.Messages)
	assert.Contains(t, req.Messages[0].Content.String(), "reply with exactly: "+NoAnswerSentinel,
		"the model is told the exact fail-closed sentence")
	assert.Equal(t, NoAnswerSentinel, result.Answer,
		"a sentinel reply passes through untouched")
}

func TestSynthesizeAnswerDegradesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.SynthesizeAnswer(context.Background(), SynthesisInput{
		Query: "q",
		Answers: []session.AnswerRecord{
			{Source: "academic", Answer: "papers say X"},
			{Source: "web", Answer: "articles say Y"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Answer, "From academic research:\npapers say X")
	assert.Contains(t, result.Answer, "From web research:\narticles say Y")
}

func TestSynthesizeAnswerSettlesCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{"role": "assistant", "content": "merged"},
		})
	}))
	defer srv.Close()

	a := newTestActivities(t, srv.URL, "http://unused", nil)

	result, err := a.SynthesizeAnswer(context.Background(), SynthesisInput{
		Query: "transformer neural networks",
		Answers: []session.AnswerRecord{
			{Source: "academic", Answer: "Introduced in Attention Is All You Need (arXiv 1706.03762)."},
			{Source: "web", Answer: "General articles cover the architecture."},
		},
		Citations: []citations.Citation{
			{
				SourceType: citations.SourceAcademic,
				Title:      "Attention Is All You Need",
				URL:        "https://arxiv.org/abs/1706.03762",
				Metadata:   map[string]interface{}{"arxiv_id": "1706.03762"},
			},
			{
				SourceType: citations.SourceAcademic,
				Title:      "Attention Is All You Need",
				URL:        "https://arxiv.org/pdf/1706.03762v5.pdf",
				Metadata:   map[string]interface{}{"arxiv_id": "1706.03762"},
			},
			{
				SourceType: citations.SourceWeb,
				Title:      "404 not found",
				URL:        "https://example.com/missing",
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Citations, 1, "duplicate collapsed, irrelevant dropped")
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", result.Citations[0].URL)
}

func TestSynthesizeAnswerEmptyInput(t *testing.T) {
	a := newTestActivities(t, "http://unused", "http://unused", nil)

	result, err := a.SynthesizeAnswer(context.Background(), SynthesisInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, NoAnswerSentinel, result.Answer)
	assert.True(t, result.Degraded)
}
