package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/metrics"
)

const rewritePromptTemplate = `Given the conversation summary and the user's latest question, decide whether the question is clear enough to research.

If it is clear, rewrite it into at most %d self-contained search queries that each stand alone without the conversation context.
If it is ambiguous or missing essential detail, do not rewrite; instead produce one clarification question to ask the user.

Conversation summary:
%s

User question:
%s`

var rewriteSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"clear":                  map[string]interface{}{"type": "boolean"},
		"rewritten_queries":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"clarification_question": map[string]interface{}{"type": "string"},
	},
	"required": []string{"clear"},
}

// RewriteQuery resolves the user's question against the conversation summary
// into self-contained queries, or asks for clarification. The operation fails
// open: any model or transport failure treats the question as clear and
// researches it verbatim.
func (a *Activities) RewriteQuery(ctx context.Context, in RewriteInput) (RewriteResult, error) {
	failOpen := RewriteResult{
		Clear:            true,
		RewrittenQueries: []string{in.Query},
	}

	prompt := fmt.Sprintf(rewritePromptTemplate, MaxRewrittenQueries, in.Summary, in.Query)
	raw, err := a.llmClient.Classify(ctx, llm.ClassifyRequest{Prompt: prompt, Schema: rewriteSchema})
	if err != nil {
		a.logger.Warn("Query rewrite failed, proceeding with original query",
			zap.String("query", in.Query),
			zap.Error(err))
		return failOpen, nil
	}
	if len(raw) == 0 {
		return failOpen, nil
	}

	var decoded struct {
		Clear                 bool     `json:"clear"`
		RewrittenQueries      []string `json:"rewritten_queries"`
		ClarificationQuestion string   `json:"clarification_question"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		a.logger.Warn("Query rewrite returned malformed result, proceeding with original query",
			zap.Error(err))
		return failOpen, nil
	}

	if !decoded.Clear {
		q := strings.TrimSpace(decoded.ClarificationQuestion)
		if q == "" {
			// An unclear verdict without a question to ask is unusable.
			return failOpen, nil
		}
		metrics.ClarificationsRequested.Inc()
		return RewriteResult{Clear: false, ClarificationQuestion: q}, nil
	}

	queries := sanitizeQueries(decoded.RewrittenQueries, in.Query)
	return RewriteResult{Clear: true, RewrittenQueries: queries}, nil
}

// sanitizeQueries trims, drops empties and duplicates, caps the count, and
// falls back to the original query when nothing survives.
func sanitizeQueries(in []string, original string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == MaxRewrittenQueries {
			break
		}
	}
	if len(out) == 0 && original != "" {
		return []string{original}
	}
	return out
}
