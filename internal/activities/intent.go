package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/intent"
	"github.com/verity-labs/research-orchestrator/internal/llm"
)

const intentPromptTemplate = `Select which research sources should handle the user's question. Available sources:

- academic: scholarly papers and preprints (arXiv)
- video: video content and transcripts (YouTube)
- repository: source code repositories (GitHub)
- web: general web pages and articles
- local: the user's own indexed documents

Pick every source likely to hold relevant material, and no others. Explain your choice briefly and rate your confidence between 0 and 1.

Conversation summary:
%s

User question:
%s`

var intentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"sources":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"reasoning":         map[string]interface{}{"type": "string"},
		"confidence":        map[string]interface{}{"type": "number"},
		"suggested_queries": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
	"required": []string{"sources"},
}

// ClassifyIntent decides which specialists to fan out to. Classification
// degrades through a fixed chain: model output with unknown identifiers
// dropped, then keyword scanning, then the default pair. The result is never
// empty.
func (a *Activities) ClassifyIntent(ctx context.Context, in IntentInput) (IntentResult, error) {
	result := a.classifyWithModel(ctx, in)

	// Disabled specialists are removed after selection so the fallback chain
	// reasons over the full source vocabulary.
	filtered := intent.FilterEnabled(result.Sources, a.enabledSources())
	if len(filtered) == 0 {
		filtered = intent.FilterEnabled(intent.DefaultPair(), a.enabledSources())
	}
	if len(filtered) == 0 {
		// Config disabled everything; the default pair still runs.
		filtered = intent.DefaultPair()
	}
	result.Sources = filtered

	return result, nil
}

func (a *Activities) classifyWithModel(ctx context.Context, in IntentInput) IntentResult {
	prompt := fmt.Sprintf(intentPromptTemplate, in.Summary, in.Query)
	raw, err := a.llmClient.Classify(ctx, llm.ClassifyRequest{Prompt: prompt, Schema: intentSchema})
	if err != nil {
		a.logger.Warn("Intent classification failed, using keyword fallback",
			zap.String("query", in.Query),
			zap.Error(err))
		return a.keywordFallback(in.Query)
	}
	if len(raw) == 0 {
		return a.keywordFallback(in.Query)
	}

	var decoded struct {
		Sources          []string `json:"sources"`
		Reasoning        string   `json:"reasoning"`
		Confidence       float64  `json:"confidence"`
		SuggestedQueries []string `json:"suggested_queries"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		a.logger.Warn("Intent classification returned malformed result, using keyword fallback",
			zap.Error(err))
		return a.keywordFallback(in.Query)
	}

	valid, dropped := intent.Validate(decoded.Sources)
	if len(dropped) > 0 {
		a.logger.Warn("Intent classifier proposed unknown sources",
			zap.Strings("dropped", dropped))
	}
	if len(valid) == 0 {
		return a.keywordFallback(in.Query)
	}

	return IntentResult{
		Sources:          valid,
		Reasoning:        decoded.Reasoning,
		Confidence:       decoded.Confidence,
		SuggestedQueries: sanitizeQueries(decoded.SuggestedQueries, ""),
	}
}

func (a *Activities) keywordFallback(query string) IntentResult {
	sources := intent.FallbackSources(query)
	if len(sources) == 0 {
		sources = intent.DefaultPair()
	}
	a.logger.Info("Intent resolved by keyword fallback",
		zap.Strings("sources", sources))
	return IntentResult{
		Sources:      sources,
		Reasoning:    "keyword fallback: " + strings.Join(sources, ", "),
		UsedFallback: true,
	}
}
