package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/citations"
	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/metrics"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

const synthesisSystemPrompt = `You are a research assistant. Merge the findings below into one coherent answer to the user's question. Integrate complementary information, keep per-source attribution, and explicitly note any disagreement between sources. Do not invent information that is not in the findings. Answer directly. If none of the findings contain usable information, reply with exactly: ` + NoAnswerSentinel

// SynthesizeAnswer merges the usable specialist answers into one response and
// settles the final citation list: relevance-filtered against the per-source
// answers and the query, then deduplicated by canonical key. A generation
// failure degrades to a stitched per-source answer rather than failing the
// turn.
func (a *Activities) SynthesizeAnswer(ctx context.Context, in SynthesisInput) (SynthesisResult, error) {
	start := time.Now()
	defer func() {
		metrics.SynthesisLatency.Observe(time.Since(start).Seconds())
	}()

	if len(in.Answers) == 0 {
		return SynthesisResult{Answer: NoAnswerSentinel, Degraded: true}, nil
	}

	finalCitations := a.settleCitations(in)

	if len(in.Answers) == 1 {
		// Single-source turns pass through; there is nothing to merge.
		return SynthesisResult{Answer: in.Answers[0].Answer, Citations: finalCitations}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", in.Query)
	for _, ans := range in.Answers {
		fmt.Fprintf(&sb, "Findings from %s research:\n%s\n\n", ans.Source, ans.Answer)
	}

	resp, err := a.llmClient.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: llm.TextContent(synthesisSystemPrompt)},
			{Role: llm.RoleUser, Content: llm.TextContent(sb.String())},
		},
	})
	if err != nil {
		a.logger.Warn("Synthesis generation failed, stitching per-source answers",
			zap.Int("answer_count", len(in.Answers)),
			zap.Error(err))
		metrics.SynthesisErrors.Inc()
		return SynthesisResult{Answer: stitchAnswers(in.Answers), Citations: finalCitations, Degraded: true}, nil
	}

	answer := strings.TrimSpace(resp.Message.Content.String())
	if answer == "" {
		metrics.SynthesisErrors.Inc()
		return SynthesisResult{Answer: stitchAnswers(in.Answers), Citations: finalCitations, TokensUsed: resp.TokensUsed, Degraded: true}, nil
	}

	return SynthesisResult{Answer: answer, Citations: finalCitations, TokensUsed: resp.TokensUsed}, nil
}

// settleCitations applies the relevance filter against the combined
// per-source answer text and the original query, then deduplicates.
func (a *Activities) settleCitations(in SynthesisInput) []citations.Citation {
	if len(in.Citations) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, ans := range in.Answers {
		sb.WriteString(ans.Answer)
		sb.WriteString("\n")
	}

	relevant := citations.FilterRelevant(in.Citations, sb.String(), in.Query)
	if dropped := len(in.Citations) - len(relevant); dropped > 0 {
		metrics.CitationsFiltered.Add(float64(dropped))
	}

	deduped := citations.Deduplicate(relevant)
	if removed := len(relevant) - len(deduped); removed > 0 {
		metrics.CitationsDeduplicated.Add(float64(removed))
	}
	return deduped
}

// stitchAnswers is the degraded merge: per-source sections in arrival order.
func stitchAnswers(answers []session.AnswerRecord) string {
	var parts []string
	for _, ans := range answers {
		parts = append(parts, fmt.Sprintf("From %s research:\n%s", ans.Source, ans.Answer))
	}
	return strings.Join(parts, "\n\n")
}
