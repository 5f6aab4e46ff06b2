package workflows

import (
	"fmt"
	"strings"

	"go.temporal.io/sdk/workflow"

	"github.com/verity-labs/research-orchestrator/internal/activities"
	"github.com/verity-labs/research-orchestrator/internal/citations"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// Answers matching these strings (lowercased, trimmed) count as failed.
var failureSentinels = map[string]bool{
	"":                              true,
	"unable to generate an answer.": true,
	"no information found":          true,
	"error":                         true,
}

const noInformationApology = `I apologize, but I couldn't find any relevant information to answer your question. This could be due to:
- The research agents encountered errors
- No relevant sources were found
- The question may need to be rephrased

Please try rephrasing your question or providing more context.`

const allFailedApologyFormat = `I apologize, but all research agents encountered issues while processing your question. The agents I tried:
%s

Please try rephrasing your question or try again later.`

func isFailureAnswer(answer string) bool {
	return failureSentinels[strings.ToLower(strings.TrimSpace(answer))]
}

// aggregateResults joins the fan-out: partitions usable from failed answers,
// short-circuits to a fixed apology when nothing survived, and otherwise runs
// the synthesis activity to settle the final answer and citation list.
func aggregateResults(ctx workflow.Context, query string, results []activities.TaskResult) turnOutcome {
	logger := workflow.GetLogger(ctx)

	if len(results) == 0 {
		return turnOutcome{Answer: noInformationApology, AllFailed: true, Degraded: true}
	}

	var (
		answers  []session.AnswerRecord
		allCits  []citations.Citation
		sources  []string
		triedSet []string
		tokens   int
	)
	for _, r := range results {
		triedSet = appendUnique(triedSet, r.Source)
		tokens += r.TokensUsed
		if isFailureAnswer(r.Answer) {
			logger.Info("Source produced no usable answer",
				"source", r.Source,
				"error", r.ErrorMessage)
			continue
		}
		answers = append(answers, session.AnswerRecord{
			Source:   r.Source,
			Question: r.Question,
			Index:    r.Index,
			Answer:   r.Answer,
			Cached:   r.Cached,
		})
		allCits = append(allCits, r.Citations...)
		sources = appendUnique(sources, r.Source)
	}

	if len(answers) == 0 {
		lines := make([]string, len(triedSet))
		for i, s := range triedSet {
			lines[i] = "- " + s
		}
		return turnOutcome{
			Answer:    fmt.Sprintf(allFailedApologyFormat, strings.Join(lines, "\n")),
			Sources:   triedSet,
			AllFailed: true,
			Degraded:  true,
			Tokens:    tokens,
		}
	}

	var synth activities.SynthesisResult
	err := workflow.ExecuteActivity(ctx, ActivitySynthesize, activities.SynthesisInput{
		Query:     query,
		Answers:   answers,
		Citations: allCits,
	}).Get(ctx, &synth)
	if err != nil {
		// The synthesis activity degrades internally; reaching this branch
		// means transport-level failure. Stitch locally so the turn still
		// returns the per-source findings.
		logger.Error("Synthesis activity failed", "error", err)
		var parts []string
		for _, a := range answers {
			parts = append(parts, fmt.Sprintf("From %s research:\n%s", a.Source, a.Answer))
		}
		return turnOutcome{
			Answer:    strings.Join(parts, "\n\n"),
			Answers:   answers,
			Citations: citations.Deduplicate(allCits),
			Sources:   sources,
			Degraded:  true,
			Tokens:    tokens,
		}
	}

	return turnOutcome{
		Answer:    synth.Answer,
		Answers:   answers,
		Citations: synth.Citations,
		Sources:   sources,
		Degraded:  synth.Degraded,
		Tokens:    tokens + synth.TokensUsed,
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// resultsBySource groups answer records for session persistence.
func resultsBySource(answers []session.AnswerRecord) map[string][]session.AnswerRecord {
	if len(answers) == 0 {
		return nil
	}
	out := make(map[string][]session.AnswerRecord)
	for _, a := range answers {
		out[a.Source] = append(out[a.Source], a)
	}
	return out
}
