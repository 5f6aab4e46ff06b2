package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/citations"
	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/metrics"
	"github.com/verity-labs/research-orchestrator/internal/specialists"
)

// toolRecord pairs a tool call with its raw output for citation extraction.
type toolRecord struct {
	call   llm.ToolCall
	output interface{}
}

// ExecuteSpecialistTask drives one specialist through its tool-use loop under
// the per-task budget, then extracts the final answer and citations from the
// transcript. The activity never returns an error for specialist-level
// failures; a failed source is reported through the result so the turn
// continues with whatever the other sources produced.
func (a *Activities) ExecuteSpecialistTask(ctx context.Context, in TaskInput) (TaskResult, error) {
	start := time.Now()
	metrics.TasksDispatched.WithLabelValues(in.Source).Inc()
	result := TaskResult{Source: in.Source, Question: in.Question, Index: in.Index}

	spec, ok := a.registry.Get(in.Source)
	if !ok {
		result.Answer = NoAnswerSentinel
		result.ErrorMessage = fmt.Sprintf("unknown specialist %q", in.Source)
		return result, nil
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: llm.TextContent(spec.SystemPrompt)},
		{Role: llm.RoleUser, Content: llm.TextContent(in.Question)},
	}

	var records []toolRecord
	toolGenerations := 0
	capReached := false

	for {
		if activity.IsActivity(ctx) {
			activity.RecordHeartbeat(ctx, toolGenerations)
		}

		tools := spec.Tools
		if toolGenerations >= MaxToolCalls {
			// Budget exhausted: withhold tools to force a final answer.
			tools = nil
			if !capReached {
				capReached = true
				metrics.ToolCallCapReached.WithLabelValues(in.Source).Inc()
			}
		}

		resp, err := a.llmClient.Generate(ctx, llm.GenerateRequest{Messages: msgs, Tools: tools})
		if err != nil {
			a.logger.Warn("Specialist generation failed",
				zap.String("source", in.Source),
				zap.Int("tool_generations", toolGenerations),
				zap.Error(err))
			result.ErrorMessage = err.Error()
			break
		}
		result.TokensUsed += resp.TokensUsed
		msgs = append(msgs, resp.Message)

		if !resp.Message.HasToolCalls() {
			break
		}
		if tools == nil {
			// The model requested tools after they were withheld; stop here
			// rather than looping on requests that will never execute.
			break
		}

		toolGenerations++
		result.ToolCalls = toolGenerations

		for _, call := range resp.Message.ToolCalls {
			metrics.ToolCalls.WithLabelValues(in.Source, call.Name).Inc()

			output, err := a.toolClient.Execute(ctx, in.Source, call)
			var content string
			if err != nil {
				a.logger.Warn("Tool execution failed",
					zap.String("source", in.Source),
					zap.String("tool", call.Name),
					zap.Error(err))
				content = fmt.Sprintf("error: %v", err)
			} else {
				records = append(records, toolRecord{call: call, output: output})
				content = renderToolOutput(output)
			}
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    llm.TextContent(content),
			})
		}
	}

	result.Citations = a.extractCitations(spec, records)

	answer := extractFinalAnswer(msgs)
	if strings.TrimSpace(answer) == "" {
		answer = NoAnswerSentinel
	}
	if answer == NoAnswerSentinel && len(result.Citations) > 0 {
		// Partial signal: the tools found something even though the model
		// produced no prose. Never hand the aggregator a fully empty result.
		answer = fallbackSummary(result.Citations)
	}
	result.Answer = answer
	result.Success = answer != NoAnswerSentinel && result.ErrorMessage == ""

	status := "success"
	if !result.Success {
		status = "failed"
	}
	metrics.TasksCompleted.WithLabelValues(in.Source, status).Inc()
	metrics.TaskDuration.WithLabelValues(in.Source).Observe(time.Since(start).Seconds())

	return result, nil
}

// extractFinalAnswer returns the content of the last assistant message that
// carries no further tool requests. Multi-part content concatenates its
// textual segments.
func extractFinalAnswer(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != llm.RoleAssistant || msgs[i].HasToolCalls() {
			continue
		}
		return strings.TrimSpace(msgs[i].Content.String())
	}
	return ""
}

// fallbackSummary builds a one-line answer from citation titles.
func fallbackSummary(cits []citations.Citation) string {
	var titles []string
	for _, c := range cits {
		t := c.Title
		if t == "" {
			t = c.URL
		}
		titles = append(titles, t)
		if len(titles) == 3 {
			break
		}
	}
	return fmt.Sprintf("Found %d result(s): %s", len(cits), strings.Join(titles, "; "))
}

// extractCitations walks the recorded tool outputs through the specialist's
// parser, bounded by the per-result and per-task caps, deduplicating by
// canonical key as it goes.
func (a *Activities) extractCitations(spec specialists.Specialist, records []toolRecord) []citations.Citation {
	seen := make(map[string]bool)
	var out []citations.Citation

	for _, rec := range records {
		if len(out) >= MaxCitationsPerTask {
			break
		}

		decoded := llm.DecodeToolOutput(rec.output)
		var items []map[string]interface{}
		switch decoded.Kind {
		case llm.ToolOutputItem:
			items = []map[string]interface{}{decoded.Item}
		case llm.ToolOutputList:
			items = decoded.Items
			if len(items) > MaxItemsPerResult {
				items = items[:MaxItemsPerResult]
			}
		default:
			continue
		}

		for _, item := range items {
			if len(out) >= MaxCitationsPerTask {
				break
			}
			cit := a.parseCitationItem(spec, rec.call, item)
			if cit == nil || strings.TrimSpace(cit.URL) == "" {
				continue
			}
			if cit.Title == "" {
				// An untitled citation still needs something displayable.
				if domain, err := citations.ExtractDomain(cit.URL); err == nil && domain != "" {
					cit.Title = domain
				}
			}
			key := citations.CanonicalKey(*cit)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, *cit)
			metrics.CitationsExtracted.WithLabelValues(spec.ID).Inc()
		}
	}

	return out
}

// parseCitationItem applies the specialist's parser to one item. Parser
// failures are contained per item; a bad result never aborts the task.
func (a *Activities) parseCitationItem(spec specialists.Specialist, call llm.ToolCall, item map[string]interface{}) (cit *citations.Citation) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("Citation parser panicked",
				zap.String("source", spec.ID),
				zap.String("tool", call.Name),
				zap.Any("panic", r))
			cit = nil
		}
	}()

	c, err := spec.ParseCitation(call.Name, call.Arguments, item)
	if err != nil {
		a.logger.Debug("Citation parse skipped",
			zap.String("source", spec.ID),
			zap.String("tool", call.Name),
			zap.Error(err))
		return nil
	}
	return c
}

// renderToolOutput serializes a tool output for the model transcript,
// bounded so oversized payloads do not blow up the context.
func renderToolOutput(output interface{}) string {
	const maxLen = 8000

	var s string
	switch v := output.(type) {
	case string:
		s = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(b)
		}
	}

	if len(s) > maxLen {
		s = s[:maxLen] + "... (truncated)"
	}
	return s
}
