package activities

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

const summarizeSystemPrompt = `You are a conversation summarizer. Produce a concise summary of the conversation below, preserving the topics discussed, the questions asked, and the key findings. Write at most one short paragraph. Output only the summary.`

// SummarizeConversation compresses the transcript into a running summary.
// Failures degrade to an empty summary; the turn proceeds on the raw
// transcript.
func (a *Activities) SummarizeConversation(ctx context.Context, in SummarizeInput) (SummarizeResult, error) {
	if len(in.Messages) == 0 {
		return SummarizeResult{}, nil
	}

	var sb strings.Builder
	for _, m := range in.Messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := a.llmClient.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: llm.TextContent(summarizeSystemPrompt)},
			{Role: llm.RoleUser, Content: llm.TextContent(sb.String())},
		},
	})
	if err != nil {
		a.logger.Warn("Conversation summarization failed",
			zap.String("session_id", in.SessionID),
			zap.Error(err))
		return SummarizeResult{}, nil
	}

	return SummarizeResult{
		Summary:    strings.TrimSpace(resp.Message.Content.String()),
		TokensUsed: resp.TokensUsed,
	}, nil
}

// transcriptTail keeps the most recent messages when compacting history.
func transcriptTail(msgs []session.Message, n int) []session.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
