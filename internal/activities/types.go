package activities

import (
	"github.com/verity-labs/research-orchestrator/internal/citations"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// Per-task budgets. The tool-call cap bounds the whole task, not a single
// generation round.
const (
	MaxToolCalls        = 10
	MaxCitationsPerTask = 10
	MaxItemsPerResult   = 10
	MaxRewrittenQueries = 3
)

// NoAnswerSentinel is emitted when a task produced no extractable answer.
const NoAnswerSentinel = "Unable to generate an answer."

// SummarizeInput asks for a short summary of the conversation so far.
type SummarizeInput struct {
	SessionID string            `json:"session_id"`
	Messages  []session.Message `json:"messages"`
}

type SummarizeResult struct {
	Summary    string `json:"summary"`
	TokensUsed int    `json:"tokens_used"`
}

// RewriteInput carries the latest user query plus the running summary.
type RewriteInput struct {
	Query   string `json:"query"`
	Summary string `json:"summary"`
}

// RewriteResult either declares the question clear with up to
// MaxRewrittenQueries self-contained sub-queries, or asks for clarification.
type RewriteResult struct {
	Clear                 bool     `json:"clear"`
	RewrittenQueries      []string `json:"rewritten_queries,omitempty"`
	ClarificationQuestion string   `json:"clarification_question,omitempty"`
	TokensUsed            int      `json:"tokens_used"`
}

// IntentInput asks which specialists should handle the query.
type IntentInput struct {
	Query   string `json:"query"`
	Summary string `json:"summary"`
}

type IntentResult struct {
	Sources          []string `json:"sources"`
	Reasoning        string   `json:"reasoning,omitempty"`
	Confidence       float64  `json:"confidence"`
	SuggestedQueries []string `json:"suggested_queries,omitempty"`
	UsedFallback     bool     `json:"used_fallback"`
	TokensUsed       int      `json:"tokens_used"`
}

// TaskInput is one bounded specialist task.
type TaskInput struct {
	Source    string `json:"source"`
	Question  string `json:"question"`
	Index     int    `json:"index"`
	SessionID string `json:"session_id"`
}

// TaskResult is the task's folded output. Success is false when the
// specialist produced nothing usable; the task itself never fails the turn.
type TaskResult struct {
	Source       string               `json:"source"`
	Question     string               `json:"question"`
	Index        int                  `json:"index"`
	Answer       string               `json:"answer"`
	Citations    []citations.Citation `json:"citations,omitempty"`
	Success      bool                 `json:"success"`
	Cached       bool                 `json:"cached,omitempty"`
	TokensUsed   int                  `json:"tokens_used"`
	ToolCalls    int                  `json:"tool_calls"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// SynthesisInput carries everything the merge generation needs. Citations are
// the raw extracted set; the activity filters them for relevance against the
// per-source answers and deduplicates before returning.
type SynthesisInput struct {
	Query     string                 `json:"query"`
	Answers   []session.AnswerRecord `json:"answers"`
	Citations []citations.Citation   `json:"citations,omitempty"`
}

type SynthesisResult struct {
	Answer     string               `json:"answer"`
	Citations  []citations.Citation `json:"citations,omitempty"`
	TokensUsed int                  `json:"tokens_used"`
	Degraded   bool                 `json:"degraded,omitempty"`
}

// CacheFetchInput looks up prior answers for the selected sources.
type CacheFetchInput struct {
	Sources []string `json:"sources"`
	Query   string   `json:"query"`
}

type CacheFetchResult struct {
	// Hits maps specialist id to its cached answer.
	Hits map[string]session.CachedResult `json:"hits,omitempty"`
}

// CacheStoreInput persists fresh task answers for future turns.
type CacheStoreInput struct {
	Query   string       `json:"query"`
	Results []TaskResult `json:"results"`
}

// SessionFetchInput loads the session record at turn start.
type SessionFetchInput struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type SessionFetchResult struct {
	Session session.Session `json:"session"`
}

// SessionUpdateInput persists the turn outcome back onto the session.
// ClearResults drops the held research artifacts, so a later deliverable-only
// turn cannot pair a failed answer with stale citations.
type SessionUpdateInput struct {
	SessionID       string                            `json:"session_id"`
	Query           string                            `json:"query"`
	Answer          string                            `json:"answer"`
	Summary         string                            `json:"summary"`
	RewrittenQuery  string                            `json:"rewritten_query"`
	CompactHistory  bool                              `json:"compact_history"`
	ClearResults    bool                              `json:"clear_results,omitempty"`
	SelectedSources []string                          `json:"selected_sources,omitempty"`
	Answers         []session.AnswerRecord            `json:"answers,omitempty"`
	Citations       []citations.Citation              `json:"citations,omitempty"`
	ResultsBySource map[string][]session.AnswerRecord `json:"results_by_source,omitempty"`
	DeliverableURL  string                            `json:"deliverable_url,omitempty"`
	DeliverableData map[string]interface{}            `json:"deliverable_data,omitempty"`
}

type SessionUpdateResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TurnPersistInput writes the completed turn to Postgres.
type TurnPersistInput struct {
	TurnID     string               `json:"turn_id"`
	SessionID  string               `json:"session_id"`
	UserID     string               `json:"user_id"`
	Query      string               `json:"query"`
	Answer     string               `json:"answer"`
	Sources    []string             `json:"sources"`
	Citations  []citations.Citation `json:"citations,omitempty"`
	TurnType   string               `json:"turn_type"`
	Status     string               `json:"status"`
	DurationMS int64                `json:"duration_ms"`
}

// DeliverableInput is the hand-off payload for downstream generation.
type DeliverableInput struct {
	SessionID       string                            `json:"session_id"`
	Query           string                            `json:"query"`
	AnswerText      string                            `json:"answer_text"`
	Citations       []citations.Citation              `json:"citations,omitempty"`
	ResultsBySource map[string][]session.AnswerRecord `json:"results_by_source,omitempty"`
}

// DeliverableResult reports the hand-off outcome. Failures carry the reason
// and a remediation hint; the research results are never discarded.
type DeliverableResult struct {
	URL          string                 `json:"url,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}
