package workflows

import (
	"github.com/verity-labs/research-orchestrator/internal/citations"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// Signal and query names on the research workflow.
const (
	SignalHumanInput  = "human_input"
	QueryTurnStatus   = "research_status"
	TaskQueue         = "research-orchestrator"
	ResetHistoryToken = "__reset__"
)

// Turn phases reported through the status query.
const (
	PhaseStarting     = "starting"
	PhaseSummarizing  = "summarizing"
	PhaseRewriting    = "rewriting"
	PhaseClassifying  = "classifying"
	PhaseWaitingHuman = "waiting_for_input"
	PhaseResearching  = "researching"
	PhaseAggregating  = "aggregating"
	PhaseHandoff      = "creating_deliverable"
	PhaseCompleted    = "completed"
)

// TurnInput starts one research turn.
type TurnInput struct {
	SessionID         string `json:"session_id"`
	UserID            string `json:"user_id"`
	Query             string `json:"query"`
	CreateDeliverable bool   `json:"create_deliverable"`
	// DeliverableOnly skips research and hands off the previous turn's results.
	DeliverableOnly bool `json:"deliverable_only"`
	// MaxConcurrency bounds parallel specialist tasks; zero means the default.
	MaxConcurrency int `json:"max_concurrency,omitempty"`
	// TaskTimeoutSeconds bounds each specialist task; zero means the default.
	TaskTimeoutSeconds int `json:"task_timeout_seconds,omitempty"`
}

// TurnResult is the workflow's final output.
type TurnResult struct {
	SessionID          string                 `json:"session_id"`
	Answer             string                 `json:"answer"`
	Sources            []string               `json:"sources,omitempty"`
	Citations          []citations.Citation   `json:"citations,omitempty"`
	ClarificationAsked bool                   `json:"clarification_asked,omitempty"`
	DeliverableURL     string                 `json:"deliverable_url,omitempty"`
	DeliverableData    map[string]interface{} `json:"deliverable_data,omitempty"`
	TokensUsed         int                    `json:"tokens_used"`
	Degraded           bool                   `json:"degraded,omitempty"`
}

// HumanInput is the signal payload that resumes a clarification wait.
type HumanInput struct {
	Message string `json:"message"`
}

// TurnStatus is the query-visible view of an in-flight turn.
type TurnStatus struct {
	Phase                 string   `json:"phase"`
	Sources               []string `json:"sources,omitempty"`
	ClarificationQuestion string   `json:"clarification_question,omitempty"`
	TasksDispatched       int      `json:"tasks_dispatched"`
	TasksCompleted        int      `json:"tasks_completed"`
}

// turnOutcome is the aggregate's verdict for one fan-out round.
type turnOutcome struct {
	Answer    string
	Answers   []session.AnswerRecord
	Citations []citations.Citation
	Sources   []string
	Degraded  bool
	AllFailed bool
	Tokens    int
}
