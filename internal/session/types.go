package session

import (
	"errors"
	"time"

	"github.com/verity-labs/research-orchestrator/internal/citations"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Message roles in the session transcript
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one role-tagged transcript entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AnswerRecord is one specialist's answer for one sub-query.
type AnswerRecord struct {
	Source   string `json:"source"`
	Question string `json:"question"`
	Index    int    `json:"index"`
	Answer   string `json:"answer"`
	Cached   bool   `json:"cached,omitempty"`
}

// Session is one conversation thread, persisted across turns. The transcript
// is append-only within a turn and compacted to the rewritten canonical query
// once a turn's question is judged clear.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Transcript          []Message `json:"transcript"`
	ConversationSummary string    `json:"conversation_summary"`

	OriginalQuery    string   `json:"original_query"`
	RewrittenQueries []string `json:"rewritten_queries"`
	QuestionIsClear  bool     `json:"question_is_clear"`
	SelectedSources  []string `json:"selected_sources"`

	Answers         []AnswerRecord            `json:"answers"`
	Citations       []citations.Citation      `json:"citations"`
	ResultsBySource map[string][]AnswerRecord `json:"results_by_source,omitempty"`

	CacheEnabled bool `json:"cache_enabled"`

	CreateDeliverable bool                   `json:"create_deliverable"`
	DeliverableURL    string                 `json:"deliverable_url,omitempty"`
	DeliverableData   map[string]interface{} `json:"deliverable_data,omitempty"`
}

// IsExpired reports whether the session passed its expiry time.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// CachedResult is one prior specialist answer stored in the research cache.
type CachedResult struct {
	Source    string               `json:"source"`
	Query     string               `json:"query"`
	Answer    string               `json:"answer"`
	Citations []citations.Citation `json:"citations,omitempty"`
	StoredAt  time.Time            `json:"stored_at"`
}
