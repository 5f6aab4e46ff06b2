package activities

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/db"
	"github.com/verity-labs/research-orchestrator/internal/metrics"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// GetSessionState loads (or creates) the session at turn start.
func (a *Activities) GetSessionState(ctx context.Context, in SessionFetchInput) (SessionFetchResult, error) {
	s, err := a.sessionManager.GetOrCreateSession(ctx, in.SessionID, in.UserID)
	if err != nil {
		return SessionFetchResult{}, err
	}
	return SessionFetchResult{Session: *s}, nil
}

// UpdateSessionResult persists the turn outcome onto the session: the
// user/assistant exchange on the transcript, the running summary, and the
// research artifacts for follow-up turns.
func (a *Activities) UpdateSessionResult(ctx context.Context, in SessionUpdateInput) (SessionUpdateResult, error) {
	s, err := a.sessionManager.GetSession(ctx, in.SessionID)
	if err != nil {
		a.logger.Warn("Session update skipped, session unavailable",
			zap.String("session_id", in.SessionID),
			zap.Error(err))
		return SessionUpdateResult{Error: err.Error()}, nil
	}

	now := time.Now()
	if in.Query != "" {
		s.OriginalQuery = in.Query
	}
	if in.RewrittenQuery != "" {
		// A clear rewrite compacts the transcript to the canonical query.
		s.RewrittenQueries = []string{in.RewrittenQuery}
		s.QuestionIsClear = true
		s.Transcript = []session.Message{{Role: session.RoleUser, Content: in.RewrittenQuery, Timestamp: now}}
	} else if in.Query != "" {
		s.Transcript = append(s.Transcript, session.Message{Role: session.RoleUser, Content: in.Query, Timestamp: now})
	}
	if in.Answer != "" {
		s.Transcript = append(s.Transcript, session.Message{Role: session.RoleAssistant, Content: in.Answer, Timestamp: now})
	}
	if in.Summary != "" {
		s.ConversationSummary = in.Summary
	}
	if in.CompactHistory && in.RewrittenQuery == "" {
		// Summarized turns keep only a short transcript tail; the summary
		// carries the rest.
		s.Transcript = transcriptTail(s.Transcript, 10)
	}
	if in.ClearResults {
		s.Answers = nil
		s.Citations = nil
		s.ResultsBySource = nil
	}
	if len(in.SelectedSources) > 0 {
		s.SelectedSources = in.SelectedSources
	}
	if len(in.Answers) > 0 {
		s.Answers = in.Answers
	}
	if len(in.Citations) > 0 {
		s.Citations = in.Citations
	}
	if len(in.ResultsBySource) > 0 {
		s.ResultsBySource = in.ResultsBySource
	}
	if in.DeliverableURL != "" {
		s.DeliverableURL = in.DeliverableURL
	}
	if len(in.DeliverableData) > 0 {
		s.DeliverableData = in.DeliverableData
	}

	if err := a.sessionManager.UpdateSession(ctx, s); err != nil {
		a.logger.Error("Failed to persist session update",
			zap.String("session_id", in.SessionID),
			zap.Error(err))
		return SessionUpdateResult{Error: err.Error()}, nil
	}
	return SessionUpdateResult{Success: true}, nil
}

// FetchCachedResults looks up prior answers for each selected source.
func (a *Activities) FetchCachedResults(ctx context.Context, in CacheFetchInput) (CacheFetchResult, error) {
	if a.cache == nil || !a.cachingEnabled() {
		return CacheFetchResult{}, nil
	}

	hits := make(map[string]session.CachedResult)
	for _, source := range in.Sources {
		cached, err := a.cache.Get(ctx, source, in.Query)
		if err != nil {
			a.logger.Warn("Research cache lookup failed",
				zap.String("source", source),
				zap.Error(err))
			continue
		}
		if cached != nil {
			hits[source] = *cached
		}
	}
	if len(hits) == 0 {
		return CacheFetchResult{}, nil
	}
	return CacheFetchResult{Hits: hits}, nil
}

// StoreCachedResults saves fresh, successful task answers for future turns.
// Cached hits are never re-stored.
func (a *Activities) StoreCachedResults(ctx context.Context, in CacheStoreInput) error {
	if a.cache == nil || !a.cachingEnabled() {
		return nil
	}

	for _, r := range in.Results {
		if !r.Success || r.Cached {
			continue
		}
		err := a.cache.Put(ctx, r.Source, in.Query, session.CachedResult{
			Answer:    r.Answer,
			Citations: r.Citations,
		})
		if err != nil {
			a.logger.Warn("Research cache store failed",
				zap.String("source", r.Source),
				zap.Error(err))
		}
	}
	return nil
}

func (a *Activities) cachingEnabled() bool {
	cfg := a.cfg()
	if cfg == nil {
		return true
	}
	return cfg.Session.CacheEnabled
}

// PersistTurn writes the completed turn to Postgres. Persistence is
// best-effort and never fails the turn; a disabled database is a no-op.
func (a *Activities) PersistTurn(ctx context.Context, in TurnPersistInput) error {
	metrics.TurnsCompleted.WithLabelValues(in.TurnType, in.Status).Inc()
	metrics.TurnDuration.Observe(float64(in.DurationMS) / 1000)

	if a.dbClient == nil {
		return nil
	}

	record := db.TurnRecord{
		ID:         in.TurnID,
		SessionID:  in.SessionID,
		UserID:     in.UserID,
		Query:      in.Query,
		Answer:     in.Answer,
		Sources:    pq.StringArray(in.Sources),
		TurnType:   in.TurnType,
		Status:     in.Status,
		DurationMS: in.DurationMS,
		CreatedAt:  time.Now(),
	}
	if err := a.dbClient.SaveTurn(ctx, record, in.Citations); err != nil {
		a.logger.Warn("Turn persistence failed",
			zap.String("turn_id", in.TurnID),
			zap.String("session_id", in.SessionID),
			zap.Error(err))
	}
	return nil
}
