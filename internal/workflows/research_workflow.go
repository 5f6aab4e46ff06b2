package workflows

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/verity-labs/research-orchestrator/internal/activities"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// summarizeThreshold is the transcript length at which a turn summarizes the
// conversation before rewriting.
const summarizeThreshold = 4

// ResearchTurnWorkflow runs one research turn end to end: load session,
// summarize when the transcript warrants it, rewrite or ask for
// clarification, classify intent, fan out to specialists, aggregate, and
// optionally hand off a deliverable. Clarification is a durable suspend
// point; the workflow waits on the human-input signal and re-enters the
// rewrite step with the extra context.
func ResearchTurnWorkflow(ctx workflow.Context, in TurnInput) (TurnResult, error) {
	logger := workflow.GetLogger(ctx)
	startedAt := workflow.Now(ctx)

	status := &TurnStatus{Phase: PhaseStarting}
	if err := workflow.SetQueryHandler(ctx, QueryTurnStatus, func() (TurnStatus, error) {
		return *status, nil
	}); err != nil {
		return TurnResult{}, err
	}

	lightOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	modelOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	lightCtx := workflow.WithActivityOptions(ctx, lightOpts)
	modelCtx := workflow.WithActivityOptions(ctx, modelOpts)

	var sessState activities.SessionFetchResult
	if err := workflow.ExecuteActivity(lightCtx, ActivityGetSessionState, activities.SessionFetchInput{
		SessionID: in.SessionID,
		UserID:    in.UserID,
	}).Get(ctx, &sessState); err != nil {
		return TurnResult{}, err
	}
	sess := sessState.Session
	in.SessionID = sess.ID

	if in.DeliverableOnly {
		return deliverableOnlyTurn(ctx, lightCtx, in, sess, status, startedAt)
	}

	logger.Info("Research turn started",
		"session_id", sess.ID,
		"query", in.Query)

	// Working history for this turn: the persisted transcript plus the
	// incoming question.
	history := Reduce(sess.Transcript, session.Message{
		Role:    session.RoleUser,
		Content: in.Query,
	})

	summary := sess.ConversationSummary
	compacted := false
	if len(history) >= summarizeThreshold {
		status.Phase = PhaseSummarizing
		var sum activities.SummarizeResult
		if err := workflow.ExecuteActivity(modelCtx, ActivitySummarize, activities.SummarizeInput{
			SessionID: sess.ID,
			Messages:  history,
		}).Get(ctx, &sum); err != nil {
			logger.Warn("Summarization failed, continuing without summary", "error", err)
		} else if sum.Summary != "" {
			summary = sum.Summary
			compacted = true
		}
	}

	// Rewrite loop with the clarification suspend point.
	status.Phase = PhaseRewriting
	query := in.Query
	clarificationAsked := false
	var queries []string
	for {
		var rewrite activities.RewriteResult
		if err := workflow.ExecuteActivity(modelCtx, ActivityRewrite, activities.RewriteInput{
			Query:   query,
			Summary: summary,
		}).Get(ctx, &rewrite); err != nil {
			logger.Warn("Rewrite failed, using query verbatim", "error", err)
			rewrite = activities.RewriteResult{Clear: true, RewrittenQueries: []string{query}}
		}

		if rewrite.Clear {
			queries = rewrite.RewrittenQueries
			if len(queries) == 0 {
				queries = []string{query}
			}
			// One reset per turn: the working history collapses to the
			// canonical rewritten query.
			history = ReduceAll(history,
				session.Message{Content: ResetHistoryToken},
				session.Message{Role: session.RoleUser, Content: queries[0]},
			)
			break
		}

		if rewrite.ClarificationQuestion == "" {
			// Unclear with nothing to ask; treat as clear rather than hang.
			queries = []string{query}
			history = ReduceAll(history,
				session.Message{Content: ResetHistoryToken},
				session.Message{Role: session.RoleUser, Content: query},
			)
			break
		}

		clarificationAsked = true
		status.Phase = PhaseWaitingHuman
		status.ClarificationQuestion = rewrite.ClarificationQuestion
		logger.Info("Awaiting clarification",
			"session_id", sess.ID,
			"question", rewrite.ClarificationQuestion)

		var human HumanInput
		workflow.GetSignalChannel(ctx, SignalHumanInput).Receive(ctx, &human)

		history = Reduce(history, session.Message{Role: session.RoleUser, Content: human.Message})
		query = strings.TrimSpace(query + "\n" + human.Message)
		status.Phase = PhaseRewriting
		status.ClarificationQuestion = ""
	}

	// After the reset the working history holds exactly the canonical query.
	canonical := history[len(history)-1].Content

	status.Phase = PhaseClassifying
	var intent activities.IntentResult
	if err := workflow.ExecuteActivity(modelCtx, ActivityClassifyIntent, activities.IntentInput{
		Query:   canonical,
		Summary: summary,
	}).Get(ctx, &intent); err != nil {
		logger.Warn("Intent classification activity failed, using default pair", "error", err)
		intent = activities.IntentResult{Sources: []string{"local", "web"}, UsedFallback: true}
	}
	status.Sources = intent.Sources

	var cached activities.CacheFetchResult
	if sess.CacheEnabled {
		if err := workflow.ExecuteActivity(lightCtx, ActivityFetchCache, activities.CacheFetchInput{
			Sources: intent.Sources,
			Query:   canonical,
		}).Get(ctx, &cached); err != nil {
			logger.Warn("Cache lookup failed, dispatching all sources", "error", err)
		}
	}

	status.Phase = PhaseResearching
	results := dispatchResearchTasks(ctx, in, intent.Sources, queries, cached.Hits, in.MaxConcurrency, status)

	status.Phase = PhaseAggregating
	outcome := aggregateResults(modelCtx, in.Query, results)

	if sess.CacheEnabled && !outcome.AllFailed {
		if err := workflow.ExecuteActivity(lightCtx, ActivityStoreCache, activities.CacheStoreInput{
			Query:   canonical,
			Results: results,
		}).Get(ctx, nil); err != nil {
			logger.Warn("Cache store failed", "error", err)
		}
	}

	result := TurnResult{
		SessionID:          sess.ID,
		Answer:             outcome.Answer,
		Sources:            outcome.Sources,
		Citations:          outcome.Citations,
		ClarificationAsked: clarificationAsked,
		TokensUsed:         outcome.Tokens,
		Degraded:           outcome.Degraded,
	}

	if in.CreateDeliverable && !outcome.AllFailed {
		status.Phase = PhaseHandoff
		handoff := runHandoff(ctx, in, outcome)
		result.DeliverableURL = handoff.URL
		result.DeliverableData = handoff.Data
		if !handoff.Success && handoff.ErrorMessage != "" {
			result.Answer = outcome.Answer + "\n\nNote: deliverable creation failed: " + handoff.ErrorMessage
		}
	}

	finishTurn(ctx, in, sess, result, outcome, canonical, summary, compacted, startedAt)

	status.Phase = PhaseCompleted
	return result, nil
}

// runHandoff executes the deliverable hand-off with a longer timeout.
// Failures come back in the result, never as an error.
func runHandoff(ctx workflow.Context, in TurnInput, outcome turnOutcome) activities.DeliverableResult {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	}
	hctx := workflow.WithActivityOptions(ctx, opts)

	var handoff activities.DeliverableResult
	err := workflow.ExecuteActivity(hctx, ActivityCreateDeliverable, activities.DeliverableInput{
		SessionID:       in.SessionID,
		Query:           in.Query,
		AnswerText:      outcome.Answer,
		Citations:       outcome.Citations,
		ResultsBySource: resultsBySource(outcome.Answers),
	}).Get(ctx, &handoff)
	if err != nil {
		workflow.GetLogger(ctx).Error("Deliverable hand-off activity failed", "error", err)
		return activities.DeliverableResult{ErrorMessage: err.Error()}
	}
	return handoff
}

// deliverableOnlyTurn skips research entirely and hands off the results the
// session already holds.
func deliverableOnlyTurn(ctx workflow.Context, lightCtx workflow.Context, in TurnInput, sess session.Session, status *TurnStatus, startedAt time.Time) (TurnResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Deliverable-only turn", "session_id", sess.ID)

	answerText := lastAssistantMessage(sess.Transcript)
	outcome := turnOutcome{
		Answer:    answerText,
		Answers:   sess.Answers,
		Citations: sess.Citations,
		Sources:   sess.SelectedSources,
	}

	result := TurnResult{
		SessionID: sess.ID,
		Answer:    answerText,
		Sources:   sess.SelectedSources,
		Citations: sess.Citations,
	}

	status.Phase = PhaseHandoff
	handoff := runHandoff(ctx, in, outcome)
	result.DeliverableURL = handoff.URL
	result.DeliverableData = handoff.Data
	if !handoff.Success {
		result.Degraded = true
		if handoff.ErrorMessage != "" {
			result.Answer = "Deliverable creation failed: " + handoff.ErrorMessage
		}
	}

	if err := workflow.ExecuteActivity(lightCtx, ActivityUpdateSession, activities.SessionUpdateInput{
		SessionID:       sess.ID,
		DeliverableURL:  handoff.URL,
		DeliverableData: handoff.Data,
	}).Get(ctx, nil); err != nil {
		logger.Warn("Session update failed after hand-off", "error", err)
	}

	persistTurnRecord(ctx, lightCtx, in, sess, result, "deliverable", startedAt)

	status.Phase = PhaseCompleted
	return result, nil
}

// finishTurn persists the turn outcome: session state first, then the
// best-effort database record.
func finishTurn(ctx workflow.Context, in TurnInput, sess session.Session, result TurnResult, outcome turnOutcome, canonicalQuery, summary string, compacted bool, startedAt time.Time) {
	logger := workflow.GetLogger(ctx)

	lightOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	lightCtx := workflow.WithActivityOptions(ctx, lightOpts)

	if err := workflow.ExecuteActivity(lightCtx, ActivityUpdateSession, activities.SessionUpdateInput{
		SessionID:       sess.ID,
		Query:           in.Query,
		Answer:          result.Answer,
		Summary:         summary,
		RewrittenQuery:  canonicalQuery,
		CompactHistory:  compacted,
		ClearResults:    outcome.AllFailed,
		SelectedSources: outcome.Sources,
		Answers:         outcome.Answers,
		Citations:       outcome.Citations,
		ResultsBySource: resultsBySource(outcome.Answers),
		DeliverableURL:  result.DeliverableURL,
		DeliverableData: result.DeliverableData,
	}).Get(ctx, nil); err != nil {
		logger.Warn("Session update failed", "error", err)
	}

	persistTurnRecord(ctx, lightCtx, in, sess, result, "research", startedAt)
}

// persistTurnRecord writes the turn row; failures are logged only.
func persistTurnRecord(ctx workflow.Context, lightCtx workflow.Context, in TurnInput, sess session.Session, result TurnResult, turnType string, startedAt time.Time) {
	status := "completed"
	if result.Degraded {
		status = "degraded"
	}

	var turnID string
	if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		return newTurnID()
	}).Get(&turnID); err != nil {
		workflow.GetLogger(ctx).Warn("Turn ID side effect failed", "error", err)
		return
	}

	if err := workflow.ExecuteActivity(lightCtx, ActivityPersistTurn, activities.TurnPersistInput{
		TurnID:     turnID,
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		Query:      in.Query,
		Answer:     result.Answer,
		Sources:    result.Sources,
		Citations:  result.Citations,
		TurnType:   turnType,
		Status:     status,
		DurationMS: workflow.Now(ctx).Sub(startedAt).Milliseconds(),
	}).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("Turn persistence failed", "error", err)
	}
}

// lastAssistantMessage returns the most recent assistant entry, if any.
func lastAssistantMessage(transcript []session.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == session.RoleAssistant {
			return transcript[i].Content
		}
	}
	return ""
}
