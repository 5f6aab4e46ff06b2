package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/verity-labs/research-orchestrator/internal/activities"
	"github.com/verity-labs/research-orchestrator/internal/intent"
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// Activity names as registered on the worker.
const (
	ActivityGetSessionState   = "GetSessionState"
	ActivitySummarize         = "SummarizeConversation"
	ActivityRewrite           = "RewriteQuery"
	ActivityClassifyIntent    = "ClassifyIntent"
	ActivityExecuteTask       = "ExecuteSpecialistTask"
	ActivitySynthesize        = "SynthesizeAnswer"
	ActivityFetchCache        = "FetchCachedResults"
	ActivityStoreCache        = "StoreCachedResults"
	ActivityUpdateSession     = "UpdateSessionResult"
	ActivityPersistTurn       = "PersistTurn"
	ActivityCreateDeliverable = "CreateDeliverable"
)

// dispatchResearchTasks fans one task per (source, query) pair out to the
// specialist executor with bounded concurrency, short-circuiting sources that
// already have a cached answer for the primary query. Results come back in
// task order regardless of completion order.
func dispatchResearchTasks(
	ctx workflow.Context,
	in TurnInput,
	sources []string,
	queries []string,
	cached map[string]session.CachedResult,
	maxConcurrency int,
	status *TurnStatus,
) []activities.TaskResult {
	logger := workflow.GetLogger(ctx)

	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}

	var results []activities.TaskResult
	type taskSlot struct {
		input activities.TaskInput
	}
	var tasks []taskSlot

	for _, source := range sources {
		if hit, ok := cached[source]; ok {
			// A cached answer covers the whole source for this turn.
			results = append(results, activities.TaskResult{
				Source:    source,
				Question:  queries[0],
				Answer:    hit.Answer,
				Citations: hit.Citations,
				Success:   true,
				Cached:    true,
			})
			continue
		}
		for qi, q := range queries {
			tasks = append(tasks, taskSlot{input: activities.TaskInput{
				Source:    source,
				Question:  q,
				Index:     qi,
				SessionID: in.SessionID,
			}})
		}
	}

	// Absolute floor: with no tasks and no cached hits the turn would end
	// with nothing tried, so fall back to the default source pair.
	if len(tasks) == 0 && len(results) == 0 {
		for _, source := range intent.DefaultPair() {
			for qi, q := range queries {
				tasks = append(tasks, taskSlot{input: activities.TaskInput{
					Source:    source,
					Question:  q,
					Index:     qi,
					SessionID: in.SessionID,
				}})
			}
		}
	}

	status.TasksDispatched = len(tasks)
	status.TasksCompleted = len(results)

	if len(tasks) == 0 {
		return results
	}

	logger.Info("Dispatching research tasks",
		"task_count", len(tasks),
		"cached_sources", len(results),
		"max_concurrency", maxConcurrency)

	activityOpts := workflow.ActivityOptions{
		StartToCloseTimeout: taskTimeout(in.TaskTimeoutSeconds),
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	actx := workflow.WithActivityOptions(ctx, activityOpts)

	sem := workflow.NewSemaphore(ctx, int64(maxConcurrency))
	futuresChan := workflow.NewChannel(ctx)

	type futureWithIndex struct {
		Index   int
		Future  workflow.Future
		Release workflow.Channel
	}

	for i, task := range tasks {
		i := i
		task := task
		workflow.Go(ctx, func(gctx workflow.Context) {
			if err := sem.Acquire(gctx, 1); err != nil {
				logger.Error("Failed to acquire task slot",
					"source", task.input.Source, "error", err)
				futuresChan.Send(gctx, futureWithIndex{Index: i})
				return
			}
			rel := workflow.NewChannel(gctx)
			future := workflow.ExecuteActivity(actx, ActivityExecuteTask, task.input)
			futuresChan.Send(gctx, futureWithIndex{Index: i, Future: future, Release: rel})

			// Hold the permit until the collector has consumed the result.
			var sig struct{}
			rel.Receive(gctx, &sig)
			sem.Release(1)
		})
	}

	taskResults := make([]activities.TaskResult, len(tasks))
	sel := workflow.NewSelector(ctx)
	received := 0
	processed := 0

	sel.AddReceive(futuresChan, func(c workflow.ReceiveChannel, more bool) {
		var fwi futureWithIndex
		c.Receive(ctx, &fwi)
		received++
		if fwi.Future == nil {
			taskResults[fwi.Index] = failedTaskResult(tasks[fwi.Index].input, "task slot unavailable")
			processed++
			return
		}
		sel.AddFuture(fwi.Future, func(f workflow.Future) {
			var r activities.TaskResult
			if err := f.Get(ctx, &r); err != nil {
				logger.Error("Specialist task failed",
					"source", tasks[fwi.Index].input.Source, "error", err)
				r = failedTaskResult(tasks[fwi.Index].input, err.Error())
			}
			taskResults[fwi.Index] = r
			processed++
			status.TasksCompleted++
			var sig struct{}
			fwi.Release.Send(ctx, sig)
		})
	})

	for processed < len(tasks) {
		sel.Select(ctx)
	}

	return append(results, taskResults...)
}

// taskTimeout converts the configured per-task timeout, falling back to the
// default when unset.
func taskTimeout(seconds int) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 5 * time.Minute
}

// failedTaskResult folds a scheduling or activity failure into the shape the
// aggregator expects.
func failedTaskResult(in activities.TaskInput, reason string) activities.TaskResult {
	return activities.TaskResult{
		Source:       in.Source,
		Question:     in.Question,
		Index:        in.Index,
		Answer:       activities.NoAnswerSentinel,
		ErrorMessage: reason,
	}
}
