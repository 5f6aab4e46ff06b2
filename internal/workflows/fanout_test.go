package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/verity-labs/research-orchestrator/internal/activities"
)

func TestTaskTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Minute, taskTimeout(0), "unset falls back to the default")
	assert.Equal(t, 5*time.Minute, taskTimeout(-1))
	assert.Equal(t, 90*time.Second, taskTimeout(90))
}

// dispatchBySource runs the dispatcher and reports how many tasks each source
// received.
func dispatchBySource(ctx workflow.Context, sources []string) (map[string]int, error) {
	status := &TurnStatus{}
	results := dispatchResearchTasks(ctx, TurnInput{SessionID: "sess-1"}, sources, []string{"q"}, nil, 2, status)
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Source]++
	}
	return counts, nil
}

func TestDispatchFallsBackToDefaultPair(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.TaskInput) (activities.TaskResult, error) {
		return activities.TaskResult{Source: in.Source, Question: in.Question, Answer: "found", Success: true}, nil
	}, activity.RegisterOptions{Name: ActivityExecuteTask})

	env.ExecuteWorkflow(dispatchBySource, []string{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var counts map[string]int
	require.NoError(t, env.GetWorkflowResult(&counts))
	assert.Equal(t, map[string]int{"local": 1, "web": 1}, counts,
		"empty source set still dispatches the default pair")
}
