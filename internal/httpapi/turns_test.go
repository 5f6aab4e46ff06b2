package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap/zaptest"

	"github.com/verity-labs/research-orchestrator/internal/config"
	"github.com/verity-labs/research-orchestrator/internal/db"
	"github.com/verity-labs/research-orchestrator/internal/workflows"
)

func newTestMux(t *testing.T, temporal *mocks.Client) *http.ServeMux {
	t.Helper()
	handler := NewTurnHandler(temporal, nil, nil, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func TestStartTurn(t *testing.T) {
	mockClient := &mocks.Client{}
	mockRun := &mocks.WorkflowRun{}
	mockRun.On("GetID").Return("research-turn-abc")
	mockRun.On("GetRunID").Return("run-1")

	mockClient.On("ExecuteWorkflow",
		mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(in workflows.TurnInput) bool {
			return in.Query == "transformer neural networks" && in.SessionID == "sess-1"
		}),
	).Return(mockRun, nil)

	mux := newTestMux(t, mockClient)

	req := httptest.NewRequest(http.MethodPost, "/research/turns",
		strings.NewReader(`{"session_id":"sess-1","user_id":"user-a","query":"transformer neural networks"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"workflow_id":"research-turn-abc"`)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
	mockClient.AssertExpectations(t)
}

func TestStartTurnRequiresQuery(t *testing.T) {
	mux := newTestMux(t, &mocks.Client{})

	req := httptest.NewRequest(http.MethodPost, "/research/turns",
		strings.NewReader(`{"session_id":"sess-1","user_id":"user-a"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartTurnDeliverableOnlyWithoutQuery(t *testing.T) {
	mockClient := &mocks.Client{}
	mockRun := &mocks.WorkflowRun{}
	mockRun.On("GetID").Return("research-turn-xyz")
	mockRun.On("GetRunID").Return("run-2")

	mockClient.On("ExecuteWorkflow",
		mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(in workflows.TurnInput) bool {
			return in.DeliverableOnly && in.Query == ""
		}),
	).Return(mockRun, nil)

	mux := newTestMux(t, mockClient)

	req := httptest.NewRequest(http.MethodPost, "/research/turns",
		strings.NewReader(`{"session_id":"sess-1","user_id":"user-a","deliverable_only":true,"create_deliverable":true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockClient.AssertExpectations(t)
}

func TestStartTurnThreadsDispatchConfig(t *testing.T) {
	mockClient := &mocks.Client{}
	mockRun := &mocks.WorkflowRun{}
	mockRun.On("GetID").Return("research-turn-cfg")
	mockRun.On("GetRunID").Return("run-3")

	mockClient.On("ExecuteWorkflow",
		mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(in workflows.TurnInput) bool {
			return in.MaxConcurrency == 3 && in.TaskTimeoutSeconds == 120
		}),
	).Return(mockRun, nil)

	cfg := &config.Research{}
	cfg.Dispatch.MaxConcurrency = 3
	cfg.Dispatch.TaskTimeoutSeconds = 120

	handler := NewTurnHandler(mockClient, nil, func() *config.Research { return cfg }, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/research/turns",
		strings.NewReader(`{"session_id":"sess-1","user_id":"user-a","query":"anything"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	mockClient.AssertExpectations(t)
}

func TestTurnHistory(t *testing.T) {
	raw, dbmock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	history := db.NewClientWithDB(raw, zaptest.NewLogger(t))

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "user_id", "query", "answer", "sources",
		"citation_count", "turn_type", "status", "duration_ms", "created_at",
	}).AddRow("turn-1", "sess-1", "user-a", "transformer neural networks", "an answer",
		"{academic,web}", 2, "research", "completed", int64(1200), time.Now())
	dbmock.ExpectQuery("SELECT (.+) FROM research_turns").
		WithArgs("sess-1", 20).
		WillReturnRows(rows)

	handler := NewTurnHandler(&mocks.Client{}, history, nil, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/research/sessions/sess-1/turns", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"query":"transformer neural networks"`)
	assert.Contains(t, rec.Body.String(), `"turn_type":"research"`)
	assert.NoError(t, dbmock.ExpectationsWereMet())
}

func TestTurnHistoryDisabledWithoutDatabase(t *testing.T) {
	mux := newTestMux(t, &mocks.Client{})

	req := httptest.NewRequest(http.MethodGet, "/research/sessions/sess-1/turns", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHumanInputSignalsWorkflow(t *testing.T) {
	mockClient := &mocks.Client{}
	mockClient.On("SignalWorkflow",
		mock.Anything, "research-turn-abc", "",
		workflows.SignalHumanInput,
		workflows.HumanInput{Message: "the Go implementation"},
	).Return(nil)

	mux := newTestMux(t, mockClient)

	req := httptest.NewRequest(http.MethodPost, "/research/turns/research-turn-abc/input",
		strings.NewReader(`{"message":"the Go implementation"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"sent"`)
	mockClient.AssertExpectations(t)
}

func TestHumanInputRequiresMessage(t *testing.T) {
	mux := newTestMux(t, &mocks.Client{})

	req := httptest.NewRequest(http.MethodPost, "/research/turns/research-turn-abc/input",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
