package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Turn metrics
	TurnsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_turns_started_total",
			Help: "Total number of research turns started",
		},
		[]string{"turn_type"},
	)

	TurnsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_turns_completed_total",
			Help: "Total number of research turns completed",
		},
		[]string{"turn_type", "status"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_turn_duration_seconds",
			Help:    "End-to-end turn duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClarificationsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_clarifications_requested_total",
			Help: "Turns that suspended waiting for a clarification answer",
		},
	)

	// Task metrics
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_tasks_dispatched_total",
			Help: "Specialist tasks dispatched by the fan-out",
		},
		[]string{"source"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_tasks_completed_total",
			Help: "Specialist tasks completed",
		},
		[]string{"source", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_task_duration_seconds",
			Help:    "Specialist task duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_tool_calls_total",
			Help: "Tool invocations made inside specialist tasks",
		},
		[]string{"source", "tool"},
	)

	ToolCallCapReached = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_tool_call_cap_reached_total",
			Help: "Tasks that hit the tool-call budget and forced a final answer",
		},
		[]string{"source"},
	)

	// Citation metrics
	CitationsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_citations_extracted_total",
			Help: "Citations extracted from tool results",
		},
		[]string{"source"},
	)

	CitationsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_citations_filtered_total",
			Help: "Citations dropped by the relevance filter",
		},
	)

	CitationsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_citations_deduplicated_total",
			Help: "Citations removed as duplicates during aggregation",
		},
	)

	// Research cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_cache_hits_total",
			Help: "Research cache hits by source",
		},
		[]string{"source"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_cache_misses_total",
			Help: "Research cache misses by source",
		},
		[]string{"source"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_sessions_created_total",
			Help: "Sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_session_cache_hits_total",
			Help: "Session reads served from the local cache",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_session_cache_misses_total",
			Help: "Session reads that fell through to Redis",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "research_active_sessions",
			Help: "Sessions currently held in the local cache",
		},
	)

	// Synthesis and hand-off
	SynthesisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_synthesis_duration_seconds",
			Help:    "Synthesis call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SynthesisErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_synthesis_errors_total",
			Help: "Synthesis calls that fell back to a degraded answer",
		},
	)

	DeliverablesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_deliverables_created_total",
			Help: "Deliverable hand-off attempts",
		},
		[]string{"status"},
	)
)
