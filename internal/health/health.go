// Package health aggregates dependency probes for the orchestrator's
// readiness and liveness endpoints.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome of a single probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult carries the outcome of one dependency probe.
type CheckResult struct {
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`
}

// Checker probes a single dependency.
type Checker interface {
	Name() string
	// Critical dependencies gate readiness; non-critical ones only degrade it.
	Critical() bool
	Check(ctx context.Context) CheckResult
}

// Manager runs registered checkers and summarizes the results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a manager with a per-check timeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{timeout: timeout}
}

// Register adds a checker. Safe to call before the servers start.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Report holds the aggregate status plus per-component results.
type Report struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components"`
}

// Check runs every checker concurrently and aggregates. A failing critical
// checker makes the whole report unhealthy; a failing non-critical one only
// degrades it.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	type outcome struct {
		name     string
		critical bool
		result   CheckResult
	}

	results := make(chan outcome, len(checkers))
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			start := time.Now()
			res := c.Check(cctx)
			res.Latency = time.Since(start)
			results <- outcome{name: c.Name(), critical: c.Critical(), result: res}
		}(c)
	}
	wg.Wait()
	close(results)

	report := Report{Status: StatusHealthy, Components: make(map[string]CheckResult, len(checkers))}
	for o := range results {
		report.Components[o.name] = o.result
		if o.result.Status == StatusHealthy {
			continue
		}
		if o.critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

// Ready reports whether all critical dependencies are reachable.
func (m *Manager) Ready(ctx context.Context) bool {
	return m.Check(ctx).Status != StatusUnhealthy
}
