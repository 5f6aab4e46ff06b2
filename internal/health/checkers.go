package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChecker probes the session store. Sessions live in Redis, so this is
// a critical dependency.
type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string   { return "redis" }
func (r *RedisChecker) Critical() bool { return true }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return CheckResult{Status: StatusHealthy}
}

// Pinger is satisfied by the turn-history database client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker probes turn-history persistence. Persistence is best-effort,
// so a down database degrades rather than fails readiness.
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (d *DatabaseChecker) Name() string   { return "database" }
func (d *DatabaseChecker) Critical() bool { return false }

func (d *DatabaseChecker) Check(ctx context.Context) CheckResult {
	if err := d.db.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return CheckResult{Status: StatusHealthy}
}

// ServiceChecker probes a dependent HTTP service's /health endpoint.
type ServiceChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewServiceChecker(name, baseURL string, critical bool) *ServiceChecker {
	return &ServiceChecker{
		name:     name,
		url:      baseURL + "/health",
		critical: critical,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *ServiceChecker) Name() string   { return s.name }
func (s *ServiceChecker) Critical() bool { return s.critical }

func (s *ServiceChecker) Check(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("unreachable: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return CheckResult{Status: StatusHealthy}
}

// CheckFunc adapts a bare function into a Checker.
type CheckFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) error
}

func NewCheckFunc(name string, critical bool, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, critical: critical, fn: fn}
}

func (c *CheckFunc) Name() string   { return c.name }
func (c *CheckFunc) Critical() bool { return c.critical }

func (c *CheckFunc) Check(ctx context.Context) CheckResult {
	if err := c.fn(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
