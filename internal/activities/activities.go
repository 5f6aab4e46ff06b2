package activities

import (
	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/config"
	"github.com/verity-labs/research-orchestrator/internal/db"
	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/session"
	"github.com/verity-labs/research-orchestrator/internal/specialists"
)

// Activities holds dependencies shared by all activity implementations.
type Activities struct {
	sessionManager *session.Manager
	cache          *session.ResearchCache
	registry       *specialists.Registry
	llmClient      *llm.Client
	toolClient     *ToolClient
	dbClient       *db.Client // optional; nil disables turn persistence
	cfg            func() *config.Research
	logger         *zap.Logger
}

// NewActivities creates the activities instance with its dependencies.
// cfg returns the current config snapshot so hot-reloaded tunables apply to
// in-flight turns.
func NewActivities(
	sessionManager *session.Manager,
	cache *session.ResearchCache,
	registry *specialists.Registry,
	llmClient *llm.Client,
	toolClient *ToolClient,
	dbClient *db.Client,
	cfg func() *config.Research,
	logger *zap.Logger,
) *Activities {
	if cfg == nil {
		cfg = func() *config.Research { return nil }
	}
	return &Activities{
		sessionManager: sessionManager,
		cache:          cache,
		registry:       registry,
		llmClient:      llmClient,
		toolClient:     toolClient,
		dbClient:       dbClient,
		cfg:            cfg,
		logger:         logger,
	}
}

// enabledSources maps specialist id to its config enable flag.
func (a *Activities) enabledSources() map[string]bool {
	cfg := a.cfg()
	if cfg == nil || cfg.Specialists.Enabled == nil {
		return nil
	}
	return cfg.Specialists.Enabled
}
