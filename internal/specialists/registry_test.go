package specialists

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/verity-labs/research-orchestrator/internal/citations"
)

func TestDefaultRegistryCoversAllSources(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg, err := NewRegistry(LoadConfig("does-not-exist.yaml", logger), logger)
	require.NoError(t, err)

	for _, id := range citations.KnownSources {
		s, ok := reg.Get(id)
		require.True(t, ok, "missing specialist %q", id)
		assert.NotEmpty(t, s.SystemPrompt)
		assert.NotEmpty(t, s.Tools)
		assert.NotNil(t, s.ParseCitation)
	}
}

func TestUnknownSpecialistSkipped(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := Config{Specialists: []SpecialistConfig{
		{ID: "web", SystemPrompt: "p", Tools: []ToolConfig{{Name: "search_web"}}},
		{ID: "carrier-pigeon", SystemPrompt: "p"},
	}}

	reg, err := NewRegistry(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, reg.IDs())
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specialists.yaml")
	content := `specialists:
  - id: academic
    system_prompt: find papers
    tools:
      - name: search_papers
        description: search
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	logger := zaptest.NewLogger(t)
	cfg := LoadConfig(path, logger)
	require.Len(t, cfg.Specialists, 1)
	assert.Equal(t, "academic", cfg.Specialists[0].ID)

	reg, err := NewRegistry(cfg, logger)
	require.NoError(t, err)
	_, ok := reg.Get("academic")
	assert.True(t, ok)
}

func TestDuplicateSpecialistRejected(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := Config{Specialists: []SpecialistConfig{
		{ID: "web"},
		{ID: "web"},
	}}
	_, err := NewRegistry(cfg, logger)
	assert.Error(t, err)
}
