package specialists

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/verity-labs/research-orchestrator/internal/citations"
	"github.com/verity-labs/research-orchestrator/internal/llm"
)

// ParseFunc converts one structured tool-result item into a citation.
// Returning (nil, nil) means the item carries nothing citable.
type ParseFunc func(toolName string, args map[string]interface{}, item map[string]interface{}) (*citations.Citation, error)

// Specialist binds one source type to its system instruction, tool set, and
// citation parser.
type Specialist struct {
	ID            string
	SystemPrompt  string
	Tools         []llm.ToolSpec
	ParseCitation ParseFunc
}

// Registry is an immutable mapping from specialist identifier to its
// definition. It is constructed once at startup and threaded through as a
// value; nothing mutates it afterwards.
type Registry struct {
	byID  map[string]Specialist
	order []string
}

// Get looks up a specialist by identifier.
func (r *Registry) Get(id string) (Specialist, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// IDs returns the registered identifiers in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Config is the on-disk registry definition.
type Config struct {
	Specialists []SpecialistConfig `yaml:"specialists"`
}

// SpecialistConfig defines one specialist in the config file.
type SpecialistConfig struct {
	ID           string       `yaml:"id"`
	SystemPrompt string       `yaml:"system_prompt"`
	Tools        []ToolConfig `yaml:"tools"`
}

// ToolConfig describes one tool exposed to a specialist.
type ToolConfig struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Parameters  map[string]interface{} `yaml:"parameters"`
}

// ConfigPath returns the registry config path, checking the env var first.
func ConfigPath() string {
	if p := os.Getenv("SPECIALISTS_CONFIG"); p != "" {
		return p
	}
	return "config/specialists.yaml"
}

// LoadConfig reads the registry definition from path, falling back to the
// built-in defaults when the file is missing or malformed.
func LoadConfig(path string, logger *zap.Logger) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Specialists config unavailable, using defaults",
			zap.String("path", path), zap.Error(err))
		return defaultConfig()
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("Specialists config malformed, using defaults",
			zap.String("path", path), zap.Error(err))
		return defaultConfig()
	}
	if len(cfg.Specialists) == 0 {
		return defaultConfig()
	}
	return cfg
}

// NewRegistry builds the registry from a config. Entries with unknown
// identifiers are skipped with a warning; a parser exists only for the fixed
// source set.
func NewRegistry(cfg Config, logger *zap.Logger) (*Registry, error) {
	r := &Registry{byID: make(map[string]Specialist)}
	for _, sc := range cfg.Specialists {
		parser, ok := parserFor(sc.ID)
		if !ok {
			logger.Warn("Skipping unknown specialist in config", zap.String("id", sc.ID))
			continue
		}
		if _, dup := r.byID[sc.ID]; dup {
			return nil, fmt.Errorf("duplicate specialist %q in config", sc.ID)
		}
		tools := make([]llm.ToolSpec, 0, len(sc.Tools))
		for _, tc := range sc.Tools {
			tools = append(tools, llm.ToolSpec{
				Name:        tc.Name,
				Description: tc.Description,
				Parameters:  tc.Parameters,
			})
		}
		r.byID[sc.ID] = Specialist{
			ID:            sc.ID,
			SystemPrompt:  sc.SystemPrompt,
			Tools:         tools,
			ParseCitation: parser,
		}
		r.order = append(r.order, sc.ID)
	}
	if len(r.byID) == 0 {
		return nil, fmt.Errorf("no usable specialists in config")
	}
	return r, nil
}

func parserFor(id string) (ParseFunc, bool) {
	switch id {
	case citations.SourceAcademic:
		return ParseAcademic, true
	case citations.SourceVideo:
		return ParseVideo, true
	case citations.SourceRepository:
		return ParseRepository, true
	case citations.SourceWeb:
		return ParseWeb, true
	case citations.SourceLocal:
		return ParseLocal, true
	}
	return nil, false
}

func defaultConfig() Config {
	return Config{Specialists: []SpecialistConfig{
		{
			ID:           citations.SourceAcademic,
			SystemPrompt: "You are an academic research specialist. Search for peer-reviewed papers relevant to the question and summarize their findings with paper identifiers.",
			Tools: []ToolConfig{
				{Name: "search_papers", Description: "Search academic papers by keyword"},
				{Name: "fetch_paper", Description: "Fetch details for one paper by id"},
			},
		},
		{
			ID:           citations.SourceVideo,
			SystemPrompt: "You are a video research specialist. Find relevant videos and use their transcripts to answer the question.",
			Tools: []ToolConfig{
				{Name: "search_videos", Description: "Search videos by keyword"},
				{Name: "fetch_transcript", Description: "Fetch the transcript for one video"},
			},
		},
		{
			ID:           citations.SourceRepository,
			SystemPrompt: "You are a code repository specialist. Find relevant repositories and describe how their code relates to the question.",
			Tools: []ToolConfig{
				{Name: "search_repositories", Description: "Search repositories by keyword"},
				{Name: "fetch_repository", Description: "Fetch details for one repository"},
			},
		},
		{
			ID:           citations.SourceWeb,
			SystemPrompt: "You are a web research specialist. Search the web and answer from reputable pages.",
			Tools: []ToolConfig{
				{Name: "search_web", Description: "Search the web by keyword"},
			},
		},
		{
			ID:           citations.SourceLocal,
			SystemPrompt: "You are a local document specialist. Answer from the user's indexed documents.",
			Tools: []ToolConfig{
				{Name: "search_documents", Description: "Search locally indexed documents"},
			},
		},
	}}
}
