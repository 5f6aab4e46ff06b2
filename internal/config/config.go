package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Research is the top-level configuration for the orchestrator. Values come
// from config/research.yaml with env overrides for deploy-time knobs.
type Research struct {
	Session       SessionConfig       `mapstructure:"session"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Specialists   SpecialistsConfig   `mapstructure:"specialists"`
	Deliverable   DeliverableConfig   `mapstructure:"deliverable"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type SessionConfig struct {
	TTLSeconds      int  `mapstructure:"ttl_seconds"`
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`
}

type DispatchConfig struct {
	MaxConcurrency     int `mapstructure:"max_concurrency"`
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
	TurnTimeoutSeconds int `mapstructure:"turn_timeout_seconds"`
}

type SpecialistsConfig struct {
	// Enabled maps specialist id to its enable flag; absent ids default on.
	Enabled map[string]bool `mapstructure:"enabled"`
}

type DeliverableConfig struct {
	ServiceURL string `mapstructure:"service_url"`
}

type ObservabilityConfig struct {
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
	Tracing struct {
		Enabled  bool   `mapstructure:"enabled"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"tracing"`
}

// Path returns the config file path, checking CONFIG_PATH first.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/research.yaml"
}

// Load reads research.yaml. A missing file is not an error; defaults apply.
func Load() (*Research, error) {
	v := viper.New()
	v.SetConfigFile(Path())

	v.SetDefault("session.ttl_seconds", int((24 * time.Hour).Seconds()))
	v.SetDefault("session.cache_enabled", true)
	v.SetDefault("session.cache_ttl_seconds", int((6 * time.Hour).Seconds()))
	v.SetDefault("dispatch.max_concurrency", 5)
	v.SetDefault("dispatch.task_timeout_seconds", 300)
	v.SetDefault("dispatch.turn_timeout_seconds", 900)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 2112)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(Path()); statErr == nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var r Research
	if err := v.Unmarshal(&r); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&r)
	return &r, nil
}

func applyEnvOverrides(r *Research) {
	if p := os.Getenv("METRICS_PORT"); p != "" {
		var port int
		if _, err := fmt.Sscanf(p, "%d", &port); err == nil && port > 0 {
			r.Observability.Metrics.Port = port
		}
	}
	if u := os.Getenv("DELIVERABLE_SERVICE_URL"); u != "" {
		r.Deliverable.ServiceURL = u
	}
	if v := os.Getenv("RESEARCH_CACHE_ENABLED"); v != "" {
		r.Session.CacheEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("MAX_TASK_CONCURRENCY"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			r.Dispatch.MaxConcurrency = n
		}
	}
}

// SpecialistEnabled reports whether a specialist id is enabled. Ids absent
// from the config default to enabled.
func (r *Research) SpecialistEnabled(id string) bool {
	if r == nil || r.Specialists.Enabled == nil {
		return true
	}
	if on, ok := r.Specialists.Enabled[id]; ok {
		return on
	}
	return true
}
