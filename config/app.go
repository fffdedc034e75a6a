// Package config provides configuration types and utilities for the orchestration engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QualityGateConfig mirrors quality.Config's shape so it can be loaded from
// YAML without the config package importing the quality package.
type QualityGateConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Threshold         float64 `yaml:"threshold"`
	MaxRetryOnFailure int     `yaml:"max_retry_on_failure"`
}

// ExecutionConfig tunes the Wave Executor and Aggregator for one job run.
type ExecutionConfig struct {
	MaxConcurrent       int64  `yaml:"max_concurrent"`
	AggregationStrategy string `yaml:"aggregation_strategy"` // first_wins | last_wins | majority_vote | manual
	OutputType          string `yaml:"output_type"`          // report | code | composite

	// AgentTimeoutSeconds is the outer cap over all of a worker's
	// iterations for one sub-task (§4.4 agent_timeout); zero means the
	// default below.
	AgentTimeoutSeconds int `yaml:"agent_timeout_seconds"`
}

func (c *ExecutionConfig) SetDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 4
	}
	if c.AggregationStrategy == "" {
		c.AggregationStrategy = "majority_vote"
	}
	if c.OutputType == "" {
		c.OutputType = "report"
	}
	if c.AgentTimeoutSeconds == 0 {
		c.AgentTimeoutSeconds = 120
	}
}

// AgentTimeout returns the configured per-worker outer timeout as a
// time.Duration.
func (c *ExecutionConfig) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// ObservabilityConfig toggles the ambient metrics/tracing stack; both are
// disabled by default so a plain `orchestrator run` stays dependency-light.
type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.OTLPEndpoint == "" {
		c.OTLPEndpoint = "localhost:4317"
	}
	if c.ServiceName == "" {
		c.ServiceName = "swarmcore-orchestrator"
	}
}

// AppConfig is the root YAML document the orchestrator CLI loads: one or
// more named LLM providers, a tool registry configuration, the quality gate,
// and execution knobs (§10 Ambient Stack, config layer).
type AppConfig struct {
	LLMs          map[string]LLMProviderConfig `yaml:"llms"`
	Tools         ToolConfigs                  `yaml:"tools"`
	Quality       QualityGateConfig            `yaml:"quality"`
	Execution     ExecutionConfig              `yaml:"execution"`
	Observability ObservabilityConfig          `yaml:"observability"`
}

func (c *AppConfig) SetDefaults() {
	for name, llm := range c.LLMs {
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
	c.Tools.SetDefaults()
	c.Execution.SetDefaults()
	c.Observability.SetDefaults()
	if c.Quality.Threshold == 0 {
		c.Quality.Threshold = 6.0
	}
	if c.Quality.MaxRetryOnFailure == 0 {
		c.Quality.MaxRetryOnFailure = 2
	}
}

func (c *AppConfig) Validate() error {
	if len(c.LLMs) == 0 {
		return fmt.Errorf("at least one llm provider must be configured")
	}
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}
	return nil
}

// LoadAppConfig reads, env-expands, and validates a YAML config file.
func LoadAppConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var asMap map[string]interface{}
	if err := yaml.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	expanded := ExpandEnvVarsInData(asMap)

	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode expanded config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(reencoded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
