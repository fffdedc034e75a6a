// Package config provides configuration types and utilities for the orchestration engine.
package config

import "fmt"

// LLMProviderConfig configures a single LLM provider instance (Anthropic, OpenAI,
// Ollama, or Gemini). One config drives one provider; the orchestrator may hold
// several, one per distinct model a role wants to use.
type LLMProviderConfig struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Host        string  `yaml:"host"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds
	MaxRetries  int     `yaml:"max_retries"`
	RetryDelay  int     `yaml:"retry_delay"` // seconds, base delay
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

func (c *LLMProviderConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("llm provider type is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.Type != "ollama" && c.APIKey == "" {
		return fmt.Errorf("api key is required for provider %q", c.Type)
	}
	return nil
}
