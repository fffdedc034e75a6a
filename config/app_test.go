package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppConfig_DefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
llms:
  default:
    type: openai
    model: gpt-4o-mini
    api_key: ${TEST_API_KEY}
execution:
  max_concurrent: 8
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := LoadAppConfig(path)
	require.NoError(t, err)

	llm := cfg.LLMs["default"]
	assert.Equal(t, "sk-test-123", llm.APIKey)
	assert.Equal(t, 0.7, llm.Temperature, "provider default applied")
	assert.Equal(t, int64(8), cfg.Execution.MaxConcurrent)
	assert.Equal(t, "majority_vote", cfg.Execution.AggregationStrategy, "execution default applied")
	assert.Equal(t, 6.0, cfg.Quality.Threshold)
	assert.Equal(t, 120*time.Second, cfg.Execution.AgentTimeout(), "agent_timeout default applied")
}

func TestLoadAppConfig_RequiresAtLeastOneLLM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  repositories: []\n"), 0644))

	_, err := LoadAppConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one llm provider")
}

func TestLoadAppConfig_MissingFile(t *testing.T) {
	_, err := LoadAppConfig("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
