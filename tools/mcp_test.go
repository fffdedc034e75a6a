package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/swarmcore/config"
)

func TestNewMCPToolRepository_RequiresURLOrCommand(t *testing.T) {
	_, err := NewMCPToolRepository(config.ToolRepositoryConfig{Name: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs either url or command")
}

func TestNewMCPToolRepository_StdioTransport(t *testing.T) {
	repo, err := NewMCPToolRepository(config.ToolRepositoryConfig{
		Name: "local-mcp", Command: "/bin/echo", Args: []string{"hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "local-mcp", repo.GetName())
	assert.Equal(t, "mcp", repo.GetType())
	assert.Empty(t, repo.ListTools(), "tools aren't populated until DiscoverTools runs")
}
