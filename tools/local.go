package tools

import (
	"context"
	"time"

	"github.com/kadirpekel/swarmcore/config"
)

// ============================================================================
// LOCAL TOOL REPOSITORY: the built-in in-process tool source, registering
// the two sandbox tools that compensate for non-native models (§4.3).
// ============================================================================

type LocalToolRepository struct {
	name  string
	tools map[string]Tool
}

func NewLocalToolRepository(repoConfig config.ToolRepositoryConfig, toolConfig *config.ToolConfigs) *LocalToolRepository {
	name := repoConfig.Name
	if name == "" {
		name = "local"
	}

	searchTimeout := time.Duration(toolConfig.FetchTimeoutSeconds) * time.Second
	codeTimeout := time.Duration(toolConfig.CodeTimeoutSeconds) * time.Second

	return &LocalToolRepository{
		name: name,
		tools: map[string]Tool{
			"sandbox_browser":           NewSandboxBrowserTool(searchTimeout),
			"sandbox_code_interpreter": NewSandboxCodeInterpreterTool(codeTimeout),
		},
	}
}

func (r *LocalToolRepository) GetName() string { return r.name }
func (r *LocalToolRepository) GetType() string { return "local" }

func (r *LocalToolRepository) DiscoverTools(ctx context.Context) error {
	return nil // tools are registered statically at construction
}

func (r *LocalToolRepository) ListTools() []ToolInfo {
	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, t.GetInfo())
	}
	return infos
}

func (r *LocalToolRepository) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}
