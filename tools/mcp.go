package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/swarmcore/config"
)

// ============================================================================
// MCP TOOL REPOSITORY: a second tool source type alongside "local", letting
// externally hosted tools (Model Context Protocol servers) register into the
// same Tool Registry the sandbox tools use.
// ============================================================================

type MCPToolRepository struct {
	name   string
	client *client.Client
	tools  map[string]Tool
}

func NewMCPToolRepository(repoConfig config.ToolRepositoryConfig) (*MCPToolRepository, error) {
	var mcpClient *client.Client
	var err error

	switch {
	case repoConfig.URL != "":
		mcpClient, err = client.NewSSEMCPClient(repoConfig.URL)
	case repoConfig.Command != "":
		mcpClient, err = client.NewStdioMCPClient(repoConfig.Command, nil, repoConfig.Args...)
	default:
		return nil, fmt.Errorf("mcp repository %q needs either url or command", repoConfig.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp client: %w", err)
	}

	return &MCPToolRepository{name: repoConfig.Name, client: mcpClient, tools: make(map[string]Tool)}, nil
}

func (r *MCPToolRepository) GetName() string { return r.name }
func (r *MCPToolRepository) GetType() string { return "mcp" }

func (r *MCPToolRepository) DiscoverTools(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.client.Start(initCtx); err != nil {
		return fmt.Errorf("failed to start mcp client: %w", err)
	}
	if _, err := r.client.Initialize(initCtx, mcp.InitializeRequest{}); err != nil {
		return fmt.Errorf("failed to initialize mcp session: %w", err)
	}

	result, err := r.client.ListTools(initCtx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list mcp tools: %w", err)
	}

	r.tools = make(map[string]Tool, len(result.Tools))
	for _, def := range result.Tools {
		r.tools[def.Name] = &mcpTool{repo: r, def: def}
	}
	return nil
}

func (r *MCPToolRepository) ListTools() []ToolInfo {
	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, t.GetInfo())
	}
	return infos
}

func (r *MCPToolRepository) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// mcpTool adapts one remote MCP tool definition to the local Tool interface.
type mcpTool struct {
	repo *MCPToolRepository
	def  mcp.Tool
}

func (t *mcpTool) GetInfo() ToolInfo {
	return ToolInfo{Name: t.def.Name, Description: t.def.Description, ServerURL: t.repo.name}
}

func (t *mcpTool) GetName() string        { return t.def.Name }
func (t *mcpTool) GetDescription() string { return t.def.Description }

func (t *mcpTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	req := mcp.CallToolRequest{}
	req.Params.Name = t.def.Name
	req.Params.Arguments = args

	result, err := t.repo.client.CallTool(ctx, req)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error(), ToolName: t.def.Name, ExecutionTime: time.Since(start)}, err
	}

	var content string
	for _, c := range result.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			content += tc.Text
		}
	}

	return ToolResult{
		Success:       !result.IsError,
		Content:       content,
		ToolName:      t.def.Name,
		ExecutionTime: time.Since(start),
	}, nil
}
