package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kadirpekel/swarmcore/config"
	"github.com/kadirpekel/swarmcore/registry"
)

// ============================================================================
// REGISTRY: TOOL SYSTEM CORE
// ============================================================================

// ToolEntry represents a complete tool entry with all metadata.
type ToolEntry struct {
	Tool           Tool
	Source         ToolSource
	RepositoryType string
	Name           string
}

// ToolRegistryError represents a tool registry error.
type ToolRegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *ToolRegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *ToolRegistryError) Unwrap() error { return e.Err }

func NewToolRegistryError(component, action, message string, err error) *ToolRegistryError {
	return &ToolRegistryError{Component: component, Action: action, Message: message, Err: err}
}

// callRecord is one row of a caller's invocation history, kept for rate
// limiting and auditing per §4.2 of the orchestration spec.
type callRecord struct {
	CallerID string
	ToolName string
	Success  bool
	At       time.Time
}

// ToolRegistry manages multiple tool repositories and provides centralized
// access, invocation timeout enforcement, and call history. It does not
// retry a failed invocation.
type ToolRegistry struct {
	*registry.BaseRegistry[ToolEntry]

	histMu     sync.Mutex
	history    []callRecord
	callsTotal int
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{BaseRegistry: registry.NewBaseRegistry[ToolEntry]()}
}

// NewToolRegistryWithConfig creates a registry and initializes it from config.
func NewToolRegistryWithConfig(toolConfig *config.ToolConfigs) (*ToolRegistry, error) {
	r := NewToolRegistry()
	if toolConfig != nil {
		if err := r.initializeFromConfig(toolConfig); err != nil {
			return nil, fmt.Errorf("failed to initialize tool registry from config: %w", err)
		}
	}
	return r, nil
}

// RegisterRepository adds a tool source to the registry.
func (r *ToolRegistry) RegisterRepository(source ToolSource) error {
	name := source.GetName()
	if name == "" {
		return NewToolRegistryError("ToolRegistry", "RegisterRepository", "repository name cannot be empty", nil)
	}

	if err := source.DiscoverTools(context.Background()); err != nil {
		return NewToolRegistryError("ToolRegistry", "RegisterRepository",
			fmt.Sprintf("failed to discover tools from repository %s", name), err)
	}

	for _, info := range source.ListTools() {
		tool, exists := source.GetTool(info.Name)
		if !exists {
			continue
		}
		entry := ToolEntry{Tool: tool, Source: source, RepositoryType: source.GetType(), Name: info.Name}
		if err := r.Register(info.Name, entry); err != nil {
			return NewToolRegistryError("ToolRegistry", "RegisterRepository",
				fmt.Sprintf("failed to register tool %s", info.Name), err)
		}
	}
	return nil
}

func (r *ToolRegistry) initializeFromConfig(toolConfig *config.ToolConfigs) error {
	toolConfig.SetDefaults()

	for _, repoConfig := range toolConfig.Repositories {
		var source ToolSource
		var err error

		switch repoConfig.Type {
		case "local":
			source = NewLocalToolRepository(repoConfig, toolConfig)
		case "mcp":
			source, err = NewMCPToolRepository(repoConfig)
		default:
			return fmt.Errorf("unsupported repository type: %s", repoConfig.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to create %s repository %q: %w", repoConfig.Type, repoConfig.Name, err)
		}
		if err := r.RegisterRepository(source); err != nil {
			return fmt.Errorf("failed to register repository %q: %w", repoConfig.Name, err)
		}
	}
	return nil
}

func (r *ToolRegistry) GetTool(name string) (Tool, error) {
	entry, exists := r.Get(name)
	if !exists {
		return nil, NewToolRegistryError("ToolRegistry", "GetTool", fmt.Sprintf("tool %s not found", name), nil)
	}
	return entry.Tool, nil
}

func (r *ToolRegistry) ListTools() []ToolInfo {
	var infos []ToolInfo
	for _, entry := range r.List() {
		info := entry.Tool.GetInfo()
		info.ServerURL = entry.Source.GetName()
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// InvokeTool executes a tool by name under the caller-supplied timeout (zero
// means none; tools carry no timeout of their own) and records the call into
// history regardless of outcome. Handler panics are not recovered (handlers
// return errors); Execute's result and error are both returned as-is, and a
// timeout yields a failed ToolResult together with the context error.
func (r *ToolRegistry) InvokeTool(ctx context.Context, callerID, toolName string, args map[string]interface{}, timeout time.Duration) (ToolResult, error) {
	tool, err := r.GetTool(toolName)
	if err != nil {
		r.record(callerID, toolName, false)
		return ToolResult{Success: false, Error: err.Error(), ToolName: toolName}, err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resultCh := make(chan ToolResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := tool.Execute(callCtx, args)
		resultCh <- result
		errCh <- err
	}()

	select {
	case <-callCtx.Done():
		r.record(callerID, toolName, false)
		return ToolResult{Success: false, Error: "timeout", ToolName: toolName}, callCtx.Err()
	case result := <-resultCh:
		err := <-errCh
		r.record(callerID, toolName, result.Success)
		return result, err
	}
}

func (r *ToolRegistry) record(callerID, toolName string, success bool) {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	r.history = append(r.history, callRecord{CallerID: callerID, ToolName: toolName, Success: success, At: time.Now()})
	r.callsTotal++
}

// CallerHistory returns the number of calls a given caller has made; the
// individual call records are not exposed.
func (r *ToolRegistry) CallerHistory(callerID string) int {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	count := 0
	for _, rec := range r.history {
		if rec.CallerID == callerID {
			count++
		}
	}
	return count
}

// TotalCalls is the cumulative tool-call counter across all callers, used
// by the testable-property that ties this counter to the sum of individual
// ToolCallRecords produced by workers.
func (r *ToolRegistry) TotalCalls() int {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	return r.callsTotal
}

// ExecuteTool is a convenience wrapper with no timeout/caller tracking, kept
// for callers (tests, CLI) that don't need the accounting path.
func (r *ToolRegistry) ExecuteTool(ctx context.Context, toolName string, args map[string]interface{}) (ToolResult, error) {
	tool, err := r.GetTool(toolName)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error(), ToolName: toolName}, err
	}
	return tool.Execute(ctx, args)
}
