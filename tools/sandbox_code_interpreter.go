package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ============================================================================
// SANDBOX CODE INTERPRETER: compensates for models without native
// code_interpreter support. Runs the given snippet through an external
// interpreter process and returns stdout/stderr/return code.
// ============================================================================

// SandboxCodeInterpreterTool executes short Python/shell snippets out of
// process. It is deliberately narrow: one interpreter binary per language,
// no package installation, no filesystem persistence across calls.
type SandboxCodeInterpreterTool struct {
	timeout      time.Duration
	interpreters map[string][]string // language -> command + base args
}

func NewSandboxCodeInterpreterTool(timeout time.Duration) *SandboxCodeInterpreterTool {
	return &SandboxCodeInterpreterTool{
		timeout: timeout,
		interpreters: map[string][]string{
			"python": {"python3", "-c"},
			"shell":  {"sh", "-c"},
		},
	}
}

func (t *SandboxCodeInterpreterTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "sandbox_code_interpreter",
		Description: "Execute a short code snippet in an isolated interpreter process and return stdout/stderr.",
		Parameters:  ParametersFromStruct(codeArgs{}),
		ServerURL:   "local",
	}
}

func (t *SandboxCodeInterpreterTool) GetName() string        { return "sandbox_code_interpreter" }
func (t *SandboxCodeInterpreterTool) GetDescription() string { return t.GetInfo().Description }

type codeArgs struct {
	Code     string `mapstructure:"code" jsonschema:"required,description=source code to run"`
	Language string `mapstructure:"language" jsonschema:"default=python,enum=python,enum=shell,description=python or shell"`
}

func (t *SandboxCodeInterpreterTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	parsed := codeArgs{Language: "python"}
	if err := mapstructure.Decode(args, &parsed); err != nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err), ToolName: t.GetName()}, err
	}
	if parsed.Code == "" {
		err := fmt.Errorf("code is required")
		return ToolResult{Success: false, Error: err.Error(), ToolName: t.GetName()}, err
	}

	cmdSpec, ok := t.interpreters[parsed.Language]
	if !ok {
		err := fmt.Errorf("unsupported language %q", parsed.Language)
		return ToolResult{Success: false, Error: err.Error(), ToolName: t.GetName()}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	fullArgs := append(append([]string{}, cmdSpec[1:]...), parsed.Code)
	cmd := exec.CommandContext(runCtx, cmdSpec[0], fullArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	execTime := time.Since(start)

	returnCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		returnCode = exitErr.ExitCode()
	} else if runErr != nil {
		returnCode = -1
	}

	output := map[string]interface{}{
		"stdout":         stdout.String(),
		"stderr":         stderr.String(),
		"return_code":    returnCode,
		"execution_time": execTime.Seconds(),
	}

	success := runErr == nil
	result := ToolResult{
		Success:       success,
		Output:        output,
		ToolName:      t.GetName(),
		ExecutionTime: execTime,
	}
	if !success {
		result.Error = stderr.String()
		if result.Error == "" && runErr != nil {
			result.Error = runErr.Error()
		}
	}
	return result, nil
}
