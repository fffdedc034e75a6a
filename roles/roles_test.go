package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_UnknownTagFallsBackToDefault(t *testing.T) {
	r := For("nonexistent_role")
	assert.Equal(t, predefined[defaultRoleName].Name, r.Name)
}

func TestFor_KnownTag(t *testing.T) {
	r := For("coder")
	assert.Equal(t, "coder", r.Name)
	assert.Equal(t, "claude-opus-4", r.DefaultModel.ModelID)
}

func TestResolve_NativeModel_SearchBecomesCallConfigFlag(t *testing.T) {
	role := For("searcher")
	resolved := Resolve(role, "gpt-4o-mini") // native

	assert.True(t, resolved.CallConfig.EnableSearch)
	assert.NotContains(t, resolved.FunctionTools, sandboxBrowser)
}

func TestResolve_NonNativeModel_SearchSubstitutesSandboxTool(t *testing.T) {
	role := For("searcher")
	resolved := Resolve(role, "claude-sonnet-4") // not native

	assert.False(t, resolved.CallConfig.EnableSearch)
	assert.Contains(t, resolved.FunctionTools, sandboxBrowser)
}

func TestResolve_SandboxBrowserAddedAtMostOnce(t *testing.T) {
	role := Role{Name: "dual", AllowedTools: []string{CapWebSearch, CapWebExtractor}}
	resolved := Resolve(role, "claude-sonnet-4")

	count := 0
	for _, tool := range resolved.FunctionTools {
		if tool == sandboxBrowser {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestResolve_CodeInterpreter_NonNativeKeepsRoleThinkingDefault(t *testing.T) {
	role := For("coder")
	resolved := Resolve(role, "claude-sonnet-4") // supports thinking, not native

	assert.False(t, resolved.CallConfig.EnableThinking, "thinking is forced on only with the native code interpreter")
	assert.Contains(t, resolved.FunctionTools, sandboxCodeInterpreter)
}

func TestResolve_DataFetchRole_ThinkingForcedOff(t *testing.T) {
	role := For("searcher")
	resolved := Resolve(role, "claude-sonnet-4") // supports thinking generally

	assert.False(t, resolved.CallConfig.EnableThinking, "searcher is a data-fetch role")
}

func TestResolve_ModelWithoutThinkingSupport(t *testing.T) {
	role := For("writer")
	resolved := Resolve(role, "gpt-4o-mini") // does not support thinking
	assert.False(t, resolved.CallConfig.EnableThinking)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(Role{}))
	assert.Error(t, Validate(Role{Name: "x"}))
	assert.NoError(t, Validate(Role{Name: "x", DefaultModel: ModelDefaults{ModelID: "m"}}))
}
