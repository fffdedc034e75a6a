// Package roles holds the predefined worker-role table and the capability
// routing logic that turns a role plus a chosen model into a concrete set of
// function tools and an LLM call config (§4.4 of the orchestration design:
// native capability vs. sandbox-tool substitution).
package roles

import (
	"fmt"

	"github.com/kadirpekel/swarmcore/llms"
)

// native capability names a role can request; these map onto CallConfig
// toggles when the model honors them, or onto sandbox tool substitutes when
// it doesn't.
const (
	CapWebSearch       = "web_search"
	CapWebExtractor    = "web_extractor"
	CapCodeInterpreter = "code_interpreter"

	sandboxBrowser          = "sandbox_browser"
	sandboxCodeInterpreter = "sandbox_code_interpreter"
)

// ModelDefaults is a role's suggested model configuration; individual jobs
// may override the model id but keep the rest unless the chosen model lacks
// the capability.
type ModelDefaults struct {
	ModelID               string
	Temperature           float64
	EnableThinking        bool
	EnableSearch          bool
	EnableCodeInterpreter bool
}

// Role is a predefined worker template: what it's for, how it's prompted,
// and what it's allowed to touch.
type Role struct {
	Name          string
	Description   string
	SystemPrompt  string
	AllowedTools  []string // native capability names and/or explicit tool names
	DefaultModel  ModelDefaults
	Multimodal    bool // true for the four generator roles (§3 Role)
}

// dataFetchRoles have enable_thinking forced off to reduce latency, they
// fetch and relay, they don't reason.
var dataFetchRoles = map[string]bool{"searcher": true, "fact_checker": true}

var predefined = map[string]Role{
	"searcher": {
		Name:        "searcher",
		Description: "Finds information on the web relevant to the sub-task.",
		SystemPrompt: "You are a search specialist. Given a query, find the most relevant, " +
			"credible sources and report back concise findings with their origin URLs.",
		AllowedTools: []string{CapWebSearch, CapWebExtractor},
		DefaultModel: ModelDefaults{ModelID: "gpt-4o-mini", Temperature: 0.3},
	},
	"fact_checker": {
		Name:        "fact_checker",
		Description: "Verifies claims against authoritative sources.",
		SystemPrompt: "You are a fact checker. Given a claim, search for corroborating or " +
			"contradicting evidence and report a verdict with supporting citations.",
		AllowedTools: []string{CapWebSearch},
		DefaultModel: ModelDefaults{ModelID: "gpt-4o-mini", Temperature: 0.2},
	},
	"analyst": {
		Name:        "analyst",
		Description: "Analyzes provided data or prior-step outputs and draws conclusions.",
		SystemPrompt: "You are a data analyst. Examine the material you are given and produce " +
			"a structured analysis with clear reasoning and supporting numbers.",
		AllowedTools: []string{CapCodeInterpreter},
		DefaultModel: ModelDefaults{ModelID: "claude-sonnet-4", Temperature: 0.4},
	},
	"researcher": {
		Name:        "researcher",
		Description: "Combines search and reasoning to answer an open-ended question.",
		SystemPrompt: "You are a researcher. Gather information as needed, then synthesize a " +
			"well-reasoned answer, noting any uncertainty.",
		AllowedTools: []string{CapWebSearch, CapWebExtractor},
		DefaultModel: ModelDefaults{ModelID: "claude-sonnet-4", Temperature: 0.5},
	},
	"writer": {
		Name:        "writer",
		Description: "Produces polished prose from supplied material.",
		SystemPrompt: "You are a writer. Turn the provided material into clear, well-structured " +
			"prose appropriate for the requested audience.",
		AllowedTools: []string{},
		DefaultModel: ModelDefaults{ModelID: "claude-sonnet-4", Temperature: 0.7},
	},
	"coder": {
		Name:        "coder",
		Description: "Writes and tests code to satisfy the sub-task.",
		SystemPrompt: "You are a software engineer. Write correct, idiomatic code for the " +
			"requested task, and use the code interpreter to validate it before answering.",
		AllowedTools: []string{CapCodeInterpreter},
		DefaultModel: ModelDefaults{ModelID: "claude-opus-4", Temperature: 0.2},
	},
	"translator": {
		Name:        "translator",
		Description: "Translates text between languages, preserving meaning and tone.",
		SystemPrompt: "You are a translator. Translate the given text faithfully, preserving " +
			"tone, register, and any technical terminology.",
		AllowedTools: []string{},
		DefaultModel: ModelDefaults{ModelID: "gpt-4o-mini", Temperature: 0.3},
	},
	"summarizer": {
		Name:        "summarizer",
		Description: "Condenses prior-step outputs into a compact summary.",
		SystemPrompt: "You are a summarizer. Condense the given material into a concise summary " +
			"without losing load-bearing facts.",
		AllowedTools: []string{},
		DefaultModel: ModelDefaults{ModelID: "gpt-4o-mini", Temperature: 0.3},
	},
	"creative": {
		Name:        "creative",
		Description: "Generates creative written content (stories, taglines, ideas).",
		SystemPrompt: "You are a creative writer. Generate original, engaging content matching " +
			"the requested style and constraints.",
		AllowedTools: []string{},
		DefaultModel: ModelDefaults{ModelID: "claude-opus-4", Temperature: 0.9},
	},
	"image_analyst": {
		Name:        "image_analyst",
		Description: "Describes and answers questions about provided images.",
		SystemPrompt: "You are an image analyst. Examine the provided image(s) and answer the " +
			"question precisely, describing only what is visible.",
		AllowedTools: []string{},
		DefaultModel: ModelDefaults{ModelID: "gemini-2.5-pro", Temperature: 0.2},
	},

	// Multimodal generators, produce a MediaResult/MediaJob rather than text.
	"text_to_image": {
		Name: "text_to_image", Description: "Generates an image from a text prompt.",
		SystemPrompt: "Generate an image matching the prompt's description as closely as possible.",
		AllowedTools: []string{}, Multimodal: true,
		DefaultModel: ModelDefaults{ModelID: "imagen-4.0-generate"},
	},
	"text_to_video": {
		Name: "text_to_video", Description: "Generates a video from a text prompt.",
		SystemPrompt: "Generate a video matching the prompt's description as closely as possible.",
		AllowedTools: []string{}, Multimodal: true,
		DefaultModel: ModelDefaults{ModelID: "veo-3.0-generate"},
	},
	"image_to_video": {
		Name: "image_to_video", Description: "Animates a still image into a short video.",
		SystemPrompt: "Animate the given image according to the accompanying prompt.",
		AllowedTools: []string{}, Multimodal: true,
		DefaultModel: ModelDefaults{ModelID: "veo-3.0-generate"},
	},
	"voice_synthesizer": {
		Name: "voice_synthesizer", Description: "Synthesizes speech audio from text.",
		SystemPrompt: "Synthesize natural-sounding speech for the given text.",
		AllowedTools: []string{}, Multimodal: true,
		DefaultModel: ModelDefaults{ModelID: "gpt-4o"},
	},
}

// defaultRoleName is used when a plan names an unrecognized agent_type —
// "unknown tags resolve to a default role" per the design notes.
const defaultRoleName = "researcher"

// For looks up a predefined role by name, falling back to the default role
// for unrecognized tags rather than failing the whole plan.
func For(name string) Role {
	if r, ok := predefined[name]; ok {
		return r
	}
	return predefined[defaultRoleName]
}

// All returns every predefined role, keyed by name.
func All() map[string]Role {
	out := make(map[string]Role, len(predefined))
	for k, v := range predefined {
		out[k] = v
	}
	return out
}

// ResolvedTools is the outcome of capability routing for one role+model
// pair: which tool names should actually be exposed as function-call tools
// (native capabilities honored server-side are excluded), plus the call
// config toggles to send with the request.
type ResolvedTools struct {
	FunctionTools []string
	CallConfig    llms.CallConfig
}

// Resolve applies §4.4's capability routing: native capabilities on a native
// model turn into config flags; on a non-native model they substitute a
// sandbox tool (added at most once); anything else passes through as a
// plain function tool.
func Resolve(role Role, modelID string) ResolvedTools {
	cap := llms.CapabilityFor(modelID)

	var functionTools []string
	sandboxBrowserAdded := false

	hasWebSearch := false
	hasCodeInterpreter := false

	for _, name := range role.AllowedTools {
		switch name {
		case CapWebSearch, CapWebExtractor:
			hasWebSearch = true
			if cap.Native {
				continue // honored server-side via EnableSearch
			}
			if !sandboxBrowserAdded {
				functionTools = append(functionTools, sandboxBrowser)
				sandboxBrowserAdded = true
			}
		case CapCodeInterpreter:
			hasCodeInterpreter = true
			if cap.Native {
				continue // honored server-side via EnableCodeInterpreter
			}
			functionTools = append(functionTools, sandboxCodeInterpreter)
		default:
			functionTools = append(functionTools, name)
		}
	}

	enableSearch := hasWebSearch && cap.Native
	enableCodeInterpreter := hasCodeInterpreter && cap.Native

	enableThinking := role.DefaultModel.EnableThinking
	if enableCodeInterpreter {
		enableThinking = true
	}
	if dataFetchRoles[role.Name] {
		enableThinking = false
	}
	if !cap.SupportsThinking {
		enableThinking = false
	}

	return ResolvedTools{
		FunctionTools: functionTools,
		CallConfig: llms.CallConfig{
			EnableSearch:          enableSearch,
			EnableThinking:        enableThinking,
			EnableCodeInterpreter: enableCodeInterpreter,
		},
	}
}

// Validate reports an error if name is empty or its DefaultModel.ModelID is
// unset.
func Validate(r Role) error {
	if r.Name == "" {
		return fmt.Errorf("role: name is required")
	}
	if r.DefaultModel.ModelID == "" {
		return fmt.Errorf("role %s: default model id is required", r.Name)
	}
	return nil
}
