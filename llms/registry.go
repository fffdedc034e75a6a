package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/swarmcore/config"
	"github.com/kadirpekel/swarmcore/registry"
)

// ============================================================================
// CAPABILITY TABLE: a static model_id -> capability lookup, consulted as a
// pure function rather than dispatched on a provider-type enum (see §9 of
// the orchestration spec's design notes).
// ============================================================================

// Capability describes what a given model id supports natively.
type Capability struct {
	Native                bool // honors native web_search / code_interpreter toggles
	SupportsThinking      bool // returns a reasoning channel
	RequiresMultimodalAPI bool // must be invoked through the multimodal endpoint
	ContextWindow         int
}

var modelCapabilities = map[string]Capability{
	"claude-opus-4":        {Native: false, SupportsThinking: true, ContextWindow: 200_000},
	"claude-sonnet-4":      {Native: false, SupportsThinking: true, ContextWindow: 200_000},
	"claude-3-7-sonnet":    {Native: false, SupportsThinking: true, ContextWindow: 200_000},
	"claude-3-5-sonnet":    {Native: false, SupportsThinking: false, ContextWindow: 200_000},
	"claude-3-5-haiku":     {Native: false, SupportsThinking: false, ContextWindow: 200_000},
	"gpt-4o":               {Native: true, SupportsThinking: false, ContextWindow: 128_000},
	"gpt-4o-mini":          {Native: true, SupportsThinking: false, ContextWindow: 128_000},
	"gpt-4-turbo":          {Native: false, SupportsThinking: false, ContextWindow: 128_000},
	"o1":                   {Native: false, SupportsThinking: true, ContextWindow: 200_000},
	"o1-mini":              {Native: false, SupportsThinking: true, ContextWindow: 128_000},
	"o3":                   {Native: false, SupportsThinking: true, ContextWindow: 200_000},
	"o3-mini":              {Native: false, SupportsThinking: true, ContextWindow: 128_000},
	"gemini-2.5-pro":       {Native: true, SupportsThinking: true, ContextWindow: 1_000_000},
	"gemini-2.5-flash":     {Native: true, SupportsThinking: true, ContextWindow: 1_000_000},
	"gemini-2.0-flash":     {Native: true, SupportsThinking: false, ContextWindow: 1_000_000},
	"imagen-4.0-generate":  {Native: false, SupportsThinking: false, RequiresMultimodalAPI: true, ContextWindow: 0},
	"veo-3.0-generate":     {Native: false, SupportsThinking: false, RequiresMultimodalAPI: true, ContextWindow: 0},
	"llama3.1":            {Native: false, SupportsThinking: false, ContextWindow: 128_000},
	"llama3.2":            {Native: false, SupportsThinking: false, ContextWindow: 128_000},
	"qwen2.5":             {Native: false, SupportsThinking: false, ContextWindow: 32_000},
	"deepseek-r1":         {Native: false, SupportsThinking: true, ContextWindow: 64_000},
	"mistral":             {Native: false, SupportsThinking: false, ContextWindow: 32_000},
}

var defaultCapability = Capability{Native: false, SupportsThinking: false, ContextWindow: 8_000}

// CapabilityFor looks up a model's capability record, falling back to a
// conservative default (no native tools, no thinking) for unknown models.
func CapabilityFor(modelID string) Capability {
	if cap, ok := modelCapabilities[modelID]; ok {
		return cap
	}
	return defaultCapability
}

func contextWindowFor(modelID string) int {
	return CapabilityFor(modelID).ContextWindow
}

// ============================================================================
// REGISTRY + FACTORY
// ============================================================================

// Registry manages Client instances keyed by a caller-chosen name (usually
// the model id, but aliases are permitted).
type Registry struct {
	*registry.BaseRegistry[Client]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Client]()}
}

// CreateFromConfig builds a Client from a provider config and registers it.
func (r *Registry) CreateFromConfig(ctx context.Context, name string, cfg *config.LLMProviderConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}
	cfg.SetDefaults()

	var client Client
	var err error

	switch cfg.Type {
	case "anthropic":
		client, err = NewAnthropicProviderFromConfig(cfg)
	case "openai":
		client, err = NewOpenAIProviderFromConfig(cfg)
	case "ollama":
		client, err = NewOllamaProviderFromConfig(cfg)
	case "gemini":
		client, err = NewGeminiProviderFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Type, err)
	}

	if err := r.Register(name, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Registry) GetClient(name string) (Client, error) {
	client, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("llm client %q not found", name)
	}
	return client, nil
}
