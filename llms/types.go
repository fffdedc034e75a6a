// Package llms provides a uniform Client interface over several LLM backends
// (Anthropic, OpenAI, Ollama, Gemini) plus the capability table shared by
// all of them. The Anthropic and OpenAI clients retry failed requests; the
// Ollama and Gemini clients do not.
package llms

import "context"

// Message is one turn of a conversation, provider-agnostic.
type Message struct {
	Role       string     // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that invoked tools
	ToolCallID string     // set on tool-result messages
}

// ToolDefinition describes a callable tool for function-calling APIs.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON Schema
}

// ToolCall is a single invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
	RawArgs   string // raw accumulated JSON, used while streaming
}

// StreamChunk is one unit of a streaming response.
type StreamChunk struct {
	Type     string // "text", "thinking", "tool_call", "done", "error"
	Text     string
	ToolCall *ToolCall
	Tokens   int
	Error    error
}

// Response is the result of a non-streaming chat call.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	TokensUsed   int
	InputTokens  int
	OutputTokens int
}

// MediaResult is returned by synchronous media-synthesis calls (text-to-image).
type MediaResult struct {
	URLs []string
}

// MediaJob is returned by asynchronous media-synthesis calls (video), to be
// polled via PollMedia until it reports Done.
type MediaJob struct {
	ID string
}

// MediaStatus reports the outcome of polling a MediaJob.
type MediaStatus struct {
	Done  bool
	URLs  []string
	Error string
}

// Client is the uniform surface every provider implements. Every method
// that sends a chat takes a CallConfig, but no provider sends EnableSearch
// or EnableCodeInterpreter to its API; the only toggle read is
// EnableThinking, by the Gemini client's stream, to mark thought parts.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (*Response, error)
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (<-chan StreamChunk, error)

	TextToImage(ctx context.Context, prompt string) (*MediaResult, error)
	TextToVideo(ctx context.Context, prompt string) (*MediaJob, error)
	ImageToVideo(ctx context.Context, imageURL, prompt string) (*MediaJob, error)
	PollMedia(ctx context.Context, job *MediaJob) (*MediaStatus, error)
	TextToSpeech(ctx context.Context, text string) (*MediaResult, error)

	HealthCheck(ctx context.Context) error
	GetContextWindow() int
	GetTokenCount(text string) int

	ModelID() string
}

// CallConfig carries the per-request toggles the Worker Agent's capability
// routing logic (see roles package) computes for a given model+role pair.
type CallConfig struct {
	EnableSearch          bool
	SearchStrategy        string
	EnableThinking        bool
	EnableCodeInterpreter bool
}
