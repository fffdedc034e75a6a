package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/swarmcore/config"
	"github.com/kadirpekel/swarmcore/utils"
)

// ============================================================================
// OLLAMA PROVIDER (local models, no native search/code-interpreter/thinking)
// ============================================================================

// OllamaProvider talks to a local Ollama daemon's /api/chat endpoint.
type OllamaProvider struct {
	config *config.LLMProviderConfig
	client *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []ollamaToolCall  `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message struct {
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls"`
	} `json:"message"`
	Done           bool `json:"done"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func NewOllamaProviderFromConfig(cfg *config.LLMProviderConfig) (*OllamaProvider, error) {
	cfg.SetDefaults()
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	return &OllamaProvider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (p *OllamaProvider) ModelID() string               { return p.config.Model }
func (p *OllamaProvider) GetContextWindow() int         { return contextWindowFor(p.config.Model) }
func (p *OllamaProvider) GetTokenCount(text string) int { return utils.EstimateTokens(text) }

func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.Host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (p *OllamaProvider) TextToImage(ctx context.Context, prompt string) (*MediaResult, error) {
	return nil, fmt.Errorf("ollama: text-to-image not supported")
}
func (p *OllamaProvider) TextToVideo(ctx context.Context, prompt string) (*MediaJob, error) {
	return nil, fmt.Errorf("ollama: text-to-video not supported")
}
func (p *OllamaProvider) ImageToVideo(ctx context.Context, imageURL, prompt string) (*MediaJob, error) {
	return nil, fmt.Errorf("ollama: image-to-video not supported")
}
func (p *OllamaProvider) PollMedia(ctx context.Context, job *MediaJob) (*MediaStatus, error) {
	return nil, fmt.Errorf("ollama: media polling not supported")
}
func (p *OllamaProvider) TextToSpeech(ctx context.Context, text string) (*MediaResult, error) {
	return nil, fmt.Errorf("ollama: text-to-speech not supported")
}

func (p *OllamaProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition) ollamaChatRequest {
	msgs := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}
	req := ollamaChatRequest{
		Model:    p.config.Model,
		Messages: msgs,
		Stream:   stream,
		Options:  ollamaOptions{Temperature: p.config.Temperature, NumPredict: p.config.MaxTokens},
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, ollamaTool{
			Type:     "function",
			Function: OpenAIToolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return req
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (*Response, error) {
	request := p.buildRequest(messages, false, tools)

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var toolCalls []ToolCall
	for _, tc := range chatResp.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	return &Response{
		Text:         chatResp.Message.Content,
		ToolCalls:    toolCalls,
		TokensUsed:   chatResp.PromptEvalCount + chatResp.EvalCount,
		InputTokens:  chatResp.PromptEvalCount,
		OutputTokens: chatResp.EvalCount,
	}, nil
}

func (p *OllamaProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, tools)

	outputCh := make(chan StreamChunk, 100)
	go func() {
		defer close(outputCh)
		if err := p.streamRequest(ctx, request, outputCh); err != nil {
			outputCh <- StreamChunk{Type: "error", Error: err}
		}
	}()
	return outputCh, nil
}

func (p *OllamaProvider) streamRequest(ctx context.Context, request ollamaChatRequest, outputCh chan<- StreamChunk) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	var totalTokens int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			outputCh <- StreamChunk{Type: "text", Text: chunk.Message.Content}
		}
		for _, tc := range chunk.Message.ToolCalls {
			call := ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
			outputCh <- StreamChunk{Type: "tool_call", ToolCall: &call}
		}
		if chunk.Done {
			totalTokens = chunk.PromptEvalCount + chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}

	outputCh <- StreamChunk{Type: "done", Tokens: totalTokens}
	return nil
}
