package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/swarmcore/config"
	"github.com/kadirpekel/swarmcore/utils"
)

// ============================================================================
// ANTHROPIC PROVIDER IMPLEMENTATION
// ============================================================================

// AnthropicProvider implements Client for Anthropic's Claude API.
type AnthropicProvider struct {
	config *config.LLMProviderConfig
	client *http.Client
}

type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Tools       []AnthropicTool    `json:"tools,omitempty"`
}

type AnthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type AnthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []AnthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      AnthropicUsage     `json:"usage"`
	Error      *AnthropicError    `json:"error,omitempty"`
}

type AnthropicStreamResponse struct {
	Type         string             `json:"type"`
	Index        int                `json:"index,omitempty"`
	Delta        *AnthropicDelta    `json:"delta,omitempty"`
	ContentBlock *AnthropicContent  `json:"content_block,omitempty"`
	Message      *AnthropicResponse `json:"message,omitempty"`
	Usage        *AnthropicUsage    `json:"usage,omitempty"`
}

type AnthropicContent struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

type AnthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewAnthropicProviderFromConfig(cfg *config.LLMProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (p *AnthropicProvider) ModelID() string { return p.config.Model }

func (p *AnthropicProvider) GetContextWindow() int {
	return contextWindowFor(p.config.Model)
}

func (p *AnthropicProvider) GetTokenCount(text string) int {
	return utils.EstimateTokens(text)
}

func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Chat(ctx, []Message{{Role: "user", Content: "ping"}}, nil, CallConfig{})
	return err
}

func (p *AnthropicProvider) TextToImage(ctx context.Context, prompt string) (*MediaResult, error) {
	return nil, fmt.Errorf("anthropic: text-to-image not supported")
}
func (p *AnthropicProvider) TextToVideo(ctx context.Context, prompt string) (*MediaJob, error) {
	return nil, fmt.Errorf("anthropic: text-to-video not supported")
}
func (p *AnthropicProvider) ImageToVideo(ctx context.Context, imageURL, prompt string) (*MediaJob, error) {
	return nil, fmt.Errorf("anthropic: image-to-video not supported")
}
func (p *AnthropicProvider) PollMedia(ctx context.Context, job *MediaJob) (*MediaStatus, error) {
	return nil, fmt.Errorf("anthropic: media polling not supported")
}
func (p *AnthropicProvider) TextToSpeech(ctx context.Context, text string) (*MediaResult, error) {
	return nil, fmt.Errorf("anthropic: text-to-speech not supported")
}

// Chat generates a response given conversation messages.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (*Response, error) {
	request := p.buildRequest(messages, false, tools)

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s", response.Error.Message)
	}

	var text string
	var toolCalls []ToolCall
	for _, content := range response.Content {
		switch content.Type {
		case "text":
			text += content.Text
		case "tool_use":
			rawArgs, _ := json.Marshal(content.Input)
			toolCalls = append(toolCalls, ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: content.Input,
				RawArgs:   string(rawArgs),
			})
		}
	}

	return &Response{
		Text:         text,
		ToolCalls:    toolCalls,
		FinishReason: response.StopReason,
		TokensUsed:   response.Usage.InputTokens + response.Usage.OutputTokens,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}

// ChatStream generates a streaming response given conversation messages.
func (p *AnthropicProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, tools)

	outputCh := make(chan StreamChunk, 100)
	go func() {
		defer close(outputCh)
		if err := p.makeStreamingRequest(ctx, request, outputCh); err != nil {
			outputCh <- StreamChunk{Type: "error", Error: err}
		}
	}()
	return outputCh, nil
}

func (p *AnthropicProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition) AnthropicRequest {
	var systemPrompt string
	anthropicMessages := make([]AnthropicMessage, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == "system" {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}

		if msg.Role == "tool" {
			anthropicMessages = append(anthropicMessages, AnthropicMessage{
				Role: "user",
				Content: []AnthropicContent{
					{Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content},
				},
			})
		} else if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			contents := []AnthropicContent{}
			if msg.Content != "" {
				contents = append(contents, AnthropicContent{Type: "text", Text: msg.Content})
			}
			for _, toolCall := range msg.ToolCalls {
				contents = append(contents, AnthropicContent{
					Type: "tool_use", ID: toolCall.ID, Name: toolCall.Name, Input: toolCall.Arguments,
				})
			}
			anthropicMessages = append(anthropicMessages, AnthropicMessage{Role: "assistant", Content: contents})
		} else {
			anthropicMessages = append(anthropicMessages, AnthropicMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	request := AnthropicRequest{
		Model:       p.config.Model,
		Messages:    anthropicMessages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Stream:      stream,
		System:      systemPrompt,
	}

	if len(tools) > 0 {
		anthropicTools := make([]AnthropicTool, len(tools))
		for i, tool := range tools {
			anthropicTools[i] = AnthropicTool{Name: tool.Name, Description: tool.Description, InputSchema: tool.Parameters}
		}
		request.Tools = anthropicTools
	}

	return request
}

// RetryStrategy represents the retry approach for different error types.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

func getRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// RateLimitInfo contains rate limit information parsed from response headers.
type RateLimitInfo struct {
	RetryAfter            time.Duration
	ResetTime             int64
	RequestsRemaining     int
	InputTokensRemaining  int
	OutputTokensRemaining int
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request AnthropicRequest) (*AnthropicResponse, error) {
	maxRetries := p.config.MaxRetries
	baseDelay := time.Duration(p.config.RetryDelay) * time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		response, strategy, err, retryInfo := p.attemptRequestWithHeaders(ctx, request)

		if strategy == NoRetry {
			return response, err
		}
		if err == nil || attempt >= maxRetries {
			return response, err
		}

		var delay time.Duration
		switch strategy {
		case SmartRetry:
			if retryInfo.RetryAfter > 0 {
				delay = retryInfo.RetryAfter
			} else if retryInfo.ResetTime > 0 {
				delay = time.Until(time.Unix(retryInfo.ResetTime, 0))
				if delay < 0 {
					delay = baseDelay
				}
			} else {
				exponentialDelay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
				delay = exponentialDelay + time.Duration(float64(exponentialDelay)*0.1)
			}
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
		case ConservativeRetry:
			if attempt >= 2 {
				return response, err
			}
			delay = time.Duration(2+attempt) * time.Second
			if delay > 16*time.Second {
				delay = 16 * time.Second
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries exceeded after %d attempts", maxRetries)
}

func (p *AnthropicProvider) attemptRequestWithHeaders(ctx context.Context, request AnthropicRequest) (*AnthropicResponse, RetryStrategy, error, RateLimitInfo) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, NoRetry, fmt.Errorf("failed to marshal request: %w", err), RateLimitInfo{}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, NoRetry, fmt.Errorf("failed to create request: %w", err), RateLimitInfo{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NoRetry, fmt.Errorf("failed to make request: %w", err), RateLimitInfo{}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	retryInfo := extractAnthropicRateLimitHeaders(resp.Header)
	strategy := getRetryStrategy(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, strategy, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)), retryInfo
	}

	var response AnthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, NoRetry, fmt.Errorf("failed to decode response: %w", err), RateLimitInfo{}
	}

	return &response, NoRetry, nil, retryInfo
}

func extractAnthropicRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}
	if retryAfter := headers.Get("retry-after"); retryAfter != "" {
		if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
			info.RetryAfter = seconds
		}
	}
	if resetStr := headers.Get("anthropic-ratelimit-requests-reset"); resetStr != "" {
		if resetTime, err := time.Parse(time.RFC3339, resetStr); err == nil {
			info.ResetTime = resetTime.Unix()
		}
	}
	if remaining := headers.Get("anthropic-ratelimit-requests-remaining"); remaining != "" {
		fmt.Sscanf(remaining, "%d", &info.RequestsRemaining)
	}
	if remaining := headers.Get("anthropic-ratelimit-input-tokens-remaining"); remaining != "" {
		fmt.Sscanf(remaining, "%d", &info.InputTokensRemaining)
	}
	if remaining := headers.Get("anthropic-ratelimit-output-tokens-remaining"); remaining != "" {
		fmt.Sscanf(remaining, "%d", &info.OutputTokensRemaining)
	}
	return info
}

func (p *AnthropicProvider) makeStreamingRequest(ctx context.Context, request AnthropicRequest, outputCh chan<- StreamChunk) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	if len(request.Tools) > 0 {
		req.Header.Set("anthropic-beta", "fine-grained-tool-streaming-2025-05-14")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	toolCalls := make(map[int]*ToolCall)
	var totalTokens int

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		jsonData := strings.TrimPrefix(line, "data: ")

		var streamResp AnthropicStreamResponse
		if err := json.Unmarshal([]byte(jsonData), &streamResp); err != nil {
			return fmt.Errorf("failed to decode streaming response: %w, data: %s", err, jsonData)
		}

		switch streamResp.Type {
		case "content_block_start":
			if streamResp.ContentBlock != nil && streamResp.ContentBlock.Type == "tool_use" {
				toolCalls[streamResp.Index] = &ToolCall{
					ID: streamResp.ContentBlock.ID, Name: streamResp.ContentBlock.Name,
					Arguments: make(map[string]interface{}),
				}
			}
		case "content_block_delta":
			if streamResp.Delta != nil {
				if streamResp.Delta.Text != "" {
					outputCh <- StreamChunk{Type: "text", Text: streamResp.Delta.Text}
				}
				if streamResp.Delta.PartialJSON != "" {
					if tc, exists := toolCalls[streamResp.Index]; exists {
						tc.RawArgs += streamResp.Delta.PartialJSON
					}
				}
			}
		case "content_block_stop":
			if tc, exists := toolCalls[streamResp.Index]; exists {
				if tc.RawArgs != "" {
					if err := json.Unmarshal([]byte(tc.RawArgs), &tc.Arguments); err != nil {
						tc.Arguments = map[string]interface{}{"_raw": tc.RawArgs}
					}
				}
				outputCh <- StreamChunk{Type: "tool_call", ToolCall: tc}
			}
		case "message_delta":
			if streamResp.Usage != nil {
				totalTokens = streamResp.Usage.OutputTokens
			}
		case "message_stop":
			outputCh <- StreamChunk{Type: "done", Tokens: totalTokens}
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read streaming response: %w", err)
	}
	return nil
}
