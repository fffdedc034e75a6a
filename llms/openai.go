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
// OPENAI PROVIDER (native function calling)
// ============================================================================

type OpenAIProvider struct {
	config *config.LLMProviderConfig
	client *http.Client
}

type OpenAIRequest struct {
	Model               string          `json:"model"`
	Messages            []OpenAIMessage `json:"messages"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         float64         `json:"temperature"`
	Stream              bool            `json:"stream"`
	Tools               []OpenAITool    `json:"tools,omitempty"`
	ToolChoice          string          `json:"tool_choice,omitempty"`
}

type OpenAIResponse struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *Error   `json:"error,omitempty"`
}

type OpenAIStreamResponse struct {
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type Choice struct {
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type StreamChoice struct {
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type Delta struct {
	Content   string           `json:"content,omitempty"`
	ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

type OpenAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIFunctionCall `json:"function"`
}

type OpenAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func NewOpenAIProviderFromConfig(cfg *config.LLMProviderConfig) (*OpenAIProvider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (p *OpenAIProvider) ModelID() string           { return p.config.Model }
func (p *OpenAIProvider) GetContextWindow() int     { return contextWindowFor(p.config.Model) }
func (p *OpenAIProvider) GetTokenCount(text string) int { return utils.EstimateTokens(text) }

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Chat(ctx, []Message{{Role: "user", Content: "ping"}}, nil, CallConfig{})
	return err
}

func (p *OpenAIProvider) TextToImage(ctx context.Context, prompt string) (*MediaResult, error) {
	return nil, fmt.Errorf("openai: text-to-image not wired for this provider")
}
func (p *OpenAIProvider) TextToVideo(ctx context.Context, prompt string) (*MediaJob, error) {
	return nil, fmt.Errorf("openai: text-to-video not supported")
}
func (p *OpenAIProvider) ImageToVideo(ctx context.Context, imageURL, prompt string) (*MediaJob, error) {
	return nil, fmt.Errorf("openai: image-to-video not supported")
}
func (p *OpenAIProvider) PollMedia(ctx context.Context, job *MediaJob) (*MediaStatus, error) {
	return nil, fmt.Errorf("openai: media polling not supported")
}
func (p *OpenAIProvider) TextToSpeech(ctx context.Context, text string) (*MediaResult, error) {
	return nil, fmt.Errorf("openai: text-to-speech not wired for this provider")
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (*Response, error) {
	request := p.buildRequest(messages, false, tools)

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	var toolCalls []ToolCall
	if len(choice.Message.ToolCalls) > 0 {
		var err error
		toolCalls, err = parseToolCalls(choice.Message.ToolCalls)
		if err != nil {
			return nil, err
		}
	}

	return &Response{
		Text:         choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: choice.FinishReason,
		TokensUsed:   response.Usage.TotalTokens,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}, nil
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, cfg CallConfig) (<-chan StreamChunk, error) {
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

func (p *OpenAIProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition) OpenAIRequest {
	openaiMessages := make([]OpenAIMessage, len(messages))
	for i, msg := range messages {
		openaiMsg := OpenAIMessage{Role: msg.Role, Content: msg.Content}
		if len(msg.ToolCalls) > 0 {
			openaiMsg.ToolCalls = make([]OpenAIToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				openaiMsg.ToolCalls[j] = OpenAIToolCall{
					ID: tc.ID, Type: "function",
					Function: OpenAIFunctionCall{Name: tc.Name, Arguments: tc.RawArgs},
				}
			}
		}
		if msg.ToolCallID != "" {
			openaiMsg.ToolCallID = msg.ToolCallID
		}
		openaiMessages[i] = openaiMsg
	}

	request := OpenAIRequest{
		Model:       p.config.Model,
		Messages:    openaiMessages,
		Temperature: p.config.Temperature,
		Stream:      stream,
	}

	if strings.HasPrefix(p.config.Model, "o1-") || strings.HasPrefix(p.config.Model, "o3-") {
		request.MaxCompletionTokens = p.config.MaxTokens
	} else {
		request.MaxTokens = p.config.MaxTokens
	}

	if len(tools) > 0 {
		request.Tools = convertToOpenAITools(tools)
		request.ToolChoice = "auto"
	}

	return request
}

func convertToOpenAITools(tools []ToolDefinition) []OpenAITool {
	result := make([]OpenAITool, len(tools))
	for i, tool := range tools {
		result[i] = OpenAITool{
			Type:     "function",
			Function: OpenAIToolFunction{Name: tool.Name, Description: tool.Description, Parameters: tool.Parameters},
		}
	}
	return result
}

func parseToolCalls(openaiToolCalls []OpenAIToolCall) ([]ToolCall, error) {
	result := make([]ToolCall, len(openaiToolCalls))
	for i, tc := range openaiToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		result[i] = ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args, RawArgs: tc.Function.Arguments}
	}
	return result, nil
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request OpenAIRequest) (*OpenAIResponse, error) {
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

func (p *OpenAIProvider) attemptRequestWithHeaders(ctx context.Context, request OpenAIRequest) (*OpenAIResponse, RetryStrategy, error, RateLimitInfo) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, NoRetry, fmt.Errorf("failed to marshal request: %w", err), RateLimitInfo{}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, NoRetry, fmt.Errorf("failed to create HTTP request: %w", err), RateLimitInfo{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NoRetry, fmt.Errorf("HTTP request failed: %w", err), RateLimitInfo{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NoRetry, fmt.Errorf("failed to read response: %w", err), RateLimitInfo{}
	}

	retryInfo := extractOpenAIRateLimitHeaders(resp.Header)
	strategy := getRetryStrategy(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, strategy, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)), retryInfo
	}

	var response OpenAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, NoRetry, fmt.Errorf("failed to unmarshal response: %w", err), RateLimitInfo{}
	}

	return &response, NoRetry, nil, retryInfo
}

func extractOpenAIRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}
	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
			info.RetryAfter = seconds
		}
	}
	if resetStr := headers.Get("x-ratelimit-reset-requests"); resetStr != "" {
		var resetTime int64
		fmt.Sscanf(resetStr, "%d", &resetTime)
		info.ResetTime = resetTime
	}
	if remaining := headers.Get("x-ratelimit-remaining-requests"); remaining != "" {
		fmt.Sscanf(remaining, "%d", &info.RequestsRemaining)
	}
	return info
}

func (p *OpenAIProvider) makeStreamingRequest(ctx context.Context, request OpenAIRequest, outputCh chan<- StreamChunk) error {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	reader := bufio.NewReader(resp.Body)
	toolCallsMap := make(map[int]*OpenAIToolCall)
	totalTokens := 0

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]
		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var streamResp OpenAIStreamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			continue
		}
		if streamResp.Error != nil {
			return fmt.Errorf("API error: %s", streamResp.Error.Message)
		}
		if streamResp.Usage != nil {
			totalTokens = streamResp.Usage.TotalTokens
		}
		if len(streamResp.Choices) == 0 {
			continue
		}

		choice := streamResp.Choices[0]
		if choice.Delta.Content != "" {
			outputCh <- StreamChunk{Type: "text", Text: choice.Delta.Content}
		}

		for _, deltaCall := range choice.Delta.ToolCalls {
			if deltaCall.ID != "" {
				toolCallsMap[len(toolCallsMap)] = &OpenAIToolCall{ID: deltaCall.ID, Type: deltaCall.Type, Function: deltaCall.Function}
			} else if len(toolCallsMap) > 0 {
				if toolCall, exists := toolCallsMap[len(toolCallsMap)-1]; exists {
					toolCall.Function.Arguments += deltaCall.Function.Arguments
				}
			}
		}

		if choice.FinishReason == "stop" || choice.FinishReason == "tool_calls" {
			var accumulated []OpenAIToolCall
			for i := 0; i < len(toolCallsMap); i++ {
				if toolCall, exists := toolCallsMap[i]; exists {
					accumulated = append(accumulated, *toolCall)
				}
			}
			if len(accumulated) > 0 {
				if toolCalls, err := parseToolCalls(accumulated); err == nil {
					for _, tc := range toolCalls {
						tc := tc
						outputCh <- StreamChunk{Type: "tool_call", ToolCall: &tc}
					}
				}
			}
			break
		}
	}

	outputCh <- StreamChunk{Type: "done", Tokens: totalTokens}
	return nil
}
