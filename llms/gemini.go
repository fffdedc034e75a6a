package llms

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/kadirpekel/swarmcore/config"
	"github.com/kadirpekel/swarmcore/utils"
)

// ============================================================================
// GEMINI PROVIDER: fourth LLM backend, and the vehicle for the multimodal
// generator roles' async submit/poll contract (text-to-video, image-to-video
// via Veo's long-running-operation pattern).
// ============================================================================

type GeminiProvider struct {
	config *config.LLMProviderConfig
	client *genai.Client
}

func NewGeminiProviderFromConfig(ctx context.Context, cfg *config.LLMProviderConfig) (*GeminiProvider, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{config: cfg, client: client}, nil
}

func (p *GeminiProvider) ModelID() string               { return p.config.Model }
func (p *GeminiProvider) GetContextWindow() int         { return contextWindowFor(p.config.Model) }
func (p *GeminiProvider) GetTokenCount(text string) int { return utils.EstimateTokens(text) }

func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Chat(ctx, []Message{{Role: "user", Content: "ping"}}, nil, CallConfig{})
	return err
}

func toGeminiContents(messages []Message) ([]*genai.Content, string) {
	var systemPrompt string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += m.Content
			continue
		}
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents, systemPrompt
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (p *GeminiProvider) genConfig(tools []ToolDefinition, systemPrompt string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.config.Temperature)),
		MaxOutputTokens: int32(p.config.MaxTokens),
		Tools:           toGeminiTools(tools),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	return cfg
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, callCfg CallConfig) (*Response, error) {
	contents, systemPrompt := toGeminiContents(messages)

	result, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, p.genConfig(tools, systemPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	resp := &Response{}
	if result.UsageMetadata != nil {
		resp.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
		resp.TokensUsed = int(result.UsageMetadata.TotalTokenCount)
	}
	for _, c := range result.Candidates {
		if c.Content == nil {
			continue
		}
		resp.FinishReason = string(c.FinishReason)
		for _, part := range c.Content.Parts {
			if part.Text != "" {
				resp.Text += part.Text
			}
			if part.FunctionCall != nil {
				raw, _ := json.Marshal(part.FunctionCall.Args)
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
					RawArgs:   string(raw),
				})
			}
		}
	}

	return resp, nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, callCfg CallConfig) (<-chan StreamChunk, error) {
	contents, systemPrompt := toGeminiContents(messages)
	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)
		var totalTokens int
		for result, err := range p.client.Models.GenerateContentStream(ctx, p.config.Model, contents, p.genConfig(tools, systemPrompt)) {
			if err != nil {
				outputCh <- StreamChunk{Type: "error", Error: err}
				return
			}
			if result.UsageMetadata != nil {
				totalTokens = int(result.UsageMetadata.TotalTokenCount)
			}
			for _, c := range result.Candidates {
				if c.Content == nil {
					continue
				}
				for _, part := range c.Content.Parts {
					if part.Text != "" {
						if callCfg.EnableThinking && part.Thought {
							outputCh <- StreamChunk{Type: "thinking", Text: "[THINKING]" + part.Text + "[/THINKING]"}
						} else {
							outputCh <- StreamChunk{Type: "text", Text: part.Text}
						}
					}
					if part.FunctionCall != nil {
						raw, _ := json.Marshal(part.FunctionCall.Args)
						call := ToolCall{Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args, RawArgs: string(raw)}
						outputCh <- StreamChunk{Type: "tool_call", ToolCall: &call}
					}
				}
			}
		}
		outputCh <- StreamChunk{Type: "done", Tokens: totalTokens}
	}()

	return outputCh, nil
}

// TextToImage synchronously returns image URLs (Imagen).
func (p *GeminiProvider) TextToImage(ctx context.Context, prompt string) (*MediaResult, error) {
	result, err := p.client.Models.GenerateImages(ctx, "imagen-4.0-generate-001", prompt, &genai.GenerateImagesConfig{NumberOfImages: 1})
	if err != nil {
		return nil, fmt.Errorf("gemini text-to-image failed: %w", err)
	}
	urls := make([]string, 0, len(result.GeneratedImages))
	for _, img := range result.GeneratedImages {
		if img.Image != nil && img.Image.GCSURI != "" {
			urls = append(urls, img.Image.GCSURI)
		}
	}
	return &MediaResult{URLs: urls}, nil
}

// TextToVideo submits an async Veo job, returning an operation name to poll.
func (p *GeminiProvider) TextToVideo(ctx context.Context, prompt string) (*MediaJob, error) {
	op, err := p.client.Models.GenerateVideos(ctx, "veo-3.0-generate-001", prompt, nil, &genai.GenerateVideosConfig{NumberOfVideos: 1})
	if err != nil {
		return nil, fmt.Errorf("gemini text-to-video submit failed: %w", err)
	}
	return &MediaJob{ID: op.Name}, nil
}

// ImageToVideo submits an async Veo job seeded with a source image.
func (p *GeminiProvider) ImageToVideo(ctx context.Context, imageURL, prompt string) (*MediaJob, error) {
	img := &genai.Image{GCSURI: imageURL}
	op, err := p.client.Models.GenerateVideos(ctx, "veo-3.0-generate-001", prompt, img, &genai.GenerateVideosConfig{NumberOfVideos: 1})
	if err != nil {
		return nil, fmt.Errorf("gemini image-to-video submit failed: %w", err)
	}
	return &MediaJob{ID: op.Name}, nil
}

// PollMedia checks an async Veo job's status.
func (p *GeminiProvider) PollMedia(ctx context.Context, job *MediaJob) (*MediaStatus, error) {
	op := &genai.GenerateVideosOperation{Name: job.ID}
	op, err := p.client.Operations.GetVideosOperation(ctx, op, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini poll failed: %w", err)
	}
	if !op.Done {
		return &MediaStatus{Done: false}, nil
	}
	if op.Error != nil {
		return &MediaStatus{Done: true, Error: op.Error.Message}, nil
	}
	var urls []string
	if op.Response != nil {
		for _, v := range op.Response.GeneratedVideos {
			if v.Video != nil && v.Video.URI != "" {
				urls = append(urls, v.Video.URI)
			}
		}
	}
	return &MediaStatus{Done: true, URLs: urls}, nil
}

func (p *GeminiProvider) TextToSpeech(ctx context.Context, text string) (*MediaResult, error) {
	return nil, fmt.Errorf("gemini: text-to-speech not wired on this provider")
}
