package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/swarmcore/llms"
	"github.com/kadirpekel/swarmcore/quality"
	"github.com/kadirpekel/swarmcore/tools"
)

type stubClient struct {
	responses []*llms.Response
	call      int
	modelID   string
	delay     time.Duration // simulates a slow LLM call, honoring ctx cancellation
}

func (s *stubClient) next() *llms.Response {
	i := s.call
	s.call++
	if i < len(s.responses) {
		return s.responses[i]
	}
	return &llms.Response{Text: "ok"}
}

func (s *stubClient) Chat(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition, cfg llms.CallConfig) (*llms.Response, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.next(), nil
}
func (s *stubClient) ChatStream(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition, cfg llms.CallConfig) (<-chan llms.StreamChunk, error) {
	return nil, errors.New("not implemented")
}
func (s *stubClient) TextToImage(ctx context.Context, prompt string) (*llms.MediaResult, error) { return nil, nil }
func (s *stubClient) TextToVideo(ctx context.Context, prompt string) (*llms.MediaJob, error)     { return nil, nil }
func (s *stubClient) ImageToVideo(ctx context.Context, imageURL, prompt string) (*llms.MediaJob, error) {
	return nil, nil
}
func (s *stubClient) PollMedia(ctx context.Context, job *llms.MediaJob) (*llms.MediaStatus, error) {
	return nil, nil
}
func (s *stubClient) TextToSpeech(ctx context.Context, text string) (*llms.MediaResult, error) { return nil, nil }
func (s *stubClient) HealthCheck(ctx context.Context) error                                    { return nil }
func (s *stubClient) GetContextWindow() int                                                    { return 100000 }
func (s *stubClient) GetTokenCount(text string) int                                             { return len(text) / 4 }
func (s *stubClient) ModelID() string {
	if s.modelID != "" {
		return s.modelID
	}
	return "gpt-4o-mini"
}

func TestRun_LinearPlan_Completes(t *testing.T) {
	client := &stubClient{responses: []*llms.Response{
		{Text: "first step done"},
		{Text: "second step done"},
	}}

	plan := Plan{RefinedTask: "demo"}
	plan.ExecutionFlow.Steps = map[string]Step{
		"s1": {StepID: "s1", StepNumber: 1, Description: "do the first thing", AgentType: "writer"},
		"s2": {StepID: "s2", StepNumber: 2, Description: "do the second thing", AgentType: "writer", Dependencies: []string{"s1"}},
	}

	result, err := Run(context.Background(), "job-1", plan, Config{
		LLMClients:   map[string]llms.Client{"default": client},
		ToolRegistry: tools.NewToolRegistry(),
	})
	require.NoError(t, err)
	assert.True(t, result.Aggregation.OverallSuccess)
	assert.Equal(t, 2, result.Summary.Completed)
}

func TestRun_QualityGate_RetriesThenAccepts(t *testing.T) {
	worker := &stubClient{responses: []*llms.Response{
		{Text: "poor answer"},
		{Text: "much better answer"},
	}}
	reviewer := &stubClient{responses: []*llms.Response{
		{Text: `{"score": 3, "dimensions": {}}`},
		{Text: `{"score": 9, "dimensions": {}}`},
	}}

	plan := Plan{RefinedTask: "demo"}
	plan.ExecutionFlow.Steps = map[string]Step{
		"s1": {StepID: "s1", StepNumber: 1, Description: "answer the question", AgentType: "writer"},
	}

	result, err := Run(context.Background(), "job-1", plan, Config{
		LLMClients:   map[string]llms.Client{"default": worker},
		ToolRegistry: tools.NewToolRegistry(),
		Reviewer:     quality.New(reviewer, quality.Config{Threshold: 6.0, MaxRetryOnFailure: 2}),
	})
	require.NoError(t, err)
	assert.True(t, result.Aggregation.OverallSuccess)
	resolved := result.Aggregation.Resolved["s1"]
	assert.Equal(t, "much better answer", resolved.Output)
}

func TestRun_AgentTimeout_FailsSlowWorker(t *testing.T) {
	client := &stubClient{delay: 200 * time.Millisecond, responses: []*llms.Response{{Text: "too slow"}}}

	plan := Plan{RefinedTask: "demo"}
	plan.ExecutionFlow.Steps = map[string]Step{
		"s1": {StepID: "s1", StepNumber: 1, Description: "do something slow", AgentType: "writer"},
	}

	result, err := Run(context.Background(), "job-1", plan, Config{
		LLMClients:   map[string]llms.Client{"default": client},
		ToolRegistry: tools.NewToolRegistry(),
		AgentTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.False(t, result.Aggregation.OverallSuccess)
	resolved := result.Aggregation.Resolved["s1"]
	assert.False(t, resolved.Success)
}

func TestSanitizePlan_DropsUnknownDependencies(t *testing.T) {
	plan := Plan{}
	plan.ExecutionFlow.Steps = map[string]Step{
		"s1": {StepID: "s1", Dependencies: []string{"ghost"}},
	}
	steps, _ := sanitizePlan(plan)
	require.Len(t, steps, 1)
	assert.Empty(t, steps[0].Dependencies)
}
