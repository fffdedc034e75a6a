package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/swarmcore/llms"
)

type stubClient struct {
	response *llms.Response
	err      error
}

func (s *stubClient) Chat(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, cfg llms.CallConfig) (*llms.Response, error) {
	return s.response, s.err
}
func (s *stubClient) ChatStream(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition, cfg llms.CallConfig) (<-chan llms.StreamChunk, error) {
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
func (s *stubClient) GetTokenCount(text string) int                                            { return len(text) / 4 }
func (s *stubClient) ModelID() string                                                          { return "stub-model" }

func TestReviewer_Assess_ParsesJSONScore(t *testing.T) {
	client := &stubClient{response: &llms.Response{Text: "```json\n{\"score\": 8.5, \"dimensions\": {\"accuracy\": 9}}\n```"}}
	r := New(client, Config{})

	report := r.Assess(context.Background(), "summarize the doc", "writer", "the summary", nil)
	assert.Equal(t, 8.5, report.Score)
	assert.Equal(t, Good, report.Level)
	assert.True(t, report.Passed)
}

func TestReviewer_Assess_FailsOpenOnCallError(t *testing.T) {
	client := &stubClient{err: errors.New("connection refused")}
	r := New(client, Config{Threshold: 6.0})

	report := r.Assess(context.Background(), "task", "role", "output", nil)
	assert.Equal(t, 5.0, report.Score)
	assert.Equal(t, Acceptable, report.Level)
}

func TestReviewer_Assess_FailsOpenOnUnparsableResponse(t *testing.T) {
	client := &stubClient{response: &llms.Response{Text: "not json at all"}}
	r := New(client, Config{})

	report := r.Assess(context.Background(), "task", "role", "output", nil)
	assert.Equal(t, Acceptable, report.Level)
}

func TestReviewer_Review_RetriesUntilBudgetExhausted(t *testing.T) {
	r := New(&stubClient{}, Config{Threshold: 6.0, MaxRetryOnFailure: 2})
	failing := Report{Score: 2, Passed: false}

	first := r.Review("s1", failing, 0)
	require.Equal(t, Retry, first.Action)

	second := r.Review("s1", failing, 1)
	require.Equal(t, Retry, second.Action)

	third := r.Review("s1", failing, 2)
	assert.Equal(t, AcceptWithWarning, third.Action, "retry budget exhausted, gate fails open")
}

func TestReviewer_Review_AcceptsPassingReport(t *testing.T) {
	r := New(&stubClient{}, Config{})
	report := r.Review("s1", Report{Score: 9, Passed: true}, 0)
	assert.Equal(t, Accept, report.Action)
}
