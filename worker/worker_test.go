package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/swarmcore/board"
	"github.com/kadirpekel/swarmcore/llms"
	"github.com/kadirpekel/swarmcore/roles"
	"github.com/kadirpekel/swarmcore/tools"
)

type stubClient struct {
	responses []*llms.Response
	errs      []error
	call      int
	modelID   string
}

func (s *stubClient) Chat(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition, cfg llms.CallConfig) (*llms.Response, error) {
	i := s.call
	s.call++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &llms.Response{Text: "done"}, nil
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

func TestWorker_Run_SuccessOnFirstAttempt(t *testing.T) {
	client := &stubClient{responses: []*llms.Response{{Text: "the answer", TokensUsed: 10}}}
	w := New("w1", roles.For("writer"), client, tools.NewToolRegistry())

	result := w.Run(context.Background(), board.SubTask{ID: "t1"}, nil)
	require.True(t, result.Success)
	assert.Equal(t, "the answer", result.Output)
	assert.Equal(t, Completed, w.Status())
}

func TestWorker_Run_RetriesThenSucceeds(t *testing.T) {
	client := &stubClient{
		errs:      []error{errors.New("transient"), nil},
		responses: []*llms.Response{nil, {Text: "recovered"}},
	}
	w := New("w1", roles.For("writer"), client, tools.NewToolRegistry())

	result := w.Run(context.Background(), board.SubTask{ID: "t1"}, nil)
	require.True(t, result.Success)
	assert.Equal(t, "recovered", result.Output)
}

func TestWorker_Run_FailsAfterExhaustingOuterRetries(t *testing.T) {
	client := &stubClient{errs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	w := New("w1", roles.For("writer"), client, tools.NewToolRegistry())

	result := w.Run(context.Background(), board.SubTask{ID: "t1"}, nil)
	require.False(t, result.Success)
	assert.Equal(t, Failed, w.Status())
}

func TestWorker_StateMachine_RejectsInvalidTransition(t *testing.T) {
	w := New("w1", roles.For("writer"), &stubClient{}, tools.NewToolRegistry())
	require.NoError(t, w.setStatus(Running))
	require.NoError(t, w.setStatus(Completed))
	// Completed has no outgoing transitions.
	err := w.setStatus(Running)
	require.Error(t, err)
	var invalidErr *InvalidTransitionError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestWorker_Stop_SetsStopRequested(t *testing.T) {
	w := New("w1", roles.For("writer"), &stubClient{}, tools.NewToolRegistry())
	w.Stop()
	assert.True(t, w.stopRequested())
}

func TestParseTextToolCalls_JSONArrayFormat(t *testing.T) {
	content := "I'll call a tool.\n```json\n[{\"name\": \"search\", \"arguments\": {\"q\": \"go generics\"}}]\n```"
	calls := parseTextToolCalls(content)
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, "go generics", calls[0].Arguments["q"])
}

func TestParseTextToolCalls_NoMarkersReturnsNil(t *testing.T) {
	calls := parseTextToolCalls("just plain text, no tool calls here")
	assert.Nil(t, calls)
}

func TestParseTextToolCalls_EmptyContent(t *testing.T) {
	assert.Nil(t, parseTextToolCalls(""))
}
