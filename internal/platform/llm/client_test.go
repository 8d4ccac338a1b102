package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply    string
	err      error
	prompts  []string
	lastOpts llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	m.lastOpts = opts
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestNewRequiresAPIKey(t *testing.T) {
	c, err := New(Config{Model: "gpt-4-turbo"}, nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCompletePassesOptions(t *testing.T) {
	model := &fakeModel{reply: "use a hash map"}
	c := newClient(model, Config{Timeout: time.Second}, nil)

	out, err := c.Complete(context.Background(), "hint please", Options{Temperature: 0.6})
	require.NoError(t, err)
	assert.Equal(t, "use a hash map", out)
	assert.Equal(t, []string{"hint please"}, model.prompts)
	assert.InDelta(t, 0.6, model.lastOpts.Temperature, 0.0001)
	assert.Equal(t, DefaultMaxTokens, model.lastOpts.MaxTokens)
}

func TestCompleteErrors(t *testing.T) {
	c := newClient(&fakeModel{err: errors.New("upstream 500")}, Config{}, nil)
	_, err := c.Complete(context.Background(), "x", Options{})
	assert.Error(t, err)

	c = newClient(&fakeModel{reply: "   "}, Config{}, nil)
	_, err = c.Complete(context.Background(), "x", Options{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCompleteHonoursRateLimit(t *testing.T) {
	c := newClient(&fakeModel{reply: "ok"}, Config{RequestsPerMinute: 1}, nil)

	_, err := c.Complete(context.Background(), "first", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, "second", Options{})
	assert.Error(t, err)
}
