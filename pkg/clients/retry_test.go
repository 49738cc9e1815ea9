package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel answers GenerateContent from a fixed list of replies.
type scriptedModel struct {
	replies []string
	errs    []error
	calls   int
}

func (m *scriptedModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.replies) {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.replies[i]}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func prompt(text string) []llms.MessageContent {
	return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, text)}
}

func TestGenerateWithRetry(t *testing.T) {
	RetryBackoff = 0

	t.Run("first answer accepted", func(t *testing.T) {
		m := &scriptedModel{replies: []string{"ok"}}
		got, err := GenerateWithRetry(context.Background(), m, quietLogger(), prompt("hi"), NotEmpty)
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 1, m.calls)
	})

	t.Run("retries model errors and invalid answers", func(t *testing.T) {
		m := &scriptedModel{
			replies: []string{"", "  ", "third time"},
			errs:    []error{errors.New("quota"), nil, nil},
		}
		got, err := GenerateWithRetry(context.Background(), m, quietLogger(), prompt("hi"), NotEmpty)
		require.NoError(t, err)
		assert.Equal(t, "third time", got)
		assert.Equal(t, 3, m.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		m := &scriptedModel{}
		_, err := GenerateWithRetry(context.Background(), m, quietLogger(), prompt("hi"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
		assert.Equal(t, MaxAttempts, m.calls)
	})

	t.Run("validator error is wrapped", func(t *testing.T) {
		sentinel := fmt.Errorf("not json")
		m := &scriptedModel{replies: []string{"a", "b", "c"}}
		_, err := GenerateWithRetry(context.Background(), m, quietLogger(), prompt("hi"), func(string) error { return sentinel })
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		RetryBackoff = 1 << 40
		defer func() { RetryBackoff = 0 }()

		ctx, cancel := context.WithCancel(context.Background())
		m := &scriptedModel{errs: []error{errors.New("boom")}}
		cancel()
		_, err := GenerateWithRetry(ctx, m, quietLogger(), prompt("hi"), nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, m.calls)
	})
}
