package clients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// MaxAttempts is how many times GenerateWithRetry calls the model.
const MaxAttempts = 3

// RetryBackoff is the base delay between attempts; attempt n waits n times
// this long.
var RetryBackoff = time.Second

// GenerateWithRetry calls the model and checks the first choice with
// validator, retrying on model errors, empty answers and validation failures.
// A nil validator accepts any answer.
func GenerateWithRetry(ctx context.Context, llm llms.Model, logger *slog.Logger, prompts []llms.MessageContent, validator func(string) error, opts ...llms.CallOption) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error

	for i := 0; i < MaxAttempts; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(RetryBackoff * time.Duration(i)): // Linear backoff
			}
		}

		resp, err := llm.GenerateContent(ctx, prompts, opts...)
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if validator != nil {
			if err := validator(content); err != nil {
				lastErr = fmt.Errorf("validation failed: %w", err)
				continue
			}
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", MaxAttempts, lastErr)
}

// NotEmpty rejects answers that are blank after trimming.
func NotEmpty(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("empty response")
	}
	return nil
}
