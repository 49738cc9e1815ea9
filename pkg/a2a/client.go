package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/mikeboe/agent-relay/pkg/stream"
)

// Client talks to one remote agent.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient returns a client for the agent at baseURL. A nil httpClient gets
// a pooled client with the default timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
		Logger:  slog.Default(),
	}
}

// URL returns the agent's base URL.
func (c *Client) URL() string {
	return c.BaseURL
}

// Discover fetches and validates the agent's card.
func (c *Client) Discover(ctx context.Context) (*AgentCard, error) {
	body, err := c.get(ctx, CardPath)
	if err != nil {
		return nil, err
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("%w: agent card: %w", ErrInvalidMessage, err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return &card, nil
}

// Health probes the agent's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, HealthPath)
	return err
}

// Invoke sends text to the agent and assembles the streamed reply.
//
// If the stream breaks after some text arrived, that text is returned without
// an error. A failed task state yields ErrAgentFailed even when text arrived
// first. A reply with no text yields ErrEmptyResult alongside the (empty)
// result so callers can still inspect what was received.
func (c *Client) Invoke(ctx context.Context, text string) (stream.Result, error) {
	payload, err := json.Marshal(NewSendRequest(text))
	if err != nil {
		return stream.Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+StreamPath, bytes.NewReader(payload))
	if err != nil {
		return stream.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.Logger.Info("Invoking agent", "url", c.BaseURL, "input_chars", len(text))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return stream.Result{}, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stream.Result{}, newStatusError(resp.StatusCode, body)
	}

	res, err := stream.Aggregate(chunksOf(resp))
	if err != nil {
		if ctx.Err() != nil {
			return stream.Result{}, ctx.Err()
		}
		if res.Text == "" {
			return res, fmt.Errorf("%w: stream: %w", ErrRemoteUnavailable, err)
		}
		c.Logger.Warn("Stream ended early, keeping partial text",
			"url", c.BaseURL, "error", err, "chars", len(res.Text))
	}

	if res.Failed {
		c.Logger.Error("Agent reported failure", "url", c.BaseURL, "failure", stream.Snippet(res.Failure, 200),
			"discarded_chars", len(res.Text))
		return res, fmt.Errorf("%w: %s", ErrAgentFailed, res.Failure)
	}

	if n := res.Degraded(); n > 0 {
		c.Logger.Warn("Kept unrecognized stream fragments verbatim",
			"url", c.BaseURL, "degraded", n, "recognized", res.Recognized())
	}
	if strings.TrimSpace(res.Text) == "" {
		return res, ErrEmptyResult
	}

	c.Logger.Info("Agent replied", "url", c.BaseURL, "chunks", res.Chunks, "chars", len(res.Text),
		"preview", stream.Snippet(res.Text, 200))
	return res, nil
}

// chunksOf picks a chunk reader from the response content type: server-sent
// events when announced, raw frames otherwise.
func chunksOf(resp *http.Response) iter.Seq2[string, error] {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return stream.SSE(resp.Body)
	}
	return stream.Frames(resp.Body)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newStatusError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return body, nil
}
