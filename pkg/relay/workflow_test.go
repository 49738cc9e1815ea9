package relay

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/agent-relay/pkg/a2a"
	"github.com/mikeboe/agent-relay/pkg/blog"
	"github.com/mikeboe/agent-relay/pkg/stream"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeInvoker struct {
	url       string
	reply     string
	err       error
	healthErr error
	inputs    []string
}

func (f *fakeInvoker) URL() string { return f.url }

func (f *fakeInvoker) Health(context.Context) error { return f.healthErr }

func (f *fakeInvoker) Discover(context.Context) (*a2a.AgentCard, error) {
	return &a2a.AgentCard{Name: f.url, URL: f.url, Version: "1"}, nil
}

func (f *fakeInvoker) Invoke(_ context.Context, text string) (stream.Result, error) {
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return stream.Result{}, f.err
	}
	return stream.AggregateStrings(f.reply), nil
}

var savedSummary = blog.Summary{
	Topic:         "Solar",
	Title:         "Solar Rising",
	File:          "out/blog_20250314_092653_solar_rising.md",
	ContentLength: 1200,
	Preview:       "## Intro",
}

func newTestWorkflow(research, blogAgent *fakeInvoker) *Workflow {
	w := NewWorkflow(research, blogAgent)
	w.Logger = quietLogger()
	w.Now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return w
}

func states(o *Outcome) []State {
	var s []State
	for _, t := range o.Transitions {
		s = append(s, t.To)
	}
	return s
}

func TestWorkflow_Run(t *testing.T) {
	research := &fakeInvoker{url: "r", reply: "Solar output doubled."}
	blogAgent := &fakeInvoker{url: "b", reply: savedSummary.String()}
	w := newTestWorkflow(research, blogAgent)

	var seen []Transition
	w.OnTransition = func(tr Transition) { seen = append(seen, tr) }

	out, err := w.Run(context.Background(), "  Solar  ")
	require.NoError(t, err)

	assert.Equal(t, Done, out.State)
	assert.Equal(t, []State{Researching, Relaying, Generating, Persisted, Done}, states(out))
	assert.Equal(t, out.Transitions, seen)
	assert.Equal(t, Idle, out.Transitions[0].From)
	assert.Equal(t, savedSummary.File, out.Transitions[3].Reason)

	assert.Equal(t, []string{"Solar"}, research.inputs)
	assert.Equal(t, []string{"Solar output doubled."}, blogAgent.inputs)
	assert.Equal(t, "Solar output doubled.", out.Research)
	assert.Equal(t, savedSummary.File, out.Artifact)
	assert.Equal(t, savedSummary, out.Summary)
	assert.Empty(t, out.Reason())
}

func TestWorkflow_Failures(t *testing.T) {
	tests := []struct {
		name         string
		topic        string
		research     *fakeInvoker
		blog         *fakeInvoker
		stage        string
		wantErr      error
		wantInReason string
		blogCalled   bool
	}{
		{
			name:     "empty topic",
			topic:    "  ",
			research: &fakeInvoker{},
			blog:     &fakeInvoker{},
			stage:    StagePreflight,
			wantErr:  ErrEmptyTopic,
		},
		{
			name:         "research agent down",
			topic:        "t",
			research:     &fakeInvoker{url: "http://localhost:8003", healthErr: a2a.ErrRemoteUnavailable},
			blog:         &fakeInvoker{},
			stage:        StagePreflight,
			wantErr:      a2a.ErrRemoteUnavailable,
			wantInReason: "http://localhost:8003",
		},
		{
			name:         "research error status",
			topic:        "t",
			research:     &fakeInvoker{err: &a2a.StatusError{StatusCode: 502, Body: "bad gateway"}},
			blog:         &fakeInvoker{},
			stage:        StageResearch,
			wantInReason: "HTTP 502",
		},
		{
			name:     "research empty",
			topic:    "t",
			research: &fakeInvoker{reply: "   "},
			blog:     &fakeInvoker{},
			stage:    StageResearch,
			wantErr:  a2a.ErrEmptyResult,
		},
		{
			name:     "only envelopes without text",
			topic:    "t",
			research: &fakeInvoker{reply: `{"content":"{\"statusUpdate\":{\"status\":{\"state\":\"completed\"}}}"}`},
			blog:     &fakeInvoker{},
			stage:    StageRelay,
			wantErr:  a2a.ErrEmptyResult,
		},
		{
			name:         "blog error",
			topic:        "t",
			research:     &fakeInvoker{reply: "text"},
			blog:         &fakeInvoker{err: &a2a.StatusError{StatusCode: 500, Body: "blog generation failed"}},
			stage:        StageBlog,
			wantInReason: "HTTP 500",
			blogCalled:   true,
		},
		{
			name:         "blog reply without file",
			topic:        "t",
			research:     &fakeInvoker{reply: "text"},
			blog:         &fakeInvoker{reply: "Sorry, I could not write that."},
			stage:        StageBlog,
			wantErr:      ErrNoArtifact,
			wantInReason: "Sorry",
			blogCalled:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorkflow(tt.research, tt.blog)

			out, err := w.Run(context.Background(), tt.topic)

			require.Error(t, err)
			var serr *StageError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.stage, serr.Stage)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			require.NotNil(t, out)
			assert.Equal(t, Failed, out.State)
			assert.Equal(t, Failed, out.Transitions[len(out.Transitions)-1].To)
			assert.Contains(t, out.Reason(), tt.stage+" stage failed")
			if tt.wantInReason != "" {
				assert.Contains(t, out.Reason(), tt.wantInReason)
			}
			assert.Empty(t, out.Artifact)
			assert.Equal(t, tt.blogCalled, len(tt.blog.inputs) > 0)
		})
	}
}

func TestWorkflow_SkipHealthCheck(t *testing.T) {
	research := &fakeInvoker{reply: "text", healthErr: errors.New("no /health")}
	w := newTestWorkflow(research, &fakeInvoker{reply: savedSummary.String(), healthErr: errors.New("no /health")})
	w.SkipHealthCheck = true

	out, err := w.Run(context.Background(), "t")

	require.NoError(t, err)
	assert.Equal(t, Done, out.State)
}

func TestPreview(t *testing.T) {
	short := "A short report."
	assert.Equal(t, short, Preview("  "+short+"\n"))

	sentence := strings.Repeat("a", 249) + "."
	long := sentence + sentence + sentence
	assert.Equal(t, sentence+sentence, Preview(long))
	assert.Len(t, Preview(long), 500)

	early := strings.Repeat("b", 99) + "." + strings.Repeat("c", 600)
	assert.Equal(t, early[:500]+"...", Preview(early))
}
