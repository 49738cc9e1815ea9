// Package relay runs the two-stage research to blog workflow against remote
// agents.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mikeboe/agent-relay/pkg/a2a"
	"github.com/mikeboe/agent-relay/pkg/blog"
	"github.com/mikeboe/agent-relay/pkg/stream"
)

// State is a step of the workflow state machine.
type State string

const (
	// Idle is the state before the first stage starts.
	Idle State = "idle"
	// Researching waits for the research agent's reply.
	Researching State = "researching"
	// Relaying cleans the research text before it is handed on.
	Relaying State = "relaying"
	// Generating waits for the blog agent to write the post.
	Generating State = "generating"
	// Persisted means the blog agent reported a saved file.
	Persisted State = "persisted"
	// Done is the terminal state of a successful run.
	Done State = "done"
	// Failed is the terminal state of a run that stopped at some stage.
	Failed State = "failed"
)

// Stage names used in StageError.
const (
	StagePreflight = "preflight"
	StageResearch  = "research"
	StageRelay     = "relay"
	StageBlog      = "blog"
)

var (
	ErrEmptyTopic = errors.New("topic is empty")
	// ErrNoArtifact means the blog agent replied without reporting a saved
	// file.
	ErrNoArtifact = errors.New("blog agent did not report a saved file")
)

// StageError is the failure that moved a workflow to Failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Invoker is a remote agent the workflow can call. *a2a.Client implements
// it.
type Invoker interface {
	URL() string
	Health(ctx context.Context) error
	Discover(ctx context.Context) (*a2a.AgentCard, error)
	Invoke(ctx context.Context, text string) (stream.Result, error)
}

// Transition records one state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Outcome is everything a workflow run produced, whether it finished or
// failed.
type Outcome struct {
	Topic       string
	State       State
	Research    string
	Summary     blog.Summary
	Artifact    string
	Transitions []Transition
	Err         error
}

// Reason is the failure message, or "" for a successful run.
func (o *Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Workflow relays a topic through a research agent and then a blog agent.
// The stages run strictly one after the other.
type Workflow struct {
	Research Invoker
	Blog     Invoker
	Logger   *slog.Logger
	// SkipHealthCheck disables the liveness probe of both agents before the
	// first stage.
	SkipHealthCheck bool
	OnTransition    func(Transition)
	Now             func() time.Time
}

// NewWorkflow returns a workflow that logs to slog.Default and health-checks
// both agents before running.
func NewWorkflow(research, blog Invoker) *Workflow {
	return &Workflow{
		Research: research,
		Blog:     blog,
		Logger:   slog.Default(),
		Now:      time.Now,
	}
}

// run is the state of one Run call.
type run struct {
	w   *Workflow
	out *Outcome
}

func (r *run) move(to State, reason string) {
	t := Transition{From: r.out.State, To: to, At: r.w.Now(), Reason: reason}
	r.out.State = to
	r.out.Transitions = append(r.out.Transitions, t)
	r.w.Logger.Info("Workflow state", "from", t.From, "to", t.To)
	if r.w.OnTransition != nil {
		r.w.OnTransition(t)
	}
}

func (r *run) fail(stage string, err error) (*Outcome, error) {
	serr := &StageError{Stage: stage, Err: err}
	r.out.Err = serr
	r.move(Failed, serr.Error())
	r.w.Logger.Error("Workflow failed", "stage", stage, "error", err)
	return r.out, serr
}

// Run executes the workflow for topic. The returned Outcome is never nil.
// On failure the error is a *StageError and Outcome.State is Failed.
func (w *Workflow) Run(ctx context.Context, topic string) (*Outcome, error) {
	r := &run{w: w, out: &Outcome{Topic: strings.TrimSpace(topic), State: Idle}}

	if r.out.Topic == "" {
		return r.fail(StagePreflight, ErrEmptyTopic)
	}
	if !w.SkipHealthCheck {
		for _, agent := range []Invoker{w.Research, w.Blog} {
			if err := agent.Health(ctx); err != nil {
				return r.fail(StagePreflight, fmt.Errorf("agent at %s is not reachable: %w", agent.URL(), err))
			}
		}
	}

	r.move(Researching, "")
	w.announce(ctx, w.Research)
	res, err := w.Research.Invoke(ctx, r.out.Topic)
	if err != nil {
		return r.fail(StageResearch, err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return r.fail(StageResearch, a2a.ErrEmptyResult)
	}

	r.move(Relaying, "")
	research := w.clean(res.Text)
	if research == "" {
		return r.fail(StageRelay, fmt.Errorf("%w: nothing left after removing protocol envelopes", a2a.ErrEmptyResult))
	}
	r.out.Research = research
	w.Logger.Info("Research assembled", "chars", len(research), "preview", Preview(research))

	r.move(Generating, "")
	w.announce(ctx, w.Blog)
	reply, err := w.Blog.Invoke(ctx, research)
	if err != nil {
		return r.fail(StageBlog, err)
	}
	summary, ok := blog.ParseSummary(reply.Text)
	if !ok {
		return r.fail(StageBlog, fmt.Errorf("%w: %s", ErrNoArtifact, stream.Snippet(strings.TrimSpace(reply.Text), 200)))
	}
	r.out.Summary = summary
	r.out.Artifact = summary.File

	r.move(Persisted, summary.File)
	r.move(Done, "")
	return r.out, nil
}

// clean strips statusUpdate envelopes that leaked into the research text.
func (w *Workflow) clean(text string) string {
	cleaned := stream.CleanEnvelopes(text)
	if cleaned.Changed {
		w.Logger.Info("Removed leaked envelopes from research", "before", len(text), "after", len(cleaned.Text))
	}
	if cleaned.Degraded {
		w.Logger.Warn("Research text envelopes only partly recovered", "preview", stream.Snippet(text, 200))
	}
	return strings.TrimSpace(cleaned.Text)
}

// announce logs the agent's name. Discovery failures are not fatal.
func (w *Workflow) announce(ctx context.Context, agent Invoker) {
	card, err := agent.Discover(ctx)
	if err != nil {
		w.Logger.Warn("Agent card unavailable", "url", agent.URL(), "error", err)
		return
	}
	w.Logger.Info("Calling agent", "name", card.Name, "version", card.Version, "url", agent.URL())
}

const (
	previewMax = 500
	previewMin = 200
)

// Preview shortens text to at most 500 characters, ending at the last full
// sentence that leaves at least 200.
func Preview(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= previewMax {
		return string(r)
	}
	cut := string(r[:previewMax])
	if i := strings.LastIndex(cut, "."); i >= 0 && len([]rune(cut[:i])) >= previewMin {
		return cut[:i+1]
	}
	return cut + "..."
}
