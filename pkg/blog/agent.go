package blog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/mikeboe/agent-relay/pkg/a2a"
	"github.com/mikeboe/agent-relay/pkg/stream"
)

// ErrNoResearch is returned when nothing usable is left of the input after
// cleaning.
var ErrNoResearch = errors.New("no research content to write about")

const (
	defaultTopic  = "Blog Post Topic"
	maxTopicRunes = 150
)

// Agent serves the blog pipeline as an a2a.Agent.
type Agent struct {
	Pipeline *Pipeline
	Logger   *slog.Logger
}

// NewAgent wraps p as an agent that can be served over A2A.
func NewAgent(p *Pipeline) *Agent {
	return &Agent{Pipeline: p, Logger: slog.Default()}
}

func (a *Agent) Card() a2a.AgentCard {
	return a2a.AgentCard{
		Name:               "BlogPost Generator",
		Description:        "Turns research content into an SEO-friendly markdown blog post and saves it to disk.",
		Version:            "2.0.0",
		DefaultInputModes:  []string{"text", "text/plain", "application/json"},
		DefaultOutputModes: []string{"text", "text/plain", "text/markdown"},
		Skills: []a2a.Skill{
			{
				ID:          "blog-generation",
				Name:        "Blog Post Generation",
				Description: "Transform research content into an engaging blog post with markdown structure and front matter.",
				Tags:        []string{"Content", "Blog", "SEO", "Writing"},
				Examples: []string{
					"Generate a blog post from this research about AI trends",
					"Write a comprehensive blog post about quantum computing applications",
				},
			},
		},
		Detail: &a2a.Detail{
			InteractionMode: "single-turn",
			UserGreeting:    "Send me research content and I'll write and save a blog post about it.",
			Framework:       "langchaingo",
			Tools: []a2a.DetailTool{
				{Name: "Title and content generation", Description: "Two Gemini calls: a title from the research, then the full post"},
				{Name: "File output", Description: "Markdown file with YAML front matter and an attribution line"},
			},
			Limitations: []string{"Requires research content as input"},
		},
	}
}

// Handle cleans the research text, runs the pipeline and replies with a
// summary of the saved post.
func (a *Agent) Handle(ctx context.Context, input string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		research := a.prepare(input)
		if research == "" {
			yield("", ErrNoResearch)
			return
		}

		state := &State{Topic: DeriveTopic(research), ResearchContent: research}
		if err := a.Pipeline.Run(ctx, state); err != nil {
			yield("", fmt.Errorf("blog generation failed: %w", err))
			return
		}

		yield(NewSummary(state).String(), nil)
	}
}

// prepare strips protocol envelopes that leaked into the input.
func (a *Agent) prepare(input string) string {
	cleaned := stream.CleanEnvelopes(input)
	switch {
	case cleaned.Changed && cleaned.Degraded:
		a.Logger.Warn("Recovered research text by field scan",
			"input_chars", len(input), "chars", len(cleaned.Text))
	case cleaned.Changed:
		a.Logger.Info("Removed status update envelopes from input",
			"input_chars", len(input), "chars", len(cleaned.Text))
	case cleaned.Degraded:
		a.Logger.Warn("Input mentions status updates but none could be read",
			"preview", stream.Snippet(input, 200))
	}
	return strings.TrimSpace(cleaned.Text)
}

// DeriveTopic takes the first line of the research as the topic, cut to 150
// characters.
func DeriveTopic(research string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(research), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultTopic
	}
	if r := []rune(line); len(r) > maxTopicRunes {
		return string(r[:maxTopicRunes]) + "..."
	}
	return line
}
