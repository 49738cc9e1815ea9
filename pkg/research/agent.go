package research

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

// ErrNoTopic is returned for a blank research request.
var ErrNoTopic = errors.New("no research query provided")

// Agent serves a Researcher as an a2a.Agent.
type Agent struct {
	Researcher Researcher
	Framework  string
	Logger     *slog.Logger
}

// NewAgent serves r over A2A. framework is advertised in the agent card.
func NewAgent(r Researcher, framework string) *Agent {
	return &Agent{Researcher: r, Framework: framework, Logger: slog.Default()}
}

func (a *Agent) Card() a2a.AgentCard {
	return a2a.AgentCard{
		Name:               "DeepSearch Research Agent",
		Description:        "Researches a topic on arXiv and writes a structured markdown report.",
		Version:            "2.0.0",
		DefaultInputModes:  []string{"text", "text/plain", "application/json"},
		DefaultOutputModes: []string{"text", "text/plain", "text/markdown"},
		Skills: []a2a.Skill{
			{
				ID:          "comprehensive-research",
				Name:        "Comprehensive Research",
				Description: "Topic research over arXiv papers with relevance filtering and a structured report.",
				Tags:        []string{"Research", "Analysis", "arXiv"},
				Examples: []string{
					"Research the latest trends in artificial intelligence for 2025",
					"Analyze the current state of quantum computing technology",
				},
			},
			{
				ID:          "data-synthesis",
				Name:        "Data Synthesis & Analysis",
				Description: "Synthesize findings from several papers into one report with key insights and trends.",
				Tags:        []string{"Synthesis", "Analysis", "Research"},
				Examples: []string{
					"Synthesize findings from recent papers on battery chemistry",
				},
			},
		},
		Detail: &a2a.Detail{
			InteractionMode: "single-turn",
			UserGreeting:    "Send me any research topic and I'll return a report built from arXiv papers.",
			Framework:       a.Framework,
			Tools: []a2a.DetailTool{
				{Name: "arXiv search", Description: "Paper search through the arXiv export API"},
				{Name: "Source index", Description: "pgvector index of paper text for semantic lookup, when a database is configured"},
			},
			Capabilities: []string{"Comprehensive Research", "Data Synthesis"},
			Limitations: []string{
				"Sources are limited to arXiv",
				"Research quality depends on available sources",
			},
		},
	}
}

// Handle researches the input topic and forwards the report as it arrives.
func (a *Agent) Handle(ctx context.Context, input string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		topic := strings.TrimSpace(input)
		if topic == "" {
			yield("", ErrNoTopic)
			return
		}
		a.Logger.Info("Research request", "topic", stream.Snippet(topic, 100))

		for text, err := range a.Researcher.Research(ctx, topic) {
			if err != nil {
				yield("", fmt.Errorf("research failed: %w", err))
				return
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}
