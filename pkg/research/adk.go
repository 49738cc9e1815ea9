package research

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"
)

const (
	appName   = "agent-relay-research"
	agentName = "deep_researcher"
	userID    = "relay"
)

const instruction = `You are an expert researcher. Research the topic you are given.
ALWAYS call search_arxiv first, with at least two different queries. When search_sources is available, use it to look up details in the papers you found.
Then write a detailed research report in Markdown with these sections: Introduction, Key Findings, Trends and Open Questions, Conclusion.
Cite papers by title. End with a "## Sources" list of the papers you used with their PDF links.`

// ADKResearcher answers research requests with an ADK LLM agent that can
// call the research tools.
type ADKResearcher struct {
	Agent  agent.Agent
	Logger *slog.Logger
}

// NewADKResearcher builds a Gemini-backed agent that can call toolset.
func NewADKResearcher(ctx context.Context, apiKey, modelName string, toolset tool.Toolset) (*ADKResearcher, error) {
	modelClient, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	researchAgent, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       modelClient,
		Description: "Researches a topic using arXiv and indexed paper text and writes a report.",
		Instruction: instruction,
		Toolsets:    []tool.Toolset{toolset},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &ADKResearcher{Agent: researchAgent, Logger: slog.Default()}, nil
}

// Research runs the agent in a fresh session and yields its text as it
// streams.
func (r *ADKResearcher) Research(ctx context.Context, topic string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sessionSvc := session.InMemoryService()
		sessionID := uuid.NewString()

		if _, err := sessionSvc.Create(ctx, &session.CreateRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		}); err != nil {
			yield("", fmt.Errorf("failed to create session: %w", err))
			return
		}

		rn, err := runner.New(runner.Config{
			AppName:        appName,
			Agent:          r.Agent,
			SessionService: sessionSvc,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to create runner: %w", err))
			return
		}

		userContent := &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: "Research the topic: " + topic}},
		}

		r.Logger.Info("Starting agent run", "session_id", sessionID, "topic", topic)
		var tx textStream
		var total int
		for event, err := range rn.Run(ctx, userID, sessionID, userContent, agent.RunConfig{
			StreamingMode: agent.StreamingModeSSE,
		}) {
			if err != nil {
				r.Logger.Error("Agent runner error", "error", err)
				yield("", err)
				return
			}
			logToolActivity(r.Logger, event)

			text := tx.next(event)
			if text == "" {
				continue
			}
			total += len(text)
			if !yield(text, nil) {
				return
			}
		}
		r.Logger.Info("Agent run completed", "chars", total)
	}
}

// textStream picks the text to forward from runner events. In SSE mode the
// model sends partial events followed by one final event repeating the whole
// text, so the final event is dropped when partials were already forwarded.
type textStream struct {
	streamed bool
}

func (s *textStream) next(event *session.Event) string {
	if event == nil {
		return ""
	}
	text := eventText(event)
	if event.LLMResponse.Partial {
		if text != "" {
			s.streamed = true
		}
		return text
	}
	if s.streamed {
		s.streamed = false
		return ""
	}
	return text
}

func eventText(event *session.Event) string {
	content := event.LLMResponse.Content
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func logToolActivity(logger *slog.Logger, event *session.Event) {
	if event == nil || event.LLMResponse.Content == nil {
		return
	}
	for _, part := range event.LLMResponse.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			logger.Info("Agent tool call", "tool", part.FunctionCall.Name)
		}
		if part.FunctionResponse != nil {
			logger.Info("Agent tool result", "tool", part.FunctionResponse.Name)
		}
	}
}
