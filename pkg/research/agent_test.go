package research

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

type fakeResearcher struct {
	pieces []string
	err    error
	topics []string
}

func (r *fakeResearcher) Research(_ context.Context, topic string) iter.Seq2[string, error] {
	r.topics = append(r.topics, topic)
	return func(yield func(string, error) bool) {
		for _, p := range r.pieces {
			if !yield(p, nil) {
				return
			}
		}
		if r.err != nil {
			yield("", r.err)
		}
	}
}

func run(a *Agent, input string) ([]string, error) {
	var out []string
	for text, err := range a.Handle(context.Background(), input) {
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
	return out, nil
}

func TestAgent_Handle(t *testing.T) {
	r := &fakeResearcher{pieces: []string{"# Report", "\n\nBody"}}
	a := NewAgent(r, "test")
	a.Logger = quietLogger()

	out, err := run(a, "  quantum computing \n")

	require.NoError(t, err)
	assert.Equal(t, []string{"# Report", "\n\nBody"}, out)
	assert.Equal(t, []string{"quantum computing"}, r.topics)
}

func TestAgent_EmptyTopic(t *testing.T) {
	r := &fakeResearcher{}
	a := NewAgent(r, "test")
	a.Logger = quietLogger()

	_, err := run(a, " \n\t")

	assert.ErrorIs(t, err, ErrNoTopic)
	assert.Empty(t, r.topics)
}

func TestAgent_ResearchFailure(t *testing.T) {
	a := NewAgent(&fakeResearcher{pieces: []string{"partial"}, err: errors.New("model overloaded")}, "test")
	a.Logger = quietLogger()

	out, err := run(a, "topic")

	assert.Equal(t, []string{"partial"}, out)
	assert.EqualError(t, err, "research failed: model overloaded")
}

func TestAgent_Card(t *testing.T) {
	card := NewAgent(nil, "Google ADK").Card()
	card.URL = "http://localhost:8003"

	require.NoError(t, card.Validate())
	assert.True(t, card.HasSkill("comprehensive-research"))
	assert.Equal(t, "Google ADK", card.Detail.Framework)
}

func textEvent(text string, partial bool) *session.Event {
	ev := session.NewEvent("inv")
	ev.LLMResponse = model.LLMResponse{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		Partial: partial,
	}
	return ev
}

func TestTextStream(t *testing.T) {
	var tx textStream

	assert.Equal(t, "Let me ", tx.next(textEvent("Let me ", true)))
	assert.Equal(t, "search.", tx.next(textEvent("search.", true)))
	assert.Empty(t, tx.next(textEvent("Let me search.", false)), "final repeat of streamed text")

	call := session.NewEvent("inv")
	call.LLMResponse = model.LLMResponse{Content: &genai.Content{Parts: []*genai.Part{
		{FunctionCall: &genai.FunctionCall{Name: "search_arxiv"}},
	}}}
	assert.Empty(t, tx.next(call))

	assert.Equal(t, "# Report", tx.next(textEvent("# Report", false)), "unstreamed final text")
	assert.Empty(t, tx.next(nil))
}

func TestEventText_SkipsThoughts(t *testing.T) {
	ev := session.NewEvent("inv")
	ev.LLMResponse = model.LLMResponse{Content: &genai.Content{Parts: []*genai.Part{
		{Text: "thinking...", Thought: true},
		{Text: "answer"},
	}}}
	assert.Equal(t, "answer", eventText(ev))
}
