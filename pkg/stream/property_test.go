package stream

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// payload draws text that is awkward for brace tracking.
func payload() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-zA-Z0-9 .,:{}\[\]"\\]{0,24}`)
}

func marshal(t *rapid.T, v any) string {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func envelope(text string) map[string]any {
	return map[string]any{"statusUpdate": map[string]any{
		"status": map[string]any{"message": map[string]any{
			"content": []any{map[string]any{"text": text}},
		}},
	}}
}

func TestProperty_SplitConcatenatedIsLossless(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		buf := rapid.String().Draw(rt, "buf")
		assert.Equal(t, buf, strings.Join(SplitConcatenated(buf), ""))
	})
}

func TestProperty_ContentChunksConcatenate(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		texts := rapid.SliceOfN(payload(), 1, 8).Draw(rt, "texts")

		chunks := make([]string, len(texts))
		for i, text := range texts {
			chunks[i] = marshal(rt, map[string]any{"content": text})
		}

		assert.Equal(t, strings.TrimSpace(strings.Join(texts, "")), AggregateStrings(chunks...).Text)
	})
}

func TestProperty_ConcatenatedEnvelopesInOneChunk(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		texts := rapid.SliceOfN(payload(), 2, 5).Draw(rt, "texts")

		var chunk strings.Builder
		for _, text := range texts {
			chunk.WriteString(marshal(rt, envelope(text)))
		}

		res := AggregateStrings(chunk.String())
		assert.Equal(t, strings.TrimSpace(strings.Join(texts, "")), res.Text)
		assert.Zero(t, res.Degraded())
	})
}

func TestProperty_AggregateIsDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		chunks := rapid.SliceOfN(rapid.OneOf(
			payload(),
			rapid.Map(payload(), func(s string) string { return `{"content":` + quote(s) + `}` }),
		), 0, 8).Draw(rt, "chunks")

		assert.Equal(t, AggregateStrings(chunks...), AggregateStrings(chunks...))
	})
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
