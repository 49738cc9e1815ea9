// Package stream reassembles the chunked text produced by a streaming agent
// into a single answer.
//
// A chunk may be a {"content": ...} object, a {"statusUpdate": ...} envelope,
// several such objects glued together with no separator, or plain text. The
// Aggregator recognizes what it can and keeps the rest verbatim, so no chunk
// is ever dropped.
package stream

import (
	"encoding/json"
	"iter"
	"strings"

	"github.com/mikeboe/agent-relay/pkg/message"
)

// FragmentKind tags how a fragment of a chunk was read.
type FragmentKind int

const (
	// FragmentVerbatim is text kept as-is because it was not a recognized
	// JSON structure.
	FragmentVerbatim FragmentKind = iota
	// FragmentContent came from a {"content": ...} object.
	FragmentContent
	// FragmentStatusUpdate came from a {"statusUpdate": ...} envelope.
	FragmentStatusUpdate
	// FragmentFailed came from a statusUpdate whose task state is "failed".
	// Its text is the failure message and is not part of the answer.
	FragmentFailed
)

const stateFailed = "failed"

func (k FragmentKind) String() string {
	switch k {
	case FragmentContent:
		return "content"
	case FragmentStatusUpdate:
		return "statusUpdate"
	case FragmentFailed:
		return "failed"
	default:
		return "verbatim"
	}
}

// Fragment is one piece of recognized or fallback text, in arrival order.
type Fragment struct {
	Kind FragmentKind
	Text string
}

// Result is the assembled text of a stream together with how it was read.
type Result struct {
	Text      string
	Chunks    int
	Fragments []Fragment
	// Failed is set when the agent reported a failed task. Failure holds
	// the message of the first failed status update.
	Failed  bool
	Failure string
}

// Degraded counts fragments that had to be kept verbatim.
func (r Result) Degraded() int {
	n := 0
	for _, f := range r.Fragments {
		if f.Kind == FragmentVerbatim {
			n++
		}
	}
	return n
}

// Recognized counts fragments decoded from a known JSON structure.
func (r Result) Recognized() int {
	return len(r.Fragments) - r.Degraded()
}

// Aggregator accumulates fragments chunk by chunk. It is not safe for
// concurrent use. Each stream owns its own Aggregator.
type Aggregator struct {
	chunks    int
	fragments []Fragment
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Feed consumes one raw chunk. Chunks that are blank after trimming are
// skipped.
func (a *Aggregator) Feed(chunk string) {
	if strings.TrimSpace(chunk) == "" {
		return
	}
	a.chunks++

	if frag, ok := decodeFragment(chunk); ok {
		a.fragments = append(a.fragments, frag)
		return
	}

	pieces := SplitConcatenated(chunk)
	if len(pieces) <= 1 {
		a.fragments = append(a.fragments, Fragment{Kind: FragmentVerbatim, Text: chunk})
		return
	}
	for _, piece := range pieces {
		if frag, ok := decodeFragment(piece); ok {
			a.fragments = append(a.fragments, frag)
			continue
		}
		a.fragments = append(a.fragments, Fragment{Kind: FragmentVerbatim, Text: piece})
	}
}

// Result joins every fragment in order and trims the whole once. Failed
// fragments are left out of Text and reported through Failed and Failure.
func (a *Aggregator) Result() Result {
	var res Result
	var sb strings.Builder
	for _, f := range a.fragments {
		if f.Kind == FragmentFailed {
			if !res.Failed {
				res.Failed = true
				res.Failure = strings.TrimSpace(f.Text)
			}
			continue
		}
		sb.WriteString(f.Text)
	}
	res.Text = strings.TrimSpace(sb.String())
	res.Chunks = a.chunks
	res.Fragments = make([]Fragment, len(a.fragments))
	copy(res.Fragments, a.fragments)
	return res
}

// Aggregate drains a chunk sequence. If the sequence reports an error, the
// text gathered so far is returned alongside it.
func Aggregate(chunks iter.Seq2[string, error]) (Result, error) {
	agg := NewAggregator()
	for chunk, err := range chunks {
		if err != nil {
			return agg.Result(), err
		}
		agg.Feed(chunk)
	}
	return agg.Result(), nil
}

// AggregateStrings is Aggregate over an already recorded chunk list.
func AggregateStrings(chunks ...string) Result {
	agg := NewAggregator()
	for _, c := range chunks {
		agg.Feed(c)
	}
	return agg.Result()
}

// decodeFragment reads s as a single JSON object carrying either a
// statusUpdate envelope or a content field. A JSON value of any other shape
// is reported as a verbatim fragment; only text that is not JSON at all
// returns ok == false.
func decodeFragment(s string) (Fragment, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Fragment{}, false
	}

	obj, isObj := v.(map[string]any)
	if !isObj {
		return Fragment{Kind: FragmentVerbatim, Text: s}, true
	}

	if su, ok := obj["statusUpdate"]; ok {
		kind := FragmentStatusUpdate
		if state, _ := field(field(su, "status"), "state").(string); state == stateFailed {
			kind = FragmentFailed
		}
		return Fragment{Kind: kind, Text: statusUpdateText(su)}, true
	}
	if content, ok := obj["content"]; ok {
		return Fragment{Kind: FragmentContent, Text: contentText(content)}, true
	}
	return Fragment{Kind: FragmentVerbatim, Text: s}, true
}

// statusUpdateText walks statusUpdate.status.message.content and joins the
// text of every part that has one. Missing levels yield no text.
func statusUpdateText(su any) string {
	status := field(su, "status")
	msg := field(status, "message")
	parts, _ := field(msg, "content").([]any)

	var sb strings.Builder
	for _, p := range parts {
		obj, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := obj["text"]; ok {
			sb.WriteString(valueText(text))
		}
	}
	return sb.String()
}

// contentText accepts a plain string, a list of {"text": ...} parts, or any
// other JSON value, which is kept in its JSON form.
func contentText(content any) string {
	if parts, ok := content.([]any); ok {
		var sb strings.Builder
		for _, p := range parts {
			if obj, ok := p.(map[string]any); ok {
				if text, ok := obj["text"]; ok {
					sb.WriteString(valueText(text))
				}
			}
		}
		return sb.String()
	}
	return valueText(content)
}

func field(v any, key string) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return obj[key]
}

func valueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return message.Stringify(raw)
	}
}

// Snippet shortens s to at most n runes for logging, marking the cut with
// "...".
func Snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
