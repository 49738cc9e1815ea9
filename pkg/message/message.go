package message

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PartKind tags the shape a part was recognized as when it was decoded.
type PartKind int

const (
	// PartUnknown is a part with no recognizable text.
	PartUnknown PartKind = iota
	// PartText carries text, either directly or under a nested root of kind "text".
	PartText
	// PartContent carries a loosely typed content field.
	PartContent
)

func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartContent:
		return "content"
	default:
		return "unknown"
	}
}

// Part is a single unit of an inbound message.
type Part struct {
	Kind PartKind
	Text string
	Raw  json.RawMessage
}

// InboundMessage is the envelope an agent receives per request.
//
// Parts are resolved once at decode time, so callers never probe raw JSON.
// Malformed is set when the envelope could not be decoded at all. Raw then
// holds the original bytes.
type InboundMessage struct {
	Parts     []Part
	Raw       json.RawMessage
	Malformed bool
}

// Extraction is the outcome of Extract. Degraded is set when some part (or
// the whole envelope) had to fall back to a string conversion.
type Extraction struct {
	Text     string
	Degraded bool
}

type wireRoot struct {
	Kind string  `json:"kind"`
	Text *string `json:"text"`
}

type wirePart struct {
	Root    *wireRoot       `json:"root"`
	Kind    string          `json:"kind"`
	Text    *string         `json:"text"`
	Content json.RawMessage `json:"content"`
}

// Decode resolves a raw message envelope into typed parts. The envelope may
// list its parts under "parts" (A2A) or "content" (BeeAI). Decode never fails:
// anything it cannot read yields a Malformed message.
func Decode(raw []byte) *InboundMessage {
	msg := &InboundMessage{Raw: append(json.RawMessage(nil), raw...)}

	var envelope struct {
		Parts   []json.RawMessage `json:"parts"`
		Content json.RawMessage   `json:"content"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		msg.Malformed = true
		return msg
	}

	items := envelope.Parts
	if items == nil && len(envelope.Content) > 0 {
		if err := json.Unmarshal(envelope.Content, &items); err != nil {
			msg.Malformed = true
			return msg
		}
	}

	msg.Parts = make([]Part, 0, len(items))
	for _, item := range items {
		msg.Parts = append(msg.Parts, decodePart(item))
	}
	return msg
}

// NewText builds a message holding one text part.
func NewText(text string) *InboundMessage {
	return &InboundMessage{Parts: []Part{{Kind: PartText, Text: text}}}
}

func decodePart(raw json.RawMessage) Part {
	p := Part{Raw: raw}

	var wp wirePart
	if err := json.Unmarshal(raw, &wp); err != nil {
		return p
	}

	switch {
	case wp.Root != nil && wp.Root.Kind == "text":
		p.Kind = PartText
		if wp.Root.Text != nil {
			p.Text = *wp.Root.Text
		}
	case wp.Text != nil && (wp.Kind == "" || wp.Kind == "text"):
		p.Kind = PartText
		p.Text = *wp.Text
	case len(wp.Content) > 0:
		p.Kind = PartContent
		p.Text = Stringify(wp.Content)
	}
	return p
}

// Extract concatenates the text of every recognized part, in order, with no
// separator. An absent message yields an empty string, and a malformed one
// falls back to the string form of the whole envelope.
func Extract(msg *InboundMessage) Extraction {
	if msg == nil {
		return Extraction{Degraded: true}
	}
	if msg.Malformed {
		return Extraction{Text: strings.TrimSpace(string(msg.Raw)), Degraded: true}
	}

	var sb strings.Builder
	degraded := false
	for _, p := range msg.Parts {
		switch p.Kind {
		case PartText, PartContent:
			sb.WriteString(p.Text)
		default:
			degraded = true
		}
	}
	return Extraction{Text: strings.TrimSpace(sb.String()), Degraded: degraded}
}

// Stringify converts a JSON value to text: strings are unquoted, null is
// empty, and anything else is returned as compact JSON.
func Stringify(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
