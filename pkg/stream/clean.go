package stream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// envelopeMarker is the key that betrays leaked protocol framing.
const envelopeMarker = "statusUpdate"

var textFieldPattern = regexp.MustCompile(`"text":\s*"((?:[^"\\]|\\.)*)"`)

// Cleaned is the outcome of CleanEnvelopes.
type Cleaned struct {
	Text string
	// Changed is set when envelope framing was found and removed.
	Changed bool
	// Degraded is set when the framing could only be recovered by the
	// "text" field scan, or could not be removed at all.
	Degraded bool
}

// CleanEnvelopes runs a second extraction pass over text that was already
// assembled from a stream but still carries statusUpdate envelopes, as happens
// when an upstream agent relays another agent's raw output. Text without the
// marker is returned untouched.
func CleanEnvelopes(text string) Cleaned {
	if !strings.Contains(text, envelopeMarker) {
		return Cleaned{Text: text}
	}

	res := AggregateStrings(text)
	if res.Recognized() > 0 {
		return Cleaned{Text: res.Text, Changed: true, Degraded: res.Degraded() > 0}
	}

	matches := textFieldPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		found := make([]string, 0, len(matches))
		for _, m := range matches {
			found = append(found, unescape(m[1]))
		}
		return Cleaned{Text: strings.TrimSpace(strings.Join(found, " ")), Changed: true, Degraded: true}
	}

	return Cleaned{Text: text, Degraded: true}
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
