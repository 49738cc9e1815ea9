package stream

import "strings"

// depthTracker follows JSON nesting one byte at a time. Strings are only
// tracked inside a value, so quotes in surrounding prose are ignored.
type depthTracker struct {
	depth    int
	inString bool
	escaped  bool
}

// step consumes one byte and reports whether it closed a top-level object.
func (d *depthTracker) step(c byte) bool {
	if d.inString {
		switch {
		case d.escaped:
			d.escaped = false
		case c == '\\':
			d.escaped = true
		case c == '"':
			d.inString = false
		}
		return false
	}

	switch c {
	case '"':
		if d.depth > 0 {
			d.inString = true
		}
	case '{', '[':
		d.depth++
	case '}', ']':
		if d.depth > 0 {
			d.depth--
			return d.depth == 0 && c == '}'
		}
	}
	return false
}

func (d *depthTracker) balanced() bool {
	return d.depth == 0 && !d.inString
}

// SplitConcatenated cuts a buffer of back-to-back JSON objects ("{...}{...}")
// into one string per object. Boundaries are top-level "}{" pairs, found by
// tracking nesting so that braces inside string values do not split. When the
// buffer is too malformed to track but still contains "}{", every literal
// "}{" is treated as a boundary.
//
// The pieces always concatenate back to the input.
func SplitConcatenated(buf string) []string {
	var out []string
	var d depthTracker
	start := 0

	for i := 0; i < len(buf); i++ {
		if d.step(buf[i]) && i+1 < len(buf) && buf[i+1] == '{' {
			out = append(out, buf[start:i+1])
			start = i + 1
		}
	}
	out = append(out, buf[start:])

	if len(out) == 1 && strings.Contains(buf, "}{") {
		return splitLiteral(buf)
	}
	return out
}

func splitLiteral(buf string) []string {
	var out []string
	for {
		i := strings.Index(buf, "}{")
		if i < 0 {
			return append(out, buf)
		}
		out = append(out, buf[:i+1])
		buf = buf[i+1:]
	}
}
