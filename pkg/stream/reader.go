package stream

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"strings"
)

const (
	readSize   = 4096
	maxPending = 1 << 20
	maxLine    = 4 << 20
)

// SSE yields the data payload of each server-sent event read from r. The
// data lines of one event are joined with "\n"; empty payloads and the
// "[DONE]" sentinel are skipped.
func SSE(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

		var data []string
		flush := func() bool {
			if len(data) == 0 {
				return true
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if s := strings.TrimSpace(payload); s == "" || s == "[DONE]" {
				return true
			}
			return yield(payload, nil)
		}

		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
			// event:, id:, retry: and comment lines carry no text.
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
			return
		}
		flush()
	}
}

// Frames yields the raw body of r in pieces that never end inside a JSON
// object. Each top-level object becomes its own frame, even when several
// arrive in one read, and the text between objects is yielded as it
// arrives.
func Frames(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		buf := make([]byte, readSize)
		var pending []byte
		var d depthTracker
		scanned := 0

		for {
			n, err := r.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				var frames []string
				start := 0
				for ; scanned < len(pending); scanned++ {
					c := pending[scanned]
					if c == '{' && d.balanced() && scanned > start {
						frames = append(frames, string(pending[start:scanned]))
						start = scanned
					}
					if d.step(c) {
						frames = append(frames, string(pending[start:scanned+1]))
						start = scanned + 1
					}
				}
				if start < len(pending) && (d.balanced() || len(pending)-start >= maxPending) {
					frames = append(frames, string(pending[start:]))
					start = len(pending)
				}
				pending = append(pending[:0], pending[start:]...)
				scanned -= start
				for _, f := range frames {
					if !yield(f, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 {
					yield(string(pending), nil)
				}
				return
			}
			if err != nil {
				if len(pending) > 0 && !yield(string(pending), nil) {
					return
				}
				yield("", err)
				return
			}
		}
	}
}
