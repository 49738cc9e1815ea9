package runs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LogHandler is a slog.Handler that writes records to workflow_logs and
// passes them on to Next.
type LogHandler struct {
	conn  conn
	runID uuid.UUID
	next  slog.Handler
	level slog.Leveler

	attrs  []slog.Attr
	groups []string
}

// NewLogHandler logs records of at least level for run id. next may be nil.
func NewLogHandler(db conn, id uuid.UUID, next slog.Handler, level slog.Leveler) *LogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogHandler{conn: db, runID: id, next: next, level: level}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		if err := h.next.Handle(ctx, r); err != nil {
			return err
		}
	}
	if r.Level < h.level.Level() {
		return nil
	}

	meta := make(map[string]any)
	addAttrs(meta, "", h.attrs)
	prefix := groupPrefix(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(meta, prefix, a)
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// The row must land even when the caller's context is already cancelled.
	_, err = h.conn.Exec(context.WithoutCancel(ctx), `
		INSERT INTO workflow_logs (run_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, h.runID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	prefix := groupPrefix(h.groups)
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Group(prefix[:len(prefix)-1], a)
		}
		c.attrs = append(c.attrs, a)
	}
	if h.next != nil {
		c.next = h.next.WithAttrs(attrs)
	}
	return c
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	if h.next != nil {
		c.next = h.next.WithGroup(name)
	}
	return c
}

func (h *LogHandler) clone() *LogHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	c.groups = append([]string(nil), h.groups...)
	return &c
}

func groupPrefix(groups []string) string {
	p := ""
	for _, g := range groups {
		p += g + "."
	}
	return p
}

func addAttrs(m map[string]any, prefix string, attrs []slog.Attr) {
	for _, a := range attrs {
		addAttr(m, prefix, a)
	}
}

// addAttr flattens a into m, joining group names with dots.
func addAttr(m map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		addAttrs(m, p, a.Value.Group())
		return
	}
	m[prefix+a.Key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case json.Marshaler:
			return x
		case interface{ String() string }:
			return x.String()
		}
	}
	return v.Any()
}
