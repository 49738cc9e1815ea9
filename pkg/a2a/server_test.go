package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/agent-relay/pkg/stream"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeAgent struct {
	pieces []string
	// failAt is the index at which err is yielded instead of a piece; -1
	// never fails.
	failAt int
	err    error
	got    []string
}

func (a *fakeAgent) Card() AgentCard {
	return AgentCard{
		Name:        "Fake Agent",
		Description: "answers in pieces",
		Version:     "1.0.0",
		Skills:      []Skill{{ID: "echo", Name: "Echo"}},
	}
}

func (a *fakeAgent) Handle(_ context.Context, input string) iter.Seq2[string, error] {
	a.got = append(a.got, input)
	return func(yield func(string, error) bool) {
		for i, p := range a.pieces {
			if i == a.failAt {
				yield("", a.err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if a.failAt == len(a.pieces) {
			yield("", a.err)
		}
	}
}

func newTestRouter(agent Agent) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s := NewServer(agent)
	s.Logger = quietLogger()
	s.RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, StreamPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func events(t *testing.T, body io.Reader) []StatusUpdateEnvelope {
	t.Helper()
	var out []StatusUpdateEnvelope
	for payload, err := range stream.SSE(body) {
		require.NoError(t, err)
		var env StatusUpdateEnvelope
		require.NoError(t, json.Unmarshal([]byte(payload), &env))
		out = append(out, env)
	}
	return out
}

func TestServer_StreamsEachPieceAsStatusUpdate(t *testing.T) {
	agent := &fakeAgent{pieces: []string{"Hello ", "", "world"}, failAt: -1}
	r := newTestRouter(agent)

	w := post(t, r, `{"message":{"content":[{"text":"  say hi  "}]}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, []string{"say hi"}, agent.got)

	evs := events(t, strings.NewReader(w.Body.String()))
	require.Len(t, evs, 3)
	assert.Equal(t, StateWorking, evs[0].StatusUpdate.Status.State)
	assert.Equal(t, "Hello ", evs[0].StatusUpdate.Status.Message.Content[0].Text)
	assert.NotEmpty(t, evs[0].StatusUpdate.TaskID)
	assert.Equal(t, evs[0].StatusUpdate.TaskID, evs[2].StatusUpdate.TaskID)

	last := evs[2].StatusUpdate
	assert.Equal(t, StateCompleted, last.Status.State)
	assert.True(t, last.Final)
	assert.Nil(t, last.Status.Message)

	res, err := stream.Aggregate(stream.SSE(strings.NewReader(w.Body.String())))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", res.Text)
}

func TestServer_AcceptsPartsEnvelope(t *testing.T) {
	agent := &fakeAgent{pieces: []string{"ok"}, failAt: -1}
	r := newTestRouter(agent)

	w := post(t, r, `{"message":{"parts":[{"root":{"kind":"text","text":"Solar "}},{"content":"power"}]}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Solar power"}, agent.got)
}

func TestServer_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not JSON", body: "{nope"},
		{name: "no message", body: `{}`},
		{name: "blank text", body: `{"message":{"content":[{"text":"   "}]}}`},
		{name: "no parts", body: `{"message":{"content":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &fakeAgent{failAt: -1}
			r := newTestRouter(agent)

			w := post(t, r, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, agent.got)
		})
	}
}

func TestServer_ErrorBeforeOutputIsInternalError(t *testing.T) {
	agent := &fakeAgent{failAt: 0, err: errors.New("model quota exceeded")}
	r := newTestRouter(agent)

	w := post(t, r, `{"message":{"content":[{"text":"topic"}]}}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "model quota exceeded")
}

func TestServer_ErrorAfterOutputEndsWithFailedEvent(t *testing.T) {
	agent := &fakeAgent{pieces: []string{"partial"}, failAt: 1, err: errors.New("boom")}
	r := newTestRouter(agent)

	w := post(t, r, `{"message":{"content":[{"text":"topic"}]}}`)

	require.Equal(t, http.StatusOK, w.Code)
	evs := events(t, strings.NewReader(w.Body.String()))
	require.Len(t, evs, 2)
	last := evs[1].StatusUpdate
	assert.Equal(t, StateFailed, last.Status.State)
	assert.True(t, last.Final)
	assert.Contains(t, last.Status.Message.Content[0].Text, "boom")
}

func TestServer_CardAndHealth(t *testing.T) {
	r := newTestRouter(&fakeAgent{failAt: -1})

	req := httptest.NewRequest(http.MethodGet, CardPath, nil)
	req.Host = "agents.local:8003"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var card AgentCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	assert.Equal(t, "Fake Agent", card.Name)
	assert.Equal(t, "http://agents.local:8003", card.URL)
	assert.True(t, card.HasSkill("echo"))
	assert.NoError(t, card.Validate())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","agent":"Fake Agent"}`, w.Body.String())
}

func TestAgentCard_Validate(t *testing.T) {
	assert.ErrorIs(t, (&AgentCard{URL: "u", Version: "1"}).Validate(), ErrMissingName)
	assert.ErrorIs(t, (&AgentCard{Name: "n", Version: "1"}).Validate(), ErrMissingURL)
	assert.ErrorIs(t, (&AgentCard{Name: "n", URL: "u"}).Validate(), ErrMissingVersion)
}

// brokenWriter fails every body write, like a connection the client closed.
type brokenWriter struct {
	header http.Header
	writes int
}

func (w *brokenWriter) Header() http.Header { return w.header }

func (w *brokenWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("broken pipe")
}

func (w *brokenWriter) WriteHeader(int) {}

func (w *brokenWriter) Flush() {}

func TestServer_WriteEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(&fakeAgent{failAt: -1})
	s.Logger = quietLogger()
	env := newEnvelope("t1", "c1", StateWorking, "hello", false)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, StreamPath, nil)
	require.True(t, s.writeEvent(c, env))
	evs := events(t, strings.NewReader(rec.Body.String()))
	require.Len(t, evs, 1)
	assert.Equal(t, "hello", evs[0].StatusUpdate.Status.Message.Content[0].Text)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "data: {"))
	assert.True(t, strings.HasSuffix(rec.Body.String(), "}\n\n"))

	broken := &brokenWriter{header: http.Header{}}
	c, _ = gin.CreateTestContext(broken)
	c.Request = httptest.NewRequest(http.MethodPost, StreamPath, nil)
	assert.False(t, s.writeEvent(c, env))
	assert.Equal(t, 1, broken.writes, "the event is written in one piece")
}
