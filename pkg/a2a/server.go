package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikeboe/agent-relay/pkg/message"
	"github.com/mikeboe/agent-relay/pkg/stream"
)

// Agent is something a Server can host. Handle receives the extracted input
// text, which is never empty, and yields the reply in pieces.
type Agent interface {
	Card() AgentCard
	Handle(ctx context.Context, input string) iter.Seq2[string, error]
}

// Server exposes one Agent over HTTP.
type Server struct {
	Agent  Agent
	Logger *slog.Logger
}

// NewServer returns a server for agent that logs to slog.Default.
func NewServer(agent Agent) *Server {
	return &Server{Agent: agent, Logger: slog.Default()}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	// gin reads ":stream" as a parameter inside the segment, which still
	// matches the literal path.
	r.POST(StreamPath, s.streamMessage)
	r.GET(CardPath, s.getCard)
	r.GET(HealthPath, s.health)
}

func (s *Server) getCard(c *gin.Context) {
	card := s.Agent.Card()
	if card.URL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		card.URL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "agent": s.Agent.Card().Name})
}

func (s *Server) streamMessage(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%v: %v", ErrInvalidMessage, err)})
		return
	}

	ext := message.Extract(message.Decode(req.Message))
	if ext.Degraded {
		s.Logger.Warn("Message had unrecognized parts", "preview", stream.Snippet(string(req.Message), 200))
	}
	if ext.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message contains no text"})
		return
	}

	taskID := uuid.NewString()
	contextID := uuid.NewString()
	logger := s.Logger.With("task_id", taskID)
	logger.Info("Handling message", "agent", s.Agent.Card().Name, "input_chars", len(ext.Text))

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("Transfer-Encoding", "chunked")
		c.Status(http.StatusOK)
	}

	pieces := 0
	for text, err := range s.Agent.Handle(c.Request.Context(), ext.Text) {
		if err != nil {
			logger.Error("Agent failed", "error", err, "pieces", pieces)
			if !started {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			s.writeEvent(c, newEnvelope(taskID, contextID, StateFailed, "Agent error: "+err.Error(), true))
			return
		}
		if text == "" {
			continue
		}
		start()
		pieces++
		if !s.writeEvent(c, newEnvelope(taskID, contextID, StateWorking, text, false)) {
			logger.Warn("Client went away", "pieces", pieces)
			return
		}
	}

	start()
	s.writeEvent(c, newEnvelope(taskID, contextID, StateCompleted, "", true))
	logger.Info("Message handled", "pieces", pieces)
}

func newEnvelope(taskID, contextID, state, text string, final bool) StatusUpdateEnvelope {
	env := StatusUpdateEnvelope{StatusUpdate: StatusUpdate{
		TaskID:    taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: state},
		Final:     final,
	}}
	if text != "" {
		env.StatusUpdate.Status.Message = &Message{Role: "agent", Content: []TextPart{{Text: text}}}
	}
	return env
}

// writeEvent sends one envelope as a server-sent event and reports whether
// the client is still reading.
func (s *Server) writeEvent(c *gin.Context, env StatusUpdateEnvelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		s.Logger.Error("Failed to marshal event", "error", err)
		return false
	}
	event := make([]byte, 0, len(data)+8)
	event = append(event, "data: "...)
	event = append(event, data...)
	event = append(event, "\n\n"...)
	if _, err := c.Writer.Write(event); err != nil {
		return false
	}
	c.Writer.Flush()
	return c.Request.Context().Err() == nil
}
