// Package a2a carries text between agents over HTTP: a streaming client, a
// gin server that hosts one Agent, and the wire types both ends share.
package a2a

import "encoding/json"

const (
	// StreamPath is the endpoint that accepts a message and streams the reply.
	StreamPath = "/v1/message:stream"
	// CardPath is where an agent publishes its AgentCard.
	CardPath = "/.well-known/agent.json"
	// HealthPath answers liveness probes.
	HealthPath = "/health"
)

// Task states reported in status updates.
const (
	StateWorking   = "working"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Skill describes one thing an agent can be asked to do.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// DetailTool names a tool or framework the agent relies on.
type DetailTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Detail is free-form metadata shown to people discovering the agent.
type Detail struct {
	InteractionMode string       `json:"interaction_mode,omitempty"`
	UserGreeting    string       `json:"user_greeting,omitempty"`
	Framework       string       `json:"framework,omitempty"`
	Tools           []DetailTool `json:"tools,omitempty"`
	Capabilities    []string     `json:"capabilities,omitempty"`
	Limitations     []string     `json:"limitations,omitempty"`
}

// AgentCard describes an agent for discovery.
type AgentCard struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	URL                string   `json:"url"`
	Version            string   `json:"version"`
	DefaultInputModes  []string `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string `json:"defaultOutputModes,omitempty"`
	Skills             []Skill  `json:"skills,omitempty"`
	Detail             *Detail  `json:"detail,omitempty"`
}

// Validate checks that the card has the fields a client needs to reach the
// agent.
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.URL == "" {
		return ErrMissingURL
	}
	if c.Version == "" {
		return ErrMissingVersion
	}
	return nil
}

// HasSkill reports whether the card lists a skill with the given id.
func (c *AgentCard) HasSkill(id string) bool {
	for _, s := range c.Skills {
		if s.ID == id {
			return true
		}
	}
	return false
}

// TextPart is a single piece of message text on the wire.
type TextPart struct {
	Text string `json:"text"`
}

// Message is the outbound form of a message: an ordered list of text parts.
type Message struct {
	Role    string     `json:"role,omitempty"`
	Content []TextPart `json:"content"`
}

// SendRequest is the body POSTed to StreamPath.
type SendRequest struct {
	Message Message `json:"message"`
}

// NewSendRequest wraps text in a single-part request.
func NewSendRequest(text string) SendRequest {
	return SendRequest{Message: Message{Role: "user", Content: []TextPart{{Text: text}}}}
}

// inboundRequest is SendRequest as the server reads it, with the message left
// raw so that any part shape can be decoded.
type inboundRequest struct {
	Message json.RawMessage `json:"message"`
}

// TaskStatus is the status block of a status update.
type TaskStatus struct {
	State   string   `json:"state"`
	Message *Message `json:"message,omitempty"`
}

// StatusUpdate reports progress on a task. Each streamed piece of agent
// output travels in one of these.
type StatusUpdate struct {
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

// StatusUpdateEnvelope is one streamed event.
type StatusUpdateEnvelope struct {
	StatusUpdate StatusUpdate `json:"statusUpdate"`
}
