// Package a2a holds the JSON wire types of the agent-to-agent protocol.
package a2a

import "strings"

const (
	KindMessage = "message"
	KindTask    = "task"
	KindText    = "text"

	RoleUser  = "user"
	RoleAgent = "agent"
)

// Part is one segment of a message. Only text parts are produced here; other
// kinds are decoded so they can be counted and rejected.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

type Message struct {
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role, messageID, contextID, text string) Message {
	return Message{
		Kind:      KindMessage,
		Role:      role,
		Parts:     []Part{{Kind: KindText, Text: text}},
		MessageID: messageID,
		ContextID: contextID,
	}
}

// TextParts returns the text of every text part, in order.
func (m Message) TextParts() []string {
	out := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Kind == KindText || (p.Kind == "" && p.Text != "") {
			out = append(out, p.Text)
		}
	}
	return out
}

// Text joins all text parts with newlines.
func (m Message) Text() string {
	return strings.Join(m.TextParts(), "\n")
}
