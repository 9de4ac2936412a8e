// Package models defines the data structures shared across the victor core.
package models

import (
	"slices"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Citation is a web source attached to a grounded answer.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is a single conversation entry. The ID stays stable while the
// content of a placeholder is filled in.
type Message struct {
	ID       string     `json:"id"`
	Role     Role       `json:"role"`
	Content  string     `json:"content"`
	Sources  []Citation `json:"sources,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.Sources = slices.Clone(m.Sources)
	return m
}

// Fragment is one element of a streaming response. Exactly one of the
// fields is normally set; Err terminates the stream.
type Fragment struct {
	Text    string
	Sources []Citation
	Err     error
}

// NewID returns a message identifier with the given prefix.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewMessage creates a message with a fresh identifier.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:      NewID(string(role)),
		Role:    role,
		Content: content,
	}
}
