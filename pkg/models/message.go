// Package models defines the shared data model for the Finsight research
// assistant runtime: conversations, messages, capability invocations, and
// the run event stream.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation transcript.
//
// System messages are synthesized fresh for every run and are never
// persisted. Tool messages carry the result of exactly one capability
// invocation, linked by ToolCallID.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID     string     `json:"tool_call_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasToolCalls reports whether the message requests capability invocations.
func (m *Message) HasToolCalls() bool {
	return m != nil && len(m.ToolCalls) > 0
}

// ToolCall is one request from the model to run a specific capability.
// Input is opaque to the runtime; it is decoded only by the capability.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of a single capability invocation, keyed by the
// invocation id it answers.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Conversation is a user-owned ordered message sequence.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Artifact references a file or document produced during a run, such as a
// rendered report or chart.
type Artifact struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // report, chart, file
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}
