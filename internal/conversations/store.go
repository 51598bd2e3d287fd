// Package conversations persists conversation transcripts and guards
// same-user write access.
package conversations

import (
	"context"
	"errors"

	"github.com/finsightai/finsight/pkg/models"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversations: not found")

// Store is the interface for conversation persistence.
//
// Messages are append-only; the store owns "last updated" bookkeeping on
// every append. System messages are never stored.
type Store interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)

	AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error

	// GetRecentMessages returns up to limit of the newest messages in
	// chronological order. The window is trimmed so it never opens on an
	// orphaned tool message or a tool-invoking assistant message whose
	// results fall outside the window.
	GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
}

// trimWindow drops messages from the front of a history window until it
// starts with a user message or a plain assistant message. A window that
// opens mid tool exchange violates the model's turn-taking contract.
func trimWindow(messages []*models.Message) []*models.Message {
	start := 0
	for start < len(messages) {
		msg := messages[start]
		if msg == nil {
			start++
			continue
		}
		switch msg.Role {
		case models.RoleUser:
			return messages[start:]
		case models.RoleAssistant:
			if !msg.HasToolCalls() {
				return messages[start:]
			}
			// A leading assistant tool request may be missing its paired
			// results; drop it too.
			start++
		default:
			// tool messages (and stray system rows) cannot open a window
			start++
		}
	}
	return messages[len(messages):]
}
