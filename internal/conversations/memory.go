package conversations

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsightai/finsight/pkg/models"
)

// maxMessagesPerConversation limits stored messages per conversation to
// prevent unbounded memory growth. Oldest messages are trimmed first.
const maxMessagesPerConversation = 1000

// MemoryStore provides an in-memory Store implementation for testing and
// local runs. History is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]*models.Message{},
	}
}

func (m *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("conversation is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneConversation(conv)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	// Reflect generated fields back to caller.
	conv.ID = clone.ID
	conv.CreatedAt = clone.CreatedAt
	conv.UpdatedAt = clone.UpdatedAt
	m.conversations[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Conversation, 0)
	for _, conv := range m.conversations {
		if userID != "" && conv.UserID != userID {
			continue
		}
		out = append(out, cloneConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}

	clone := cloneMessage(msg)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	clone.ConversationID = conversationID
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.messages[conversationID] = append(m.messages[conversationID], clone)
	conv.UpdatedAt = time.Now()

	if len(m.messages[conversationID]) > maxMessagesPerConversation {
		excess := len(m.messages[conversationID]) - maxMessagesPerConversation
		m.messages[conversationID] = m.messages[conversationID][excess:]
	}
	return nil
}

func (m *MemoryStore) GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.messages[conversationID]
	if len(messages) == 0 {
		return []*models.Message{}, nil
	}
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		out = append(out, cloneMessage(msg))
	}
	return trimWindow(out), nil
}

func cloneConversation(conv *models.Conversation) *models.Conversation {
	if conv == nil {
		return nil
	}
	clone := *conv
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	if msg == nil {
		return nil
	}
	clone := *msg
	if len(msg.ToolCalls) > 0 {
		clone.ToolCalls = append([]models.ToolCall{}, msg.ToolCalls...)
	}
	return &clone
}
