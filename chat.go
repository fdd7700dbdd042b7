// chat.go
// Conversation registry for the Ask-AI chat surface. Each conversation is
// identified by a UUID handed back to the frontend; history is bounded so
// long chats neither grow without limit nor blow the prompt budget.
package ghosttype

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// conversation is one chat thread. Access is guarded by ChatManager.mu.
type conversation struct {
	id       string
	messages []ChatMessage
	updated  time.Time
}

// ChatManager owns all chat conversations for a running engine.
type ChatManager struct {
	mu            sync.Mutex
	conversations map[string]*conversation

	client   CompletionClient
	configFn func() Config
	logger   *slog.Logger
}

// NewChatManager creates an empty chat registry.
func NewChatManager(client CompletionClient, configFn func() Config, logger *slog.Logger) *ChatManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatManager{
		conversations: make(map[string]*conversation),
		client:        client,
		configFn:      configFn,
		logger:        logger.With("component", "ChatManager"),
	}
}

// Ask sends a question on a conversation and returns the assistant reply and
// the conversation id. An empty conversationID starts a new conversation.
// codeContext, when non-empty, is attached to the question so the model can
// see the code being discussed. Only the most recent turns are sent to the
// API; stored history is trimmed to a bounded window.
func (m *ChatManager) Ask(ctx context.Context, conversationID, question, codeContext string) (reply, id string, err error) {
	cfg := m.configFn()

	m.mu.Lock()
	conv := m.conversations[conversationID]
	if conv == nil {
		conv = &conversation{id: uuid.NewString()}
		m.conversations[conv.id] = conv
		m.logger.Debug("Started conversation", "conversation_id", conv.id)
	}

	content := question
	if codeContext != "" {
		content = fmt.Sprintf("%s\n\n```\n%s\n```", question, codeContext)
	}
	conv.messages = append(conv.messages, ChatMessage{Role: "user", Content: content})
	conv.updated = time.Now()

	window := conv.messages
	if len(window) > chatHistoryWindow {
		window = window[len(window)-chatHistoryWindow:]
	}
	history := make([]ChatMessage, len(window))
	copy(history, window)
	id = conv.id
	m.mu.Unlock()

	opLogger := m.logger.With("operation", "Ask", "conversation_id", id)
	reply, err = m.client.Chat(ctx, history, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		// Conversation was reset while the request was in flight.
		if err != nil {
			return "", id, err
		}
		return reply, id, nil
	}
	if err != nil {
		// Drop the unanswered question so a retry does not duplicate it.
		if n := len(conv.messages); n > 0 && conv.messages[n-1].Role == "user" {
			conv.messages = conv.messages[:n-1]
		}
		opLogger.Warn("Chat request failed", "error", err)
		return "", id, err
	}

	conv.messages = append(conv.messages, ChatMessage{Role: "assistant", Content: reply})
	conv.updated = time.Now()
	if len(conv.messages) > chatHistoryLimit {
		conv.messages = conv.messages[len(conv.messages)-chatHistoryLimit:]
	}
	opLogger.Debug("Chat turn completed", "reply_chars", len(reply), "stored_turns", len(conv.messages))
	return reply, id, nil
}

// History returns a copy of the stored messages for a conversation, oldest
// first. Unknown ids yield an empty slice.
func (m *ChatManager) History(conversationID string) []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.conversations[conversationID]
	if conv == nil {
		return nil
	}
	out := make([]ChatMessage, len(conv.messages))
	copy(out, conv.messages)
	return out
}

// Reset deletes a conversation. Resetting an unknown id is a no-op.
func (m *ChatManager) Reset(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversationID]; ok {
		delete(m.conversations, conversationID)
		m.logger.Debug("Conversation reset", "conversation_id", conversationID)
	}
}

// Prune drops conversations idle longer than maxIdle. Returns the number
// removed.
func (m *ChatManager) Prune(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, conv := range m.conversations {
		if conv.updated.Before(cutoff) {
			delete(m.conversations, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("Pruned idle conversations", "removed", removed)
	}
	return removed
}
