package memory

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/threadline-io/threadline/internal/domain"
)

// Conversation keeps rolling per-session history. History trims to the
// configured maximum; once a session exceeds the compression threshold
// the middle span collapses into one synthetic summary entry, keeping
// the first and last K messages verbatim.
type Conversation struct {
	config domain.MemoryConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string][]domain.ConversationEntry
}

func NewConversation(config domain.MemoryConfig, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConversationLength <= 0 {
		config.MaxConversationLength = 200
	}
	if config.CompressThreshold <= 0 {
		config.CompressThreshold = 50
	}
	if config.KeepEdges <= 0 {
		config.KeepEdges = 5
	}

	return &Conversation{
		config:   config,
		logger:   logger.With("component", "conversation-memory"),
		sessions: make(map[string][]domain.ConversationEntry),
	}
}

func (c *Conversation) Append(sessionID string, entry domain.ConversationEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.sessions[sessionID], entry)

	if len(history) > c.config.MaxConversationLength {
		history = history[len(history)-c.config.MaxConversationLength:]
	}
	if len(history) > c.config.CompressThreshold {
		history = c.compress(sessionID, history)
	}

	c.sessions[sessionID] = history
}

// compress replaces the middle span with a single synthetic summary
// entry counting what was dropped.
func (c *Conversation) compress(sessionID string, history []domain.ConversationEntry) []domain.ConversationEntry {
	keep := c.config.KeepEdges
	if len(history) <= keep*2+1 {
		return history
	}

	dropped := len(history) - keep*2
	summary := domain.ConversationEntry{
		Role:      "system",
		Content:   fmt.Sprintf("[%d earlier messages compressed]", dropped),
		Synthetic: true,
		Timestamp: history[keep].Timestamp,
	}

	compressed := make([]domain.ConversationEntry, 0, keep*2+1)
	compressed = append(compressed, history[:keep]...)
	compressed = append(compressed, summary)
	compressed = append(compressed, history[len(history)-keep:]...)

	c.logger.Debug("compressed conversation",
		"session_id", sessionID,
		"dropped", dropped,
	)
	return compressed
}

func (c *Conversation) History(sessionID string) []domain.ConversationEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.sessions[sessionID]
	out := make([]domain.ConversationEntry, len(history))
	copy(out, history)
	return out
}

func (c *Conversation) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

func (c *Conversation) Sessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
