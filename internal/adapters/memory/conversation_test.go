package memory

import (
	"fmt"
	"testing"

	"github.com/threadline-io/threadline/internal/domain"
)

func TestConversationAppendAndHistory(t *testing.T) {
	c := NewConversation(domain.MemoryConfig{}, nil)

	c.Append("s1", domain.ConversationEntry{Role: "user", Content: "hello"})
	c.Append("s1", domain.ConversationEntry{Role: "assistant", Content: "hi", WorkerID: "greeter"})
	c.Append("s2", domain.ConversationEntry{Role: "user", Content: "other session"})

	history := c.History("s1")
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].WorkerID != "greeter" {
		t.Errorf("unexpected history: %+v", history)
	}
	if c.Sessions() != 2 {
		t.Errorf("expected 2 sessions, got %d", c.Sessions())
	}

	// History hands out copies.
	history[0].Content = "mutated"
	if c.History("s1")[0].Content != "hello" {
		t.Error("history mutation leaked into the store")
	}
}

func TestConversationCompression(t *testing.T) {
	c := NewConversation(domain.MemoryConfig{
		MaxConversationLength: 200,
		CompressThreshold:     10,
		KeepEdges:             3,
	}, nil)

	for i := 0; i < 11; i++ {
		c.Append("s1", domain.ConversationEntry{Role: "user", Content: fmt.Sprintf("msg-%d", i)})
	}

	history := c.History("s1")
	// First 3, one synthetic summary, last 3.
	if len(history) != 7 {
		t.Fatalf("expected 7 entries after compression, got %d", len(history))
	}
	if history[0].Content != "msg-0" || history[2].Content != "msg-2" {
		t.Errorf("expected first edge kept verbatim, got %v %v", history[0].Content, history[2].Content)
	}
	summary := history[3]
	if !summary.Synthetic || summary.Role != "system" {
		t.Errorf("expected synthetic system summary, got %+v", summary)
	}
	if summary.Content != "[5 earlier messages compressed]" {
		t.Errorf("unexpected summary text: %q", summary.Content)
	}
	if history[6].Content != "msg-10" {
		t.Errorf("expected last edge kept verbatim, got %v", history[6].Content)
	}
}

func TestConversationTrimsToMax(t *testing.T) {
	c := NewConversation(domain.MemoryConfig{
		MaxConversationLength: 5,
		CompressThreshold:     100,
		KeepEdges:             2,
	}, nil)

	for i := 0; i < 8; i++ {
		c.Append("s1", domain.ConversationEntry{Role: "user", Content: fmt.Sprintf("msg-%d", i)})
	}

	history := c.History("s1")
	if len(history) != 5 {
		t.Fatalf("expected history trimmed to 5, got %d", len(history))
	}
	if history[0].Content != "msg-3" {
		t.Errorf("expected oldest entries dropped, head is %q", history[0].Content)
	}
}

func TestConversationClear(t *testing.T) {
	c := NewConversation(domain.MemoryConfig{}, nil)
	c.Append("s1", domain.ConversationEntry{Role: "user", Content: "x"})

	c.Clear("s1")
	if len(c.History("s1")) != 0 {
		t.Error("expected cleared session to be empty")
	}
	if c.Sessions() != 0 {
		t.Errorf("expected no sessions, got %d", c.Sessions())
	}
}
