package domain

import (
	"testing"
	"time"
)

func TestSharedStateSetGet(t *testing.T) {
	state := NewSharedState()

	state.Set("topic", "billing", "classifier")
	value, ok := state.Get("topic")
	if !ok {
		t.Fatal("expected topic to be present")
	}
	if value != "billing" {
		t.Errorf("expected billing, got %v", value)
	}

	v, ok := state.GetVariable("topic")
	if !ok {
		t.Fatal("expected variable record")
	}
	if v.ProducedBy != "classifier" {
		t.Errorf("expected producer classifier, got %s", v.ProducedBy)
	}
	if v.Type != "string" {
		t.Errorf("expected inferred type string, got %s", v.Type)
	}

	if _, ok := state.Get("missing"); ok {
		t.Error("absent key reported present")
	}
}

func TestSharedStateTTLExpiry(t *testing.T) {
	state := NewSharedState()

	state.SetWithTTL("transient", 42, "w1", 20*time.Millisecond)
	if _, ok := state.Get("transient"); !ok {
		t.Fatal("expected value before expiry")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := state.Get("transient"); ok {
		t.Error("expected value to be invisible after TTL")
	}
	if keys := state.Keys(); len(keys) != 0 {
		t.Errorf("expected no live keys, got %v", keys)
	}
}

func TestSharedStateKeysInsertionOrder(t *testing.T) {
	state := NewSharedState()
	state.Set("a", 1, "w")
	state.Set("b", 2, "w")
	state.Set("c", 3, "w")
	state.Set("b", 20, "w")

	keys := state.Keys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("position %d: expected %s, got %s", i, k, keys[i])
		}
	}
}

func TestSharedStateSweep(t *testing.T) {
	state := NewSharedState()
	state.SetWithTTL("gone", "x", "w", time.Millisecond)
	state.Set("kept", "y", "w")

	time.Sleep(10 * time.Millisecond)
	if removed := state.Sweep(); removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if _, ok := state.Get("kept"); !ok {
		t.Error("non-expiring entry was swept")
	}
}

func TestSharedStateConversation(t *testing.T) {
	state := NewSharedState()
	state.AppendConversation(ConversationEntry{Role: "user", Content: "hello"})
	state.AppendConversation(ConversationEntry{Role: "assistant", Content: "hi", WorkerID: "greeter"})

	history := state.Conversation()
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be stamped on append")
	}
	if history[1].WorkerID != "greeter" {
		t.Errorf("expected worker id on assistant entry, got %q", history[1].WorkerID)
	}
}

func TestSharedStateMergeArtifacts(t *testing.T) {
	state := NewSharedState()
	state.SetArtifact("report", map[string]interface{}{
		"sections": []interface{}{"intro"},
		"meta":     map[string]interface{}{"author": "w1"},
	})

	err := state.MergeArtifacts(map[string]interface{}{
		"report": map[string]interface{}{
			"sections": []interface{}{"body"},
			"meta":     map[string]interface{}{"reviewed": true},
		},
	})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	raw, ok := state.Artifact("report")
	if !ok {
		t.Fatal("expected report artifact")
	}
	report := raw.(map[string]interface{})

	sections := report["sections"].([]interface{})
	if len(sections) != 2 {
		t.Errorf("expected appended sections, got %v", sections)
	}
	meta := report["meta"].(map[string]interface{})
	if meta["author"] != "w1" || meta["reviewed"] != true {
		t.Errorf("expected deep-merged meta, got %v", meta)
	}
}

func TestSharedStateMetrics(t *testing.T) {
	state := NewSharedState()
	state.RecordMetric("tokens", 100)
	state.RecordMetric("tokens", 50)

	if got := state.Metrics()["tokens"]; got != 150 {
		t.Errorf("expected accumulated 150, got %v", got)
	}
}
