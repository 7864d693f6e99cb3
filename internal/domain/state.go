package domain

import (
	"fmt"
	"sync"
	"time"
)

// StateVariable is one entry in a workflow execution's shared variable
// map. A zero TTL means the entry never expires.
type StateVariable struct {
	Key        string        `json:"key"`
	Value      interface{}   `json:"value"`
	Type       string        `json:"type"`
	ProducedBy string        `json:"produced_by"`
	SetAt      time.Time     `json:"set_at"`
	TTL        time.Duration `json:"ttl,omitempty"`
}

func (v *StateVariable) Expired(now time.Time) bool {
	return v.TTL > 0 && now.After(v.SetAt.Add(v.TTL))
}

type ConversationEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	WorkerID  string    `json:"worker_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// SharedState is the per-execution store through which steps exchange
// data. It is scoped to exactly one workflow execution; concurrent
// writes from sibling steps in a parallel group are serialized here,
// last write wins by write order.
type SharedState struct {
	mu           sync.RWMutex
	variables    map[string]*StateVariable
	order        []string
	conversation []ConversationEntry
	artifacts    map[string]interface{}
	metrics      map[string]float64
}

func NewSharedState() *SharedState {
	return &SharedState{
		variables: make(map[string]*StateVariable),
		artifacts: make(map[string]interface{}),
		metrics:   make(map[string]float64),
	}
}

func (s *SharedState) Set(key string, value interface{}, producedBy string) {
	s.SetWithTTL(key, value, producedBy, 0)
}

func (s *SharedState) SetWithTTL(key string, value interface{}, producedBy string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variables[key]; !exists {
		s.order = append(s.order, key)
	}
	s.variables[key] = &StateVariable{
		Key:        key,
		Value:      value,
		Type:       fmt.Sprintf("%T", value),
		ProducedBy: producedBy,
		SetAt:      time.Now(),
		TTL:        ttl,
	}
}

// Get returns the live value for key. Expired entries are invisible and
// purged on the spot.
func (s *SharedState) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variables[key]
	if !ok {
		return nil, false
	}
	if v.Expired(time.Now()) {
		s.removeLocked(key)
		return nil, false
	}
	return v.Value, true
}

func (s *SharedState) GetVariable(key string) (*StateVariable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variables[key]
	if !ok {
		return nil, false
	}
	if v.Expired(time.Now()) {
		s.removeLocked(key)
		return nil, false
	}
	copied := *v
	return &copied, true
}

func (s *SharedState) removeLocked(key string) {
	delete(s.variables, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Keys returns live variable keys in insertion order.
func (s *SharedState) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(s.order))
	for _, k := range s.order {
		if v, ok := s.variables[k]; ok && !v.Expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Snapshot copies the live variable map for read-only consumers such as
// input mapping and condition evaluation.
func (s *SharedState) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	snapshot := make(map[string]interface{}, len(s.variables))
	for k, v := range s.variables {
		if !v.Expired(now) {
			snapshot[k] = v.Value
		}
	}
	return snapshot
}

func (s *SharedState) AppendConversation(entry ConversationEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.conversation = append(s.conversation, entry)
}

func (s *SharedState) Conversation() []ConversationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ConversationEntry, len(s.conversation))
	copy(out, s.conversation)
	return out
}

func (s *SharedState) SetArtifact(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[key] = value
}

func (s *SharedState) Artifact(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.artifacts[key]
	return v, ok
}

// MergeArtifacts folds a step's artifact map into the execution's
// artifact map, deep-merging nested objects.
func (s *SharedState) MergeArtifacts(incoming map[string]interface{}) error {
	if len(incoming) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return mergeValueMaps(s.artifacts, incoming)
}

func (s *SharedState) RecordMetric(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[key] += value
}

func (s *SharedState) Metrics() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}

// Sweep purges expired variables. Pure housekeeping; reads already
// treat expired entries as absent.
func (s *SharedState) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, k := range append([]string(nil), s.order...) {
		if v, ok := s.variables[k]; ok && v.Expired(now) {
			s.removeLocked(k)
			removed++
		}
	}
	return removed
}
