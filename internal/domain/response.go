package domain

import (
	"time"
)

// WorkerRequest is what a caller submits when invoking a worker, either
// directly or as one workflow step.
type WorkerRequest struct {
	WorkerID   string                 `json:"worker_id"`
	Payload    string                 `json:"payload"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Parameters RequestParameters      `json:"parameters,omitempty"`
	Options    InvocationOptions      `json:"options,omitempty"`
}

type RequestParameters struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Format      string  `json:"format,omitempty"`
}

type InvocationOptions struct {
	Timeout     time.Duration `json:"timeout,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	SkipCache   bool          `json:"skip_cache,omitempty"`
	CacheTTL    time.Duration `json:"cache_ttl,omitempty"`
	Priority    int           `json:"priority,omitempty"`
}

// BackendRequest is the wire shape handed to the inference backend. Its
// internals past this boundary are opaque.
type BackendRequest struct {
	WorkerID      string                 `json:"worker_id"`
	Prompt        string                 `json:"prompt"`
	SessionID     string                 `json:"session_id"`
	UserID        string                 `json:"user_id"`
	PriorOutput   []string               `json:"prior_output,omitempty"`
	StateSnapshot map[string]interface{} `json:"state_snapshot,omitempty"`
	Parameters    RequestParameters      `json:"parameters,omitempty"`
}

type BackendResponse struct {
	Text         string  `json:"text"`
	Backend      string  `json:"backend"`
	Confidence   float64 `json:"confidence"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostPerToken float64 `json:"cost_per_token,omitempty"`
}

type ReasoningStep struct {
	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`
	Confidence  float64  `json:"confidence"`
}

type ReasoningTrace struct {
	Steps      []ReasoningStep `json:"steps,omitempty"`
	Conclusion string          `json:"conclusion,omitempty"`
	Confidence float64         `json:"confidence"`
}

type SourceReference struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type Recommendation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Actionable  bool   `json:"actionable"`
}

type ResponseMetadata struct {
	InputTokens    int           `json:"input_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	TotalTokens    int           `json:"total_tokens"`
	ProcessingTime time.Duration `json:"processing_time"`
	Backend        string        `json:"backend,omitempty"`
	CacheHit       bool          `json:"cache_hit"`
}

type PerformanceMetrics struct {
	Latency        time.Duration `json:"latency"`
	TokensUsed     int           `json:"tokens_used"`
	MemoryEstimate int           `json:"memory_estimate_mb,omitempty"`
	QueueWait      time.Duration `json:"queue_wait,omitempty"`
}

// WorkerResponse is the standard response shape every worker's parse
// stage produces.
type WorkerResponse struct {
	WorkerID        string                 `json:"worker_id"`
	SessionID       string                 `json:"session_id"`
	Text            string                 `json:"text"`
	Confidence      float64                `json:"confidence"`
	Reasoning       ReasoningTrace         `json:"reasoning,omitempty"`
	Sources         []SourceReference      `json:"sources,omitempty"`
	Recommendations []Recommendation       `json:"recommendations,omitempty"`
	NextActions     []string               `json:"next_actions,omitempty"`
	Artifacts       map[string]interface{} `json:"artifacts,omitempty"`
	Metadata        ResponseMetadata       `json:"metadata"`
	Cost            CostRollup             `json:"cost"`
	Performance     PerformanceMetrics     `json:"performance"`
}
