package domain

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger *slog.Logger `json:"-" yaml:"-"`

	Health    HealthConfig    `json:"health" yaml:"health"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	Worker    WorkerConfig    `json:"worker" yaml:"worker"`
	Engine    EngineConfig    `json:"engine" yaml:"engine"`
}

type HealthConfig struct {
	CheckInterval          time.Duration `json:"check_interval" yaml:"check_interval"`
	ProbeTimeout           time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

type RateLimitConfig struct {
	RequestsPerMinute     int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	WorkerRequestsPerHour int           `json:"worker_requests_per_hour" yaml:"worker_requests_per_hour"`
	BurstLimit            int           `json:"burst_limit" yaml:"burst_limit"`
	BurstWindow           time.Duration `json:"burst_window" yaml:"burst_window"`
	SweepInterval         time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

type CacheConfig struct {
	DefaultTTL    time.Duration `json:"default_ttl" yaml:"default_ttl"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	MaxEntries    int           `json:"max_entries" yaml:"max_entries"`
}

type MemoryConfig struct {
	MaxConversationLength int `json:"max_conversation_length" yaml:"max_conversation_length"`
	CompressThreshold     int `json:"compress_threshold" yaml:"compress_threshold"`
	KeepEdges             int `json:"keep_edges" yaml:"keep_edges"`
}

type SecurityConfig struct {
	MaxInputLength int      `json:"max_input_length" yaml:"max_input_length"`
	SensitiveTerms []string `json:"sensitive_terms,omitempty" yaml:"sensitive_terms,omitempty"`
}

type WorkerConfig struct {
	Retry         RetryPolicy   `json:"retry" yaml:"retry"`
	InvokeTimeout time.Duration `json:"invoke_timeout" yaml:"invoke_timeout"`
}

type EngineConfig struct {
	MaxConcurrentExecutions int           `json:"max_concurrent_executions" yaml:"max_concurrent_executions"`
	StepTimeout             time.Duration `json:"step_timeout" yaml:"step_timeout"`
	WorkflowTimeout         time.Duration `json:"workflow_timeout" yaml:"workflow_timeout"`
}

// LoadConfig reads a YAML config file on top of the defaults. Missing
// file fields keep their default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewValidationError("config", "unparseable config file: "+err.Error())
	}
	return config, nil
}
