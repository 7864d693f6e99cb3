package domain

import (
	"time"
)

func DefaultConfig() *Config {
	return &Config{
		Health:    DefaultHealthConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Cache:     DefaultCacheConfig(),
		Memory:    DefaultMemoryConfig(),
		Security:  DefaultSecurityConfig(),
		Worker:    DefaultWorkerConfig(),
		Engine:    DefaultEngineConfig(),
	}
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		CheckInterval:          30 * time.Second,
		ProbeTimeout:           5 * time.Second,
		MaxConsecutiveFailures: 3,
	}
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute:     60,
		WorkerRequestsPerHour: 1000,
		BurstLimit:            10,
		BurstWindow:           10 * time.Second,
		SweepInterval:         5 * time.Minute,
	}
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL:    15 * time.Minute,
		SweepInterval: time.Minute,
		MaxEntries:    10000,
	}
}

func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxConversationLength: 200,
		CompressThreshold:     50,
		KeepEdges:             5,
	}
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxInputLength: 32768,
	}
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Retry: RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		InvokeTimeout: 60 * time.Second,
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentExecutions: 10,
		StepTimeout:             2 * time.Minute,
		WorkflowTimeout:         30 * time.Minute,
	}
}
