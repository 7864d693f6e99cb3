package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
)

// Pipeline is the fixed execution template wrapping every concrete
// worker: security validation, rate limiting, input validation, cache
// lookup, request build, backend invocation with retry, response parse,
// conversation update, cache store, and metrics. Only the four
// capability methods differ per worker.
type Pipeline struct {
	registry  ports.WorkerRegistry
	security  ports.SecurityValidator
	limiter   ports.RateLimiter
	cache     ports.ResponseCache
	memory    ports.ConversationMemory
	backend   ports.InferenceBackend
	config    domain.WorkerConfig
	cacheTTL  time.Duration
	engineMet *domain.EngineMetrics
	logger    *slog.Logger

	mu      sync.RWMutex
	metrics map[string]*domain.WorkerMetrics
}

type PipelineDeps struct {
	Registry ports.WorkerRegistry
	Security ports.SecurityValidator
	Limiter  ports.RateLimiter
	Cache    ports.ResponseCache
	Memory   ports.ConversationMemory
	Backend  ports.InferenceBackend
	Metrics  *domain.EngineMetrics
}

func NewPipeline(deps PipelineDeps, config domain.WorkerConfig, cacheTTL time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = domain.NewEngineMetrics()
	}

	return &Pipeline{
		registry:  deps.Registry,
		security:  deps.Security,
		limiter:   deps.Limiter,
		cache:     deps.Cache,
		memory:    deps.Memory,
		backend:   deps.Backend,
		config:    config,
		cacheTTL:  cacheTTL,
		engineMet: deps.Metrics,
		logger:    logger.With("component", "worker-pipeline"),
		metrics:   make(map[string]*domain.WorkerMetrics),
	}
}

func (p *Pipeline) Invoke(ctx context.Context, workerID string, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.WorkerResponse, error) {
	started := time.Now()
	req.WorkerID = workerID

	registration, err := p.registry.Lookup(workerID)
	if err != nil {
		return nil, err
	}

	verdict := p.security.Validate(req, execCtx, requiredCapability(registration.Descriptor))
	if !verdict.IsValid {
		p.engineMet.IncrementSecurityRejected()
		return nil, &domain.SecurityError{
			WorkerID:   workerID,
			Violations: verdict.Violations,
			RiskScore:  verdict.RiskScore,
		}
	}

	if err := p.limiter.Check(execCtx.UserID, workerID); err != nil {
		p.engineMet.IncrementRateLimitRejected()
		return nil, err
	}

	if err := registration.Worker.ValidateInput(ctx, req); err != nil {
		p.engineMet.IncrementValidationRejected()
		if domain.IsValidationError(err) {
			return nil, err
		}
		return nil, domain.NewValidationError("input", err.Error())
	}

	cacheKey := requestCacheKey(workerID, req, execCtx)
	if !req.Options.SkipCache {
		if cached, hit := p.cache.Get(cacheKey); hit {
			p.engineMet.IncrementCacheHits()
			p.recordMetrics(workerID, cached.Metadata.TotalTokens, 0, false, true)
			p.logger.Debug("cache hit", "worker_id", workerID, "key", cacheKey)
			return cachedResponse(cached), nil
		}
	}

	backendReq, err := registration.Worker.BuildRequest(ctx, req, execCtx)
	if err != nil {
		return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeBadRequest, err)
	}

	queueWait := time.Since(started)

	raw, attempts, err := p.invokeWithRetry(ctx, workerID, backendReq, req.Options)
	if err != nil {
		p.engineMet.IncrementWorkersInvoked()
		p.recordMetrics(workerID, 0, time.Since(started), true, false)
		return nil, err
	}

	resp, err := registration.Worker.ParseResponse(ctx, raw)
	if err != nil {
		// The backend was reached, so the invocation counts even
		// though its response was unusable.
		p.engineMet.IncrementWorkersInvoked()
		p.recordMetrics(workerID, 0, time.Since(started), true, false)
		return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeInternal, err)
	}

	elapsed := time.Since(started)
	finishResponse(resp, workerID, execCtx, raw, elapsed, queueWait)

	p.updateConversation(execCtx, req, resp)

	if !req.Options.SkipCache {
		ttl := req.Options.CacheTTL
		if ttl <= 0 {
			ttl = p.cacheTTL
		}
		p.cache.Set(cacheKey, resp, ttl)
	}

	p.engineMet.IncrementWorkersInvoked()
	p.recordMetrics(workerID, resp.Metadata.TotalTokens, elapsed, false, false)

	p.logger.Debug("worker invocation completed",
		"worker_id", workerID,
		"duration", elapsed,
		"attempts", attempts,
		"tokens", resp.Metadata.TotalTokens,
	)
	return resp, nil
}

// invokeWithRetry calls the backend with exponential backoff. Only
// failures whose code is in the policy's retryable set are retried; the
// last error propagates once attempts are exhausted.
func (p *Pipeline) invokeWithRetry(ctx context.Context, workerID string, backendReq *domain.BackendRequest, opts domain.InvocationOptions) (*domain.BackendResponse, int, error) {
	policy := p.config.Retry
	maxAttempts := policy.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	timeout := p.config.InvokeTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt-1)
			p.logger.Debug("retrying backend invocation",
				"worker_id", workerID,
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := sleepContext(ctx, delay); err != nil {
				return nil, attempt, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeTimeout, err)
			}
		}

		invokeCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			invokeCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		raw, err := p.backend.Invoke(invokeCtx, backendReq)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return raw, attempt + 1, nil
		}

		code := classifyFailure(err)
		lastErr = domain.NewWorkerInvocationError(workerID, code, err)
		if !policy.Retryable(code) {
			return nil, attempt + 1, lastErr
		}
	}
	return nil, maxAttempts, lastErr
}

func (p *Pipeline) updateConversation(execCtx *domain.ExecutionContext, req *domain.WorkerRequest, resp *domain.WorkerResponse) {
	if p.memory == nil || execCtx.SessionID == "" {
		return
	}
	p.memory.Append(execCtx.SessionID, domain.ConversationEntry{
		Role:    "user",
		Content: req.Payload,
	})
	p.memory.Append(execCtx.SessionID, domain.ConversationEntry{
		Role:     "assistant",
		Content:  resp.Text,
		WorkerID: resp.WorkerID,
	})
}

func (p *Pipeline) recordMetrics(workerID string, tokens int, d time.Duration, failed, cacheHit bool) {
	p.mu.Lock()
	m, exists := p.metrics[workerID]
	if !exists {
		m = &domain.WorkerMetrics{}
		p.metrics[workerID] = m
	}
	p.mu.Unlock()

	m.Record(tokens, d, failed, cacheHit)
}

func (p *Pipeline) Metrics(workerID string) domain.WorkerMetrics {
	p.mu.RLock()
	m, exists := p.metrics[workerID]
	p.mu.RUnlock()

	if !exists {
		return domain.WorkerMetrics{}
	}
	return m.GetSnapshot()
}

// requiredCapability is the first declared capability, the one the
// caller must hold to invoke the worker.
func requiredCapability(descriptor domain.WorkerDescriptor) string {
	if len(descriptor.Capabilities) == 0 {
		return ""
	}
	return descriptor.Capabilities[0]
}

// requestCacheKey hashes the worker id, payload and relevant context
// fields into a stable cache key.
func requestCacheKey(workerID string, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", workerID, req.Payload, execCtx.SessionID, execCtx.UserID, execCtx.PageContext)

	if len(req.Fields) > 0 {
		keys := make([]string, 0, len(req.Fields))
		for k := range req.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "|%s=%v", k, req.Fields[k])
		}
	}
	return fmt.Sprintf("%s:%x", workerID, h.Sum64())
}

// cachedResponse copies a cached response, flagging the hit and
// zeroing processing time.
func cachedResponse(resp *domain.WorkerResponse) *domain.WorkerResponse {
	out := *resp
	out.Metadata.CacheHit = true
	out.Metadata.ProcessingTime = 0
	out.Performance.Latency = 0
	return &out
}

func finishResponse(resp *domain.WorkerResponse, workerID string, execCtx *domain.ExecutionContext, raw *domain.BackendResponse, elapsed, queueWait time.Duration) {
	resp.WorkerID = workerID
	resp.SessionID = execCtx.SessionID
	resp.Metadata.InputTokens = raw.InputTokens
	resp.Metadata.OutputTokens = raw.OutputTokens
	resp.Metadata.TotalTokens = raw.InputTokens + raw.OutputTokens
	resp.Metadata.ProcessingTime = elapsed
	resp.Metadata.Backend = raw.Backend
	resp.Metadata.CacheHit = false

	if resp.Confidence == 0 {
		resp.Confidence = raw.Confidence
	}

	tokenCost := float64(resp.Metadata.TotalTokens) * raw.CostPerToken
	resp.Cost = domain.CostRollup{
		TokenCost: tokenCost,
		Total:     tokenCost,
		Currency:  "USD",
	}

	resp.Performance = domain.PerformanceMetrics{
		Latency:    elapsed,
		TokensUsed: resp.Metadata.TotalTokens,
		QueueWait:  queueWait,
	}
}
