package runtime

import (
	"time"

	"github.com/strixrun/agentrun/pkg/memory"
	"github.com/strixrun/agentrun/pkg/reconciler"
	"github.com/strixrun/agentrun/pkg/runconfig"
	"github.com/strixrun/agentrun/pkg/thinker"
)

// DefaultCompactor builds the Memory Compactor with memory.DefaultConfig();
// it takes no run configuration.
func DefaultCompactor() *memory.Compactor {
	return memory.New(memory.DefaultConfig())
}

// DefaultReconciler builds the Reconciler; it carries no tunables of its
// own beyond the canonical thresholds fixed in 
func DefaultReconciler() *reconciler.Reconciler {
	return reconciler.New()
}

// ThinkerClientConfig derives a thinker.ClientConfig from the run
// configuration.
func ThinkerClientConfig(cfg runconfig.Config) thinker.ClientConfig {
	return thinker.ClientConfig{
		Model:            cfg.ThinkerModel,
		SystemPrompt:     cfg.ThinkerSystemPrompt,
		StreamingEnabled: cfg.StreamingEnabled,
		StreamingOptOut:  cfg.StreamingOptOut,
		MaxRetries:       3,
		BackoffStart:     2 * time.Second,
		BackoffCeiling:   16 * time.Second,
	}
}

// ThinkerCacheAndQueue derives the Response Cache / Request Queue / Circuit
// Breaker sub-collaborators from the run configuration.
func ThinkerCacheAndQueue(cfg runconfig.Config) (*thinker.ResponseCache, *thinker.RequestQueue, *thinker.CircuitBreaker) {
	cache := thinker.NewResponseCache(cfg.CacheMaxSize, cfg.CacheTTL(), cfg.CacheEnabled)
	queue := thinker.NewRequestQueue(thinker.QueueConfig{
		MaxConcurrent:        cfg.MaxConcurrentThinkerRequests,
		MinInterRequestDelay: cfg.MinInterRequestDelay(),
	})
	breaker := thinker.NewCircuitBreaker(thinker.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitFailureThreshold,
		RecoveryTimeout:  cfg.CircuitRecoveryTimeout(),
	})
	return cache, queue, breaker
}
