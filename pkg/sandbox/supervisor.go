package sandbox

import (
	"context"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// maxConsecutiveFailures is the number of failed calls in a row after
// which the supervisor kills the worker subprocess; the next call launches
// a fresh instance.
const maxConsecutiveFailures = 5

// supervisedWorker pairs a live Worker with the config needed to relaunch
// it. Its lock guards the worker handle and the failure count only; calls
// themselves may overlap, and sequential actions run one at a time because
// Dispatch runs an all-sequential batch in order.
type supervisedWorker struct {
	mu     sync.Mutex
	cfg    WorkerConfig
	worker *Worker
	log    hclog.Logger

	consecutiveFailures int
}

func newSupervisedWorker(cfg WorkerConfig, log hclog.Logger) *supervisedWorker {
	return &supervisedWorker{cfg: cfg, log: log}
}

// ensure starts the subprocess on first use or after a prior termination.
func (s *supervisedWorker) ensure(ctx context.Context) (*Worker, error) {
	if s.worker != nil && s.worker.Alive() {
		return s.worker, nil
	}
	w, err := Launch(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.worker = w
	s.consecutiveFailures = 0
	return w, nil
}

// run executes one call against this agent's worker, launching it first if
// it is not running, and kills it once maxConsecutiveFailures calls in a
// row have failed.
func (s *supervisedWorker) run(ctx context.Context, fn func(ctx context.Context, w *Worker) (any, error)) (any, error) {
	s.mu.Lock()
	w, err := s.ensure(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, responseWaitTimeout)
	defer cancel()

	result, callErr := fn(callCtx, w)

	s.mu.Lock()
	defer s.mu.Unlock()
	if callErr != nil {
		s.consecutiveFailures++
		if s.consecutiveFailures >= maxConsecutiveFailures && s.worker == w {
			s.log.Warn("sandbox worker exceeded consecutive failure threshold, restarting", "agent_id", s.cfg.AgentID)
			w.Kill()
			s.worker = nil
		}
		return nil, callErr
	}
	s.consecutiveFailures = 0
	return result, nil
}

const (
	requestEnqueueTimeout = 120 * time.Second
	responseWaitTimeout   = 180 * time.Second
)
