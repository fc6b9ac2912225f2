package sandbox

import (
	"context"
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/strixrun/agentrun/pkg/action"
	"github.com/strixrun/agentrun/pkg/agent"
	"github.com/strixrun/agentrun/pkg/rpc"
)

// ErrWorkerDied is returned when a worker self-terminates mid-request; the
// caller observes this as a response timeout failure model.
type ErrWorkerDied struct{ AgentID string }

func (e *ErrWorkerDied) Error() string { return fmt.Sprintf("sandbox worker for agent %s died", e.AgentID) }

// ParallelConcurrency bounds how many parallel-tagged invocations within a
// single Dispatch call run concurrently.
const ParallelConcurrency = 4

// Dispatcher implements agent.Dispatcher: it owns one supervised worker per
// agent, gates every invocation by role before it reaches a worker, and
// serializes sequential invocations while fanning parallel ones out.
type Dispatcher struct {
	registry *action.Registry
	runID    string
	secret   []byte
	log      hclog.Logger

	mu      sync.Mutex
	workers map[string]*supervisedWorker
}

// NewDispatcher constructs a Dispatcher backed by registry for a given run.
func NewDispatcher(registry *action.Registry, runID string, secret []byte, log hclog.Logger) *Dispatcher {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Dispatcher{registry: registry, runID: runID, secret: secret, log: log, workers: make(map[string]*supervisedWorker)}
}

func (d *Dispatcher) workerFor(agentID string) *supervisedWorker {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[agentID]
	if !ok {
		w = newSupervisedWorker(WorkerConfig{AgentID: agentID, RunID: d.runID, Secret: d.secret}, d.log)
		d.workers[agentID] = w
	}
	return w
}

// Dispatch implements agent.Dispatcher. Invocations are assumed to already
// be partitioned sequential-vs-parallel by the caller (pkg/agent.Loop); this
// method executes the given batch against one agent's worker. A batch whose
// entries are all sequential runs one at a time in order; any other batch
// runs every entry concurrently, at most ParallelConcurrency at once.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID string, role agent.Role, invocations []agent.Invocation) []agent.ActionResult {
	results := make([]agent.ActionResult, len(invocations))
	sw := d.workerFor(agentID)

	runOne := func(i int) {
		inv := invocations[i]
		val, err := d.dispatchOne(ctx, sw, agentID, role, inv)
		results[i] = agent.ActionResult{Invocation: inv, Value: val, Err: err}
	}

	allSequential := true
	for _, inv := range invocations {
		if !inv.Sequential {
			allSequential = false
			break
		}
	}
	if allSequential {
		for i := range invocations {
			runOne(i)
		}
		return results
	}

	sem := semaphore.NewWeighted(ParallelConcurrency)
	var wg sync.WaitGroup
	for i := range invocations {
		i := i
		wg.Add(1)
		_ = sem.Acquire(ctx, 1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			runOne(i)
		}()
	}
	wg.Wait()
	return results
}

// dispatchOne gates role permission, then runs the call against the
// agent's supervised worker, returning the result value and any error.
func (d *Dispatcher) dispatchOne(ctx context.Context, sw *supervisedWorker, agentID string, role agent.Role, inv agent.Invocation) (any, error) {
	reg, ok := d.registry.Lookup(inv.Name)
	if !ok {
		return nil, &action.ErrActionNotFound{Name: inv.Name}
	}
	if !action.IsAllowed(role, reg.Module, reg.Name) {
		return nil, &action.ErrPermissionDenied{Role: string(role), Action: inv.Name}
	}

	out, err := sw.run(ctx, func(ctx context.Context, w *Worker) (any, error) {
		return w.Execute(ctx, rpc.ExecuteRequest{AgentID: agentID, Action: inv.Name, Arguments: inv.Arguments})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ErrWorkerDied{AgentID: agentID}
		}
		return nil, err
	}
	return out, nil
}
