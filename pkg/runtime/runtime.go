// Package runtime assembles the collaborators named across  into a
// single runnable unit: one Tracer-rooted run directory, one Action
// Registry, one Sandbox Dispatcher, one Thinker Client, and the Arena that
// lets the root agent spawn and message children, grounded on the
// teacher's config-to-live-agents runtime builder, generalized from
// building declarative Hector agents to building this run's agent tree.
package runtime

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/google/uuid"

	"github.com/strixrun/agentrun/pkg/action"
	"github.com/strixrun/agentrun/pkg/agent"
	"github.com/strixrun/agentrun/pkg/memory"
	"github.com/strixrun/agentrun/pkg/plan"
	"github.com/strixrun/agentrun/pkg/reconciler"
	"github.com/strixrun/agentrun/pkg/runconfig"
	"github.com/strixrun/agentrun/pkg/sandbox"
	"github.com/strixrun/agentrun/pkg/store"
	"github.com/strixrun/agentrun/pkg/thinker"
	"github.com/strixrun/agentrun/pkg/tracer"
)

// Runtime owns every long-lived collaborator for one run.
type Runtime struct {
	cfg    runconfig.Config
	log    *slog.Logger
	layout tracer.RunLayout
	runID  string
	secret []byte

	tracer     *tracer.Tracer
	registry   *action.Registry
	dispatcher *sandbox.Dispatcher
	thinker    *thinker.Client
	compactor  *memory.Compactor
	reconciler *reconciler.Reconciler
	parser     *action.Parser
	plan       *plan.Plan
	notes      *store.NotesStore
	progress   *store.ProgressStore
	scripts    *action.ScriptStore
	arena      *Arena
	control    *hostActions

	metrics         *Metrics
	metricsRegistry *prometheus.Registry
}

// NewRuntime wires every collaborator from cfg, creates the run directory,
// and registers the built-in sandboxed actions. It performs no blocking
// network I/O; Run does.
func NewRuntime(cfg runconfig.Config, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RunName == "" {
		cfg.RunName = deriveRunName()
	}

	layout := tracer.RunLayout{RunsRoot: cfg.RunsRoot, RunName: cfg.RunName}
	tr := tracer.New(layout, log)
	if err := tr.EnsureRunDir(); err != nil {
		return nil, fmt.Errorf("runtime: create run directory: %w", err)
	}

	registry := action.NewRegistry()
	if err := sandbox.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("runtime: register builtin actions: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("runtime: generate sandbox secret: %w", err)
	}
	runID := uuid.NewString()

	dispatcher := sandbox.NewDispatcher(registry, runID, secret, hclog.NewNullLogger())

	transport := thinker.NewHTTPTransport(cfg.ThinkerEndpoint, cfg.ThinkerAPIKey)
	transport.Client.Timeout = cfg.ThinkerTimeout()
	thinkerClient := thinker.NewClient(transport, ThinkerClientConfig(cfg))
	thinkerClient.Cache, thinkerClient.Queue, thinkerClient.Breaker = ThinkerCacheAndQueue(cfg)

	notes, err := store.NewNotesStore(layout.NotesPath())
	if err != nil {
		return nil, fmt.Errorf("runtime: open notes store: %w", err)
	}
	progress, err := store.NewProgressStore(layout.ProgressPath())
	if err != nil {
		return nil, fmt.Errorf("runtime: open progress store: %w", err)
	}

	metricsRegistry := prometheus.NewRegistry()
	metrics := NewMetrics(metricsRegistry)

	rt := &Runtime{
		cfg:    cfg,
		log:    log,
		layout: layout,
		runID:  runID,
		secret: secret,

		tracer:     tr,
		registry:   registry,
		dispatcher: dispatcher,
		thinker:    thinkerClient,
		compactor:  DefaultCompactor(),
		reconciler: DefaultReconciler(),
		parser:     action.NewParser(),
		plan:       plan.New(tr),
		notes:      notes,
		progress:   progress,
		scripts:    action.NewScriptStore(layout.Dir()),

		metrics:         metrics,
		metricsRegistry: metricsRegistry,
	}
	rt.arena = NewArena(rt.spawnAgent)
	rt.control = newHostActions(rt.arena, rt.plan, rt.notes, rt.progress, rt.scripts, rt.tracer)
	thinkerClient.Identity = rt.identityFor

	if cfg.MetricsAddr != "" {
		go func() {
			if err := ServeMetrics(cfg.MetricsAddr, metricsRegistry); err != nil {
				log.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	return rt, nil
}

func deriveRunName() string {
	return "run-" + time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// identityFor implements thinker.IdentityLookup against the arena.
func (rt *Runtime) identityFor(agentID string) (thinker.Identity, bool) {
	a, ok := rt.arena.Get(agentID)
	if !ok {
		return thinker.Identity{}, false
	}
	return thinker.Identity{AgentName: a.Name, AgentID: a.ID, ParentID: a.ParentID}, true
}

// buildLoop constructs the Loop for one already-registered agent, wiring
// every collaborator the Runtime owns.
func (rt *Runtime) buildLoop(a *agent.Agent) *agent.Loop {
	return &agent.Loop{
		Agent:               a,
		Thinker:             rt.thinker,
		Dispatcher:          rt.dispatcher,
		Compactor:           rt.compactor,
		Parser:              rt.parser,
		Reconciler:          rt.reconciler,
		Events:              rt.tracer,
		Control:             rt.control,
		ParallelConcurrency: sandbox.ParallelConcurrency,
	}
}

// spawnAgent implements the closure the Arena calls from Spawn: it builds
// a new agent and Loop and runs it to completion in its own goroutine,
// independent of the caller's iteration.
func (rt *Runtime) spawnAgent(ctx context.Context, id, name string, role agent.Role, parentID, task string) (*agent.Agent, context.CancelFunc, error) {
	childCtx, cancel := context.WithCancel(ctx)

	a := agent.New(id, name, role, parentID, task)
	a.MaxIterations = rt.cfg.MaxIterations
	a.MaxWaitSeconds = rt.cfg.MaxWaitSeconds

	rt.tracer.Emit(tracer.Event{
		EventType: tracer.EventAgentCreated,
		Data: map[string]any{
			"agent_id":  id,
			"name":      name,
			"role":      string(role),
			"parent_id": parentID,
		},
	})

	loop := rt.buildLoop(a)
	go func() {
		defer cancel()
		if _, err := loop.Run(childCtx); err != nil {
			rt.log.Warn("agent run ended with error", "agent_id", id, "err", err)
		}
	}()

	return a, cancel, nil
}

// Run drives the root agent from cfg.Task to a terminal status and returns
// the process exit code : 2 if at least one finding was
// recorded, 0 otherwise. Startup/configuration failures are the caller's
// responsibility to turn into exit code 1 before Run is ever reached.
func (rt *Runtime) Run(ctx context.Context) (int, error) {
	rt.tracer.Emit(tracer.Event{EventType: tracer.EventScanStart, Data: map[string]any{"task": rt.cfg.Task}})

	rootID := uuid.NewString()
	root := agent.New(rootID, "root", action.RoleCoordinator, "", rt.cfg.Task)
	root.MaxIterations = rt.cfg.MaxIterations
	root.MaxWaitSeconds = rt.cfg.MaxWaitSeconds

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt.arena.Register(root, cancel)

	loop := rt.buildLoop(root)
	result, runErr := loop.Run(rootCtx)
	success := runErr == nil

	if err := rt.tracer.SetFinalResult(renderResult(result, runErr), success); err != nil {
		rt.log.Error("write final report failed", "err", err)
	}
	if err := rt.tracer.SaveRunState(rt.runState(success)); err != nil {
		rt.log.Error("save run state failed", "err", err)
	}
	if runErr != nil {
		rt.log.Warn("root agent did not complete normally", "err", runErr)
	}

	rt.arena.RequestStopAll()

	if rt.tracer.FindingCount() > 0 {
		return 2, nil
	}
	return 0, nil
}

func renderResult(result any, err error) string {
	if err != nil {
		return fmt.Sprintf("run did not complete normally: %v", err)
	}
	return fmt.Sprintf("%v", result)
}

func (rt *Runtime) runState(success bool) tracer.RunState {
	now := time.Now().UTC()
	progress := map[string]any{}
	if rt.plan != nil {
		p := rt.plan.GetProgress()
		progress = map[string]any{
			"total": p.Total, "completed": p.Completed, "failed": p.Failed,
			"skipped": p.Skipped, "percent_complete": p.PercentComplete,
		}
	}
	return tracer.RunState{
		RunID:        rt.runID,
		RunName:      rt.cfg.RunName,
		StartTime:    now,
		EndTime:      &now,
		IsComplete:   true,
		AgentsCount:  rt.arena.Count(),
		HasPlan:      rt.plan != nil,
		PlanProgress: progress,
	}
}

// Registry exposes the action registry, used by cmd/agentrun's sandbox
// worker mode (selected by sandbox.WorkerSpawnEnv) to build an identical registry without
// constructing a full Runtime.
func Registry() (*action.Registry, error) {
	reg := action.NewRegistry()
	if err := sandbox.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
