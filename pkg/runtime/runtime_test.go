package runtime

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/strixrun/agentrun/pkg/action"
	"github.com/strixrun/agentrun/pkg/agent"
	"github.com/strixrun/agentrun/pkg/store"
	"github.com/strixrun/agentrun/pkg/tracer"
)

func newTestArena(t *testing.T, spawn func(ctx context.Context, id, name string, role agent.Role, parentID, task string) (*agent.Agent, context.CancelFunc, error)) *Arena {
	t.Helper()
	if spawn == nil {
		spawn = func(ctx context.Context, id, name string, role agent.Role, parentID, task string) (*agent.Agent, context.CancelFunc, error) {
			_, cancel := context.WithCancel(ctx)
			return agent.New(id, name, role, parentID, task), cancel, nil
		}
	}
	return NewArena(spawn)
}

func TestArenaRegisterAndGet(t *testing.T) {
	arena := newTestArena(t, nil)
	root := agent.New("root", "root", action.RoleCoordinator, "", "do the thing")
	_, cancel := context.WithCancel(context.Background())
	arena.Register(root, cancel)

	got, ok := arena.Get("root")
	if !ok || got != root {
		t.Fatalf("Get(%q) = %v, %v; want root agent", "root", got, ok)
	}
	if _, ok := arena.Get("missing"); ok {
		t.Fatalf("Get(missing) reported ok=true")
	}
	if count := arena.Count(); count != 1 {
		t.Fatalf("Count() = %d, want 1", count)
	}
}

func TestArenaSpawnRegistersChild(t *testing.T) {
	var mu sync.Mutex
	var spawnedParent string

	arena := newTestArena(t, func(ctx context.Context, id, name string, role agent.Role, parentID, task string) (*agent.Agent, context.CancelFunc, error) {
		mu.Lock()
		spawnedParent = parentID
		mu.Unlock()
		_, cancel := context.WithCancel(ctx)
		return agent.New(id, name, role, parentID, task), cancel, nil
	})

	childID, err := arena.Spawn("scanner", "probe the login form", action.RoleReconnaissance, "root")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if childID == "" {
		t.Fatal("Spawn returned empty id")
	}
	child, ok := arena.Get(childID)
	if !ok {
		t.Fatalf("spawned child %q not registered", childID)
	}
	if child.Role != action.RoleReconnaissance {
		t.Errorf("child role = %v, want %v", child.Role, action.RoleReconnaissance)
	}

	mu.Lock()
	defer mu.Unlock()
	if spawnedParent != "root" {
		t.Errorf("spawn closure saw parentID %q, want %q", spawnedParent, "root")
	}
}

func TestArenaSendToAgent(t *testing.T) {
	arena := newTestArena(t, nil)
	target := agent.New("target", "target", action.RoleValidator, "root", "validate the finding")
	_, cancel := context.WithCancel(context.Background())
	arena.Register(target, cancel)
	target.Wait()

	if err := arena.Send("target", "root", "new evidence attached"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	snap := target.Snapshot()
	if snap.Status != agent.StatusRunning {
		t.Errorf("target status = %v, want running after message", snap.Status)
	}
	if len(snap.History) == 0 || snap.History[len(snap.History)-1].Content != "[from root] new evidence attached" {
		t.Errorf("target history missing forwarded message: %+v", snap.History)
	}

	if err := arena.Send("nobody", "root", "hi"); err == nil {
		t.Error("Send to unknown target did not error")
	}
}

func TestArenaSendToTerminalAgentFails(t *testing.T) {
	arena := newTestArena(t, nil)
	target := agent.New("target", "target", action.RoleValidator, "root", "validate")
	_, cancel := context.WithCancel(context.Background())
	arena.Register(target, cancel)
	target.Finish(true, "done")

	if err := arena.Send("target", "root", "too late"); err == nil {
		t.Error("Send to a terminal agent did not error")
	}
}

func TestArenaRequestStopAll(t *testing.T) {
	arena := newTestArena(t, nil)
	a := agent.New("a", "a", action.RoleValidator, "", "x")
	b := agent.New("b", "b", action.RoleValidator, "", "y")
	_, cancelA := context.WithCancel(context.Background())
	_, cancelB := context.WithCancel(context.Background())
	arena.Register(a, cancelA)
	arena.Register(b, cancelB)

	arena.RequestStopAll()

	// RequestStop only flips an internal flag the Loop checks at its next
	// safe point; there's no public getter, so this just exercises the
	// method against every registered agent without panicking.
}

func newTestHostActions(t *testing.T) (*hostActions, *Arena) {
	t.Helper()
	dir := t.TempDir()
	arena := newTestArena(t, nil)

	notes, err := store.NewNotesStore(filepath.Join(dir, "notes.json"))
	if err != nil {
		t.Fatalf("NewNotesStore: %v", err)
	}
	progress, err := store.NewProgressStore(filepath.Join(dir, "progress.json"))
	if err != nil {
		t.Fatalf("NewProgressStore: %v", err)
	}
	layout := tracer.RunLayout{RunsRoot: dir, RunName: "run"}
	tr := tracer.New(layout, nil)
	if err := tr.EnsureRunDir(); err != nil {
		t.Fatalf("EnsureRunDir: %v", err)
	}

	return newHostActions(arena, nil, notes, progress, nil, tr), arena
}

func TestHostActionsFinish(t *testing.T) {
	h, _ := newTestHostActions(t)
	a := agent.New("root", "root", action.RoleCoordinator, "", "task")

	value, handled, err := h.Handle(context.Background(), a, agent.Invocation{
		Name:      "finish",
		Arguments: map[string]any{"success": true, "final_result": "all clear"},
	})
	if !handled {
		t.Fatal("finish not handled")
	}
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if value != "all clear" {
		t.Errorf("finish returned %v, want %q", value, "all clear")
	}
	if a.Snapshot().Status != agent.StatusCompleted {
		t.Errorf("agent status = %v, want completed", a.Snapshot().Status)
	}
}

func TestHostActionsUnknownInvocationFallsThrough(t *testing.T) {
	h, _ := newTestHostActions(t)
	a := agent.New("root", "root", action.RoleCoordinator, "", "task")

	_, handled, err := h.Handle(context.Background(), a, agent.Invocation{Name: "run_command"})
	if handled {
		t.Error("sandboxed action name was handled by hostActions")
	}
	if err != nil {
		t.Errorf("unhandled invocation returned error: %v", err)
	}
}

func TestHostActionsRoleGate(t *testing.T) {
	h, _ := newTestHostActions(t)
	// Validators cannot spawn_agent per the role profile table.
	a := agent.New("v1", "validator", action.RoleValidator, "root", "task")

	_, handled, err := h.Handle(context.Background(), a, agent.Invocation{
		Name:      "spawn_agent",
		Arguments: map[string]any{"name": "x", "task": "y", "role": "reconnaissance"},
	})
	if !handled {
		t.Fatal("role-gated action should report handled=true with a permission error")
	}
	if err == nil {
		t.Error("expected a permission-denied error, got nil")
	}
	if _, ok := err.(*action.ErrPermissionDenied); !ok {
		t.Errorf("error type = %T, want *action.ErrPermissionDenied", err)
	}
}

func TestHostActionsSpawnAgent(t *testing.T) {
	h, arena := newTestHostActions(t)
	root := agent.New("root", "root", action.RoleCoordinator, "", "task")

	value, handled, err := h.Handle(context.Background(), root, agent.Invocation{
		Name: "spawn_agent",
		Arguments: map[string]any{
			"name": "recon-1", "task": "enumerate endpoints", "role": "reconnaissance",
		},
	})
	if !handled || err != nil {
		t.Fatalf("spawn_agent: handled=%v err=%v", handled, err)
	}
	childID, ok := value.(string)
	if !ok || childID == "" {
		t.Fatalf("spawn_agent returned %v, want a non-empty child id", value)
	}
	if _, ok := arena.Get(childID); !ok {
		t.Errorf("spawned child %q not registered in arena", childID)
	}
}

func TestHostActionsNotesRoundTrip(t *testing.T) {
	h, _ := newTestHostActions(t)
	a := agent.New("root", "root", action.RoleCoordinator, "", "task")

	value, handled, err := h.Handle(context.Background(), a, agent.Invocation{
		Name: "create_note",
		Arguments: map[string]any{
			"title": "interesting header", "content": "X-Debug: 1", "category": "findings", "priority": "normal",
		},
	})
	if !handled || err != nil {
		t.Fatalf("create_note: handled=%v err=%v", handled, err)
	}
	if value == nil {
		t.Fatal("create_note returned nil note")
	}

	list, handled, err := h.Handle(context.Background(), a, agent.Invocation{Name: "list_notes", Arguments: map[string]any{}})
	if !handled || err != nil {
		t.Fatalf("list_notes: handled=%v err=%v", handled, err)
	}
	notes, ok := list.([]store.Note)
	if !ok || len(notes) != 1 {
		t.Fatalf("list_notes = %#v, want one note", list)
	}
}

func TestHostActionsScriptsUnavailableForCoordinator(t *testing.T) {
	h, _ := newTestHostActions(t)
	// Coordinator's profile doesn't include the scripts module at all.
	a := agent.New("root", "root", action.RoleCoordinator, "", "task")

	_, handled, err := h.Handle(context.Background(), a, agent.Invocation{Name: "create_script"})
	if !handled {
		t.Fatal("create_script should be recognized as a control action")
	}
	if err == nil {
		t.Error("expected a permission error for a role without the scripts module")
	}
}

func TestHostActionsNoPlanConfigured(t *testing.T) {
	h, _ := newTestHostActions(t)
	a := agent.New("root", "root", action.RoleVulnerabilityTester, "", "task")

	_, handled, err := h.Handle(context.Background(), a, agent.Invocation{
		Name:      "add_task",
		Arguments: map[string]any{"task_id": "t1", "title": "x"},
	})
	if !handled {
		t.Fatal("add_task should be recognized as a control action")
	}
	if err == nil {
		t.Error("expected an error when no run plan is configured")
	}
}
