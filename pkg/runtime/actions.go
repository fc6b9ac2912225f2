package runtime

import (
	"context"
	"fmt"

	"github.com/strixrun/agentrun/pkg/action"
	"github.com/strixrun/agentrun/pkg/agent"
	"github.com/strixrun/agentrun/pkg/plan"
	"github.com/strixrun/agentrun/pkg/store"
	"github.com/strixrun/agentrun/pkg/tracer"
)

// hostActions implements agent.ControlActions: the invocation names listed
// here mutate state that exists only on the host (the arena, the run plan,
// the notes/progress stores, the findings index) and so are handled
// in-process rather than routed through the sandboxed Dispatcher, per
// observation that such state has no meaning inside an
// isolated subprocess.
type hostActions struct {
	arena    *Arena
	plan     *plan.Plan
	notes    *store.NotesStore
	progress *store.ProgressStore
	scripts  *action.ScriptStore
	tracer   *tracer.Tracer
}

// newHostActions wires the control surface to its collaborators. Any of
// plan/scripts may be nil if the run doesn't use them (plan is optional
// ; scripts are only reachable by vulnerability_tester and
// fix_generator roles).
func newHostActions(arena *Arena, pl *plan.Plan, notes *store.NotesStore, progress *store.ProgressStore, scripts *action.ScriptStore, tr *tracer.Tracer) *hostActions {
	return &hostActions{arena: arena, plan: pl, notes: notes, progress: progress, scripts: scripts, tracer: tr}
}

// moduleFor maps a control action's bare name to the module tag used by
// the role-gate in pkg/action so hostActions enforces the same permission
// table a sandboxed dispatch would.
var moduleFor = map[string]string{
	"finish":          "finish",
	"wait":            "wait",
	"spawn_agent":     "spawn_agent",
	"send_to_agent":   "send_to_agent",
	"record_finding":  "record_finding",
	"save_progress":   "save_progress",
	"load_progress":   "load_progress",
	"list_progress":   "list_progress",
	"create_note":     "notes",
	"update_note":     "notes",
	"delete_note":     "notes",
	"list_notes":      "notes",
	"create_script":   "scripts",
	"get_script":      "scripts",
	"list_scripts":    "scripts",
	"delete_script":   "scripts",
	"add_task":        "agents_graph",
	"start_task":      "agents_graph",
	"complete_task":   "agents_graph",
	"fail_task":       "agents_graph",
	"skip_task":       "agents_graph",
	"get_next_task":   "agents_graph",
	"get_progress":    "agents_graph",
}

// Handle implements agent.ControlActions.
func (h *hostActions) Handle(ctx context.Context, a *agent.Agent, inv agent.Invocation) (any, bool, error) {
	module, known := moduleFor[inv.Name]
	if !known {
		return nil, false, nil
	}
	if !action.IsAllowed(a.Role, module, inv.Name) {
		return nil, true, &action.ErrPermissionDenied{Role: a.Role, Action: inv.Name}
	}

	switch inv.Name {
	case "finish":
		success, _ := inv.Arguments["success"].(bool)
		result := inv.Arguments["final_result"]
		a.Finish(success, result)
		return result, true, nil

	case "wait":
		a.Wait()
		return nil, true, nil

	case "spawn_agent":
		name, _ := inv.Arguments["name"].(string)
		task, _ := inv.Arguments["task"].(string)
		roleStr, _ := inv.Arguments["role"].(string)
		childID, err := h.arena.Spawn(name, task, agent.Role(roleStr), a.ID)
		return childID, true, err

	case "send_to_agent":
		target, _ := inv.Arguments["agent_id"].(string)
		message, _ := inv.Arguments["message"].(string)
		err := h.arena.Send(target, a.ID, message)
		return nil, true, err

	case "record_finding":
		title, _ := inv.Arguments["title"].(string)
		body, _ := inv.Arguments["body"].(string)
		severity, _ := inv.Arguments["severity"].(string)
		if h.tracer == nil {
			return nil, true, fmt.Errorf("record_finding: findings index not available")
		}
		f, err := h.tracer.AddFinding(title, body, tracer.Severity(severity))
		return f, true, err

	case "save_progress":
		key, _ := inv.Arguments["key"].(string)
		data, _ := inv.Arguments["data"].(map[string]any)
		appendMode, _ := inv.Arguments["append"].(bool)
		err := h.progress.Save(key, data, appendMode)
		return nil, true, err

	case "load_progress":
		key, _ := inv.Arguments["key"].(string)
		data, err := h.progress.Load(key)
		return data, true, err

	case "list_progress":
		return h.progress.List(), true, nil

	case "create_note":
		title, _ := inv.Arguments["title"].(string)
		content, _ := inv.Arguments["content"].(string)
		category, _ := inv.Arguments["category"].(string)
		priority, _ := inv.Arguments["priority"].(string)
		tags := toStringSlice(inv.Arguments["tags"])
		n, err := h.notes.Create(title, content, category, tags, priority)
		return n, true, err

	case "update_note":
		id, _ := inv.Arguments["note_id"].(string)
		title := stringPtr(inv.Arguments["title"])
		content := stringPtr(inv.Arguments["content"])
		priority := stringPtr(inv.Arguments["priority"])
		var tags []string
		if raw, ok := inv.Arguments["tags"]; ok {
			tags = toStringSlice(raw)
		}
		n, err := h.notes.Update(id, title, content, tags, priority)
		return n, true, err

	case "delete_note":
		id, _ := inv.Arguments["note_id"].(string)
		err := h.notes.Delete(id)
		return nil, true, err

	case "list_notes":
		category, _ := inv.Arguments["category"].(string)
		priority, _ := inv.Arguments["priority"].(string)
		search, _ := inv.Arguments["search"].(string)
		tags := toStringSlice(inv.Arguments["tags"])
		return h.notes.List(category, tags, priority, search), true, nil

	case "create_script":
		if h.scripts == nil {
			return nil, true, fmt.Errorf("create_script: scripts not available for role %s", a.Role)
		}
		name, _ := inv.Arguments["name"].(string)
		content, _ := inv.Arguments["content"].(string)
		description, _ := inv.Arguments["description"].(string)
		category, _ := inv.Arguments["category"].(string)
		language, _ := inv.Arguments["language"].(string)
		sc := action.Script{Name: name, Content: content, Description: description, Category: category, Language: language}
		err := h.scripts.Create(sc)
		return sc, true, err

	case "get_script":
		if h.scripts == nil {
			return nil, true, fmt.Errorf("get_script: scripts not available for role %s", a.Role)
		}
		name, _ := inv.Arguments["name"].(string)
		sc, err := h.scripts.Get(name)
		return sc, true, err

	case "list_scripts":
		if h.scripts == nil {
			return nil, true, fmt.Errorf("list_scripts: scripts not available for role %s", a.Role)
		}
		category, _ := inv.Arguments["category"].(string)
		list, err := h.scripts.List(category)
		return list, true, err

	case "delete_script":
		if h.scripts == nil {
			return nil, true, fmt.Errorf("delete_script: scripts not available for role %s", a.Role)
		}
		name, _ := inv.Arguments["name"].(string)
		err := h.scripts.Delete(name)
		return nil, true, err

	case "add_task":
		if h.plan == nil {
			return nil, true, fmt.Errorf("add_task: no run plan for this run")
		}
		taskID, _ := inv.Arguments["task_id"].(string)
		title, _ := inv.Arguments["title"].(string)
		description, _ := inv.Arguments["description"].(string)
		phaseID, _ := inv.Arguments["phase_id"].(string)
		priority, _ := inv.Arguments["priority"].(int)
		dependsOn := toStringSlice(inv.Arguments["depends_on"])
		h.plan.AddTask(taskID, title, description, phaseID, dependsOn, priority)
		return nil, true, nil

	case "start_task":
		if h.plan == nil {
			return nil, true, fmt.Errorf("start_task: no run plan for this run")
		}
		taskID, _ := inv.Arguments["task_id"].(string)
		err := h.plan.StartTask(taskID, a.Iteration)
		return nil, true, err

	case "complete_task":
		if h.plan == nil {
			return nil, true, fmt.Errorf("complete_task: no run plan for this run")
		}
		taskID, _ := inv.Arguments["task_id"].(string)
		err := h.plan.CompleteTask(taskID, inv.Arguments["result"], a.Iteration)
		return nil, true, err

	case "fail_task":
		if h.plan == nil {
			return nil, true, fmt.Errorf("fail_task: no run plan for this run")
		}
		taskID, _ := inv.Arguments["task_id"].(string)
		reason, _ := inv.Arguments["reason"].(string)
		err := h.plan.FailTask(taskID, reason, a.Iteration)
		return nil, true, err

	case "skip_task":
		if h.plan == nil {
			return nil, true, fmt.Errorf("skip_task: no run plan for this run")
		}
		taskID, _ := inv.Arguments["task_id"].(string)
		reason, _ := inv.Arguments["reason"].(string)
		err := h.plan.SkipTask(taskID, reason, a.Iteration)
		return nil, true, err

	case "get_next_task":
		if h.plan == nil {
			return nil, true, fmt.Errorf("get_next_task: no run plan for this run")
		}
		return h.plan.GetNextTask(), true, nil

	case "get_progress":
		if h.plan == nil {
			return nil, true, fmt.Errorf("get_progress: no run plan for this run")
		}
		return h.plan.GetProgress(), true, nil
	}

	return nil, false, nil
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
