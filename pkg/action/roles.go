package action

// Role is an agent's permission profile, gating which action modules it
// may dispatch. Grounded on original_source/strix/tools/registry.py's
// AgentRole enum and TOOL_PROFILES table.
type Role string

const (
	RoleCoordinator         Role = "coordinator"
	RoleReconnaissance      Role = "reconnaissance"
	RoleVulnerabilityTester Role = "vulnerability_tester"
	RoleValidator           Role = "validator"
	RoleReporter            Role = "reporter"
	RoleFixGenerator        Role = "fix_generator"
	RoleFullAccess          Role = "full_access"
)

// profiles maps each role to the set of module tags (or bare action names)
// it may use. FullAccess is handled specially: it permits everything.
var profiles = map[Role]map[string]bool{
	RoleCoordinator: set("agents_graph", "finish", "thinking", "notes", "wait", "send_to_agent", "spawn_agent"),
	RoleReconnaissance: set(
		"terminal", "proxy", "browser", "web_search", "notes", "thinking", "python",
		"finish", "wait", "record_finding", "save_progress", "load_progress", "list_progress",
	),
	RoleVulnerabilityTester: set(
		"terminal", "proxy", "browser", "python", "file_edit", "notes", "thinking",
		"reporting", "agents_graph", "finish", "wait", "record_finding",
		"save_progress", "load_progress", "list_progress", "scripts",
	),
	RoleValidator: set(
		"terminal", "proxy", "browser", "python", "notes", "thinking",
		"finish", "wait", "record_finding",
	),
	RoleReporter: set("notes", "reporting", "thinking", "file_edit", "finish", "wait"),
	RoleFixGenerator: set(
		"file_edit", "notes", "thinking", "python", "finish", "wait", "scripts",
	),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// IsAllowed reports whether role may dispatch an action with the given
// module tag or bare name. Full access always returns true.
func IsAllowed(role Role, module, name string) bool {
	if role == RoleFullAccess {
		return true
	}
	allowed, ok := profiles[role]
	if !ok {
		return false
	}
	return allowed[module] || allowed[name]
}

// ErrPermissionDenied is recorded as an observation (never a crash) when a
// role gate rejects a dispatch.
type ErrPermissionDenied struct {
	Role   Role
	Action string
}

func (e *ErrPermissionDenied) Error() string {
	return "action " + e.Action + " not permitted for role " + string(e.Role)
}

// sequentialModules / parallelModules are the two built-in sequentiality
// classes: terminal/browser/file-edit run one at a time; notes/thinking/
// web-search may be parallelized.
var sequentialModules = set("terminal", "browser", "file_edit")
var parallelModules = set("proxy", "notes", "thinking", "web_search", "python")

// DefaultSequentiality returns the built-in classification for a module tag,
// falling back to Parallel when the module isn't one of the named classes.
func DefaultSequentiality(module string) Sequentiality {
	if sequentialModules[module] {
		return Sequential
	}
	return Parallel
}
