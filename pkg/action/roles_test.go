package action

import "testing"

func TestIsAllowedByModuleOrBareName(t *testing.T) {
	cases := []struct {
		role    Role
		module  string
		name    string
		allowed bool
	}{
		{RoleCoordinator, "agents_graph", "add_task", true},
		{RoleCoordinator, "terminal", "run_command", false},
		{RoleReconnaissance, "terminal", "run_command", true},
		{RoleValidator, "", "spawn_agent", false},
		{RoleVulnerabilityTester, "scripts", "create_script", true},
		{RoleReporter, "terminal", "run_command", false},
		{RoleFixGenerator, "scripts", "create_script", true},
	}
	for _, c := range cases {
		if got := IsAllowed(c.role, c.module, c.name); got != c.allowed {
			t.Errorf("IsAllowed(%v, %q, %q) = %v, want %v", c.role, c.module, c.name, got, c.allowed)
		}
	}
}

func TestIsAllowedFullAccessIgnoresProfile(t *testing.T) {
	if !IsAllowed(RoleFullAccess, "anything", "whatever") {
		t.Error("full_access role should bypass the profile table")
	}
}

func TestIsAllowedUnknownRoleDenied(t *testing.T) {
	if IsAllowed(Role("made_up_role"), "terminal", "run_command") {
		t.Error("an unregistered role should never be allowed")
	}
}

func TestDefaultSequentiality(t *testing.T) {
	if DefaultSequentiality("terminal") != Sequential {
		t.Error("terminal should default to Sequential")
	}
	if DefaultSequentiality("browser") != Sequential {
		t.Error("browser should default to Sequential")
	}
	if DefaultSequentiality("notes") != Parallel {
		t.Error("notes should default to Parallel")
	}
	if DefaultSequentiality("made_up_module") != Parallel {
		t.Error("an unrecognized module should fall back to Parallel")
	}
}

func TestErrPermissionDeniedMessage(t *testing.T) {
	err := &ErrPermissionDenied{Role: RoleValidator, Action: "spawn_agent"}
	want := "action spawn_agent not permitted for role validator"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
