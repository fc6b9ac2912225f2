package action

import (
	"strings"
	"testing"
)

func TestParseSingleInvocation(t *testing.T) {
	p := NewParser()
	text := `I'll check the header now.
<action name="run_command">
  <arg name="command">curl -I https://example.com</arg>
</action>`

	invs, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("got %d invocations, want 1", len(invs))
	}
	if invs[0].Name != "run_command" {
		t.Errorf("Name = %q", invs[0].Name)
	}
	if invs[0].Arguments["command"] != "curl -I https://example.com" {
		t.Errorf("Arguments[command] = %v", invs[0].Arguments["command"])
	}
}

func TestParseMultipleInvocations(t *testing.T) {
	p := NewParser()
	text := `<action name="create_note"><arg name="title">a</arg></action>
<action name="create_note"><arg name="title">b</arg></action>`

	invs, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(invs) != 2 {
		t.Fatalf("got %d invocations, want 2", len(invs))
	}
}

func TestParseNoInvocationsReturnsNilNoError(t *testing.T) {
	p := NewParser()
	invs, err := p.Parse("just thinking out loud, no tool call yet")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if invs != nil {
		t.Errorf("invs = %v, want nil", invs)
	}
}

func TestParseMalformedActionBlockIsParseError(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(`<action name="run_command">no closing tag`)
	if err == nil {
		t.Fatal("expected a parse error for an unterminated action block")
	}
	if _, ok := err.(*ErrParse); !ok {
		t.Errorf("error type = %T, want *ErrParse", err)
	}
}

func TestParseCapsInvocationsPerResponse(t *testing.T) {
	p := NewParser()
	var b strings.Builder
	for i := 0; i < MaxInvocationsPerResponse+5; i++ {
		b.WriteString(`<action name="think"><arg name="content">x</arg></action>`)
	}
	invs, err := p.Parse(b.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(invs) != MaxInvocationsPerResponse {
		t.Errorf("got %d invocations, want the cap of %d", len(invs), MaxInvocationsPerResponse)
	}
}

func TestTagSequentialityUsesRegistryOverBuiltinDefault(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Registration{Name: "custom_parallel_terminal", Module: "terminal", Handler: noopHandler, Sequentiality: Parallel}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	invs := []Invocation{{Name: "custom_parallel_terminal"}, {Name: "unregistered_action"}}
	tagged := TagSequentiality(reg, invs)

	if tagged[0].Sequential {
		t.Error("registered override should win over terminal's built-in Sequential default")
	}
	if tagged[1].Sequential {
		t.Error("an unregistered action name should fall back to Parallel, not Sequential")
	}
}

func TestToolsPromptScopesByRole(t *testing.T) {
	reg := NewRegistry()
	must := func(r Registration) {
		t.Helper()
		if err := reg.Register(r); err != nil {
			t.Fatalf("Register(%q): %v", r.Name, err)
		}
	}
	must(Registration{Name: "run_command", Module: "terminal", Handler: noopHandler,
		Arguments: []Argument{{Name: "command", Type: "string", Required: true}}})
	must(Registration{Name: "spawn_agent", Module: "agents_graph", Handler: noopHandler})

	prompt := ToolsPrompt(reg, RoleReconnaissance)
	if !strings.Contains(prompt, "run_command") {
		t.Error("reconnaissance prompt missing run_command")
	}
	if strings.Contains(prompt, "spawn_agent") {
		t.Error("reconnaissance prompt should not include spawn_agent, whose agents_graph module its profile excludes")
	}

	full := ToolsPrompt(reg, RoleFullAccess)
	if !strings.Contains(full, "run_command") || !strings.Contains(full, "spawn_agent") {
		t.Error("full_access prompt should include every registered action")
	}
}
