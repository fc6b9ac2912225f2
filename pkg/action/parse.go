package action

import (
	"fmt"
	"regexp"
	"strings"
)

// Invocation is one parsed action call: {name, arguments}.
type Invocation struct {
	Name       string
	Arguments  map[string]any
	Sequential bool
}

// ErrParse is recorded as an observation, never a crash, when the thinker's
// output embeds a malformed invocation.
type ErrParse struct{ Reason string }

func (e *ErrParse) Error() string { return "parse error: " + e.Reason }

// invocationTag matches one top-level `<action name="...">...</action>`
// block. The grammar is bracketed and XML-like, grounded on the schema
// convention in original_source/strix/tools/registry.py (XML tool
// descriptions): an `<action name="x"><arg name="y">value</arg></action>`
// form.
var invocationTag = regexp.MustCompile(`(?s)<action\s+name="([^"]+)"\s*>(.*?)</action>`)
var argTag = regexp.MustCompile(`(?s)<arg\s+name="([^"]+)"\s*>(.*?)</arg>`)

// MaxInvocationsPerResponse bounds how many invocations Parse will extract
// from a single response.
const MaxInvocationsPerResponse = 8

// Registry-aware sequentiality: Parse alone can't know an action's
// registered sequentiality, so it marks invocations as parallel by default;
// callers (the agent Loop, via the Registry) should re-tag before dispatch
// using TagSequentiality.
type Parser struct{}

// NewParser constructs a stateless invocation parser.
func NewParser() *Parser { return &Parser{} }

// Parse extracts invocations embedded in thinker output, truncating
// trailing content after the closing marker of the last recognized
// invocation, and reporting malformed structures as a parse error rather
// than panicking.
func (p *Parser) Parse(text string) ([]Invocation, error) {
	matches := invocationTag.FindAllStringSubmatch(text, -1)
	if matches == nil {
		if strings.Contains(text, "<action") {
			return nil, &ErrParse{Reason: "unterminated or malformed <action> block"}
		}
		return nil, nil
	}

	var out []Invocation
	for _, m := range matches {
		if len(out) >= MaxInvocationsPerResponse {
			break
		}
		name := strings.TrimSpace(m[1])
		if name == "" {
			return out, &ErrParse{Reason: "action tag missing a name"}
		}
		args := make(map[string]any)
		for _, am := range argTag.FindAllStringSubmatch(m[2], -1) {
			args[strings.TrimSpace(am[1])] = strings.TrimSpace(am[2])
		}
		out = append(out, Invocation{Name: name, Arguments: args})
	}
	return out, nil
}

// TagSequentiality marks each invocation's Sequential field using reg's
// declared sequentiality if found in the registry, else Parallel, so
// sequential ones can run before parallel ones.
func TagSequentiality(reg *Registry, invocations []Invocation) []Invocation {
	tagged := make([]Invocation, len(invocations))
	for i, inv := range invocations {
		s := Parallel
		if r, ok := reg.Lookup(inv.Name); ok {
			s = r.Sequentiality
		}
		inv.Sequential = s == Sequential
		tagged[i] = inv
	}
	return tagged
}

// ToolsPrompt renders the registry's actions as a bracketed description
// grouped by module, mirroring the XML-grouped prompt format the original
// source's registry builds (strix/tools/registry.py get_tools_prompt),
// scoped to the actions permitted for role.
func ToolsPrompt(reg *Registry, role Role) string {
	byModule := map[string][]Registration{}
	for _, r := range reg.List() {
		if role != RoleFullAccess && !IsAllowed(role, r.Module, r.Name) {
			continue
		}
		byModule[r.Module] = append(byModule[r.Module], r)
	}

	var b strings.Builder
	for module, regs := range byModule {
		fmt.Fprintf(&b, "<%s_tools>\n", module)
		for _, r := range regs {
			fmt.Fprintf(&b, "  <action name=%q>\n", r.Name)
			for _, a := range r.Arguments {
				fmt.Fprintf(&b, "    <arg name=%q type=%q required=%v>%s</arg>\n", a.Name, a.Type, a.Required, a.Description)
			}
			b.WriteString("  </action>\n")
		}
		fmt.Fprintf(&b, "</%s_tools>\n", module)
	}
	return b.String()
}
