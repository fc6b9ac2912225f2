package action

import (
	"fmt"
	"strconv"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// ErrArgumentCoercion is recorded as an observation (never a crash) when raw
// invocation arguments can't be coerced to an action's declared schema.
type ErrArgumentCoercion struct {
	Action string
	Field  string
	Reason string
}

func (e *ErrArgumentCoercion) Error() string {
	return fmt.Sprintf("action %s: argument %s: %s", e.Action, e.Field, e.Reason)
}

// Coerce converts raw string/JSON-ish arguments (as produced by the
// invocation parser) into the declared types for reg, validating that
// every required argument is present. Uses mitchellh/mapstructure for the
// map->typed conversion rather than a hand-rolled switch per field.
func Coerce(reg Registration, raw map[string]any) (map[string]any, error) {
	declared := make(map[string]Argument, len(reg.Arguments))
	for _, a := range reg.Arguments {
		declared[a.Name] = a
	}

	for _, a := range reg.Arguments {
		if a.Required {
			if _, ok := raw[a.Name]; !ok {
				return nil, &ErrArgumentCoercion{Action: reg.Name, Field: a.Name, Reason: "required argument missing"}
			}
		}
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		arg, known := declared[k]
		if !known {
			out[k] = v
			continue
		}
		coerced, err := coerceOne(arg, v)
		if err != nil {
			return nil, &ErrArgumentCoercion{Action: reg.Name, Field: k, Reason: err.Error()}
		}
		out[k] = coerced
	}
	return out, nil
}

func coerceOne(arg Argument, v any) (any, error) {
	switch arg.Type {
	case "string":
		var s string
		if err := mapstructure.WeakDecode(v, &s); err != nil {
			return nil, err
		}
		return s, nil
	case "int":
		var i int
		if err := mapstructure.WeakDecode(v, &i); err != nil {
			return nil, err
		}
		return i, nil
	case "float":
		var f float64
		switch t := v.(type) {
		case string:
			parsed, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, err
			}
			return parsed, nil
		default:
			if err := mapstructure.WeakDecode(v, &f); err != nil {
				return nil, err
			}
			return f, nil
		}
	case "bool":
		var b bool
		if err := mapstructure.WeakDecode(v, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "list":
		var l []any
		if err := mapstructure.WeakDecode(v, &l); err != nil {
			return nil, err
		}
		return l, nil
	case "json", "":
		return v, nil
	default:
		return v, nil
	}
}

// SchemaFor generates a JSON schema document for reg's declared arguments
// using invopop/jsonschema, for advertising the action's contract (e.g. in
// a tools prompt or an RPC discovery surface) without hand-maintaining a
// second copy of the argument list.
func SchemaFor(reg Registration) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
		Required:   nil,
	}
	for _, a := range reg.Arguments {
		prop := &jsonschema.Schema{
			Type:        jsonSchemaType(a.Type),
			Description: a.Description,
		}
		s.Properties.Set(a.Name, prop)
		if a.Required {
			s.Required = append(s.Required, a.Name)
		}
	}
	return s
}

func jsonSchemaType(t string) string {
	switch t {
	case "int", "float":
		return "number"
	case "bool":
		return "boolean"
	case "list":
		return "array"
	case "json":
		return "object"
	default:
		return "string"
	}
}
