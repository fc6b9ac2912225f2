package action

import "testing"

func TestCoerceRequiredArgumentMissing(t *testing.T) {
	reg := Registration{Name: "run_command", Arguments: []Argument{{Name: "command", Type: "string", Required: true}}}
	_, err := Coerce(reg, map[string]any{})
	if err == nil {
		t.Fatal("expected an error for a missing required argument")
	}
	if _, ok := err.(*ErrArgumentCoercion); !ok {
		t.Errorf("error type = %T, want *ErrArgumentCoercion", err)
	}
}

func TestCoerceTypesStringsIntoDeclaredTypes(t *testing.T) {
	reg := Registration{Arguments: []Argument{
		{Name: "timeout_seconds", Type: "int"},
		{Name: "verbose", Type: "bool"},
		{Name: "threshold", Type: "float"},
	}}
	out, err := Coerce(reg, map[string]any{
		"timeout_seconds": "30",
		"verbose":         "true",
		"threshold":       "0.75",
	})
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if out["timeout_seconds"] != 30 {
		t.Errorf("timeout_seconds = %v (%T), want int 30", out["timeout_seconds"], out["timeout_seconds"])
	}
	if out["verbose"] != true {
		t.Errorf("verbose = %v, want true", out["verbose"])
	}
	if out["threshold"] != 0.75 {
		t.Errorf("threshold = %v, want 0.75", out["threshold"])
	}
}

func TestCoercePassesThroughUndeclaredArguments(t *testing.T) {
	reg := Registration{Arguments: []Argument{{Name: "command", Type: "string"}}}
	out, err := Coerce(reg, map[string]any{"command": "ls", "extra": "kept-as-is"})
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if out["extra"] != "kept-as-is" {
		t.Errorf("extra = %v, want pass-through", out["extra"])
	}
}

func TestCoerceInvalidIntReportsFieldAndAction(t *testing.T) {
	reg := Registration{Name: "run_python", Arguments: []Argument{{Name: "timeout_seconds", Type: "int"}}}
	_, err := Coerce(reg, map[string]any{"timeout_seconds": "not-a-number"})
	if err == nil {
		t.Fatal("expected a coercion error")
	}
	cerr, ok := err.(*ErrArgumentCoercion)
	if !ok {
		t.Fatalf("error type = %T, want *ErrArgumentCoercion", err)
	}
	if cerr.Action != "run_python" || cerr.Field != "timeout_seconds" {
		t.Errorf("ErrArgumentCoercion = %+v", cerr)
	}
}

func TestSchemaForMarksRequiredFields(t *testing.T) {
	reg := Registration{Arguments: []Argument{
		{Name: "command", Type: "string", Required: true},
		{Name: "timeout_seconds", Type: "int"},
	}}
	schema := SchemaFor(reg)
	if len(schema.Required) != 1 || schema.Required[0] != "command" {
		t.Errorf("Required = %v, want [command]", schema.Required)
	}
	if _, ok := schema.Properties.Get("timeout_seconds"); !ok {
		t.Error("schema missing the timeout_seconds property")
	}
}
