package action

import "testing"

func noopHandler(args map[string]any) (any, error) { return nil, nil }

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Registration{Name: "finish", Module: "finish", Handler: noopHandler}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := reg.Lookup("finish")
	if !ok {
		t.Fatal("Lookup(finish) not found")
	}
	if got.Sequentiality != Parallel {
		t.Errorf("default Sequentiality = %v, want Parallel", got.Sequentiality)
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported ok=true")
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegistryRejectsEmptyNameOrNilHandler(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Registration{Handler: noopHandler}); err == nil {
		t.Error("expected an error for an empty name")
	}
	if err := reg.Register(Registration{Name: "x"}); err == nil {
		t.Error("expected an error for a nil handler")
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Registration{Name: "finish", Handler: noopHandler}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(Registration{Name: "finish", Handler: noopHandler}); err == nil {
		t.Error("expected an error registering the same name twice")
	}
}

func TestRegistryListIsSortedByName(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"wait", "finish", "notes"} {
		if err := reg.Register(Registration{Name: name, Handler: noopHandler}); err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
	}
	list := reg.List()
	want := []string{"finish", "notes", "wait"}
	for i, r := range list {
		if r.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, r.Name, want[i])
		}
	}
}

func TestErrActionNotFoundMessage(t *testing.T) {
	err := &ErrActionNotFound{Name: "run_nuke"}
	if err.Error() != "action not found: run_nuke" {
		t.Errorf("Error() = %q", err.Error())
	}
}
