package sandbox

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/strixrun/agentrun/pkg/action"
)

func TestRegisterBuiltinsCoversEveryRoleModule(t *testing.T) {
	reg := action.NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	want := []string{"run_command", "read_file", "write_file", "run_python", "web_search", "browse", "proxy_request", "think"}
	for _, name := range want {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("registry missing builtin action %q", name)
		}
	}
	if err := RegisterBuiltins(action.NewRegistry()); err != nil {
		t.Fatalf("RegisterBuiltins on a fresh registry should not error: %v", err)
	}
}

func TestRunCommandCapturesOutputAndExitCode(t *testing.T) {
	out, err := runCommand(map[string]any{"command": "echo hello; exit 3"})
	if err != nil {
		t.Fatalf("a non-zero exit status is reported through exit_code, not as an error: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("result type = %T, want map[string]any", out)
	}
	if m["stdout"] != "hello\n" {
		t.Errorf("stdout = %q, want %q", m["stdout"], "hello\n")
	}
	if m["exit_code"] != 3 {
		t.Errorf("exit_code = %v, want 3", m["exit_code"])
	}
}

func TestRunCommandRequiresCommand(t *testing.T) {
	if _, err := runCommand(map[string]any{}); err == nil {
		t.Fatal("expected an error for a missing command")
	}
}

func TestRunCommandTimeout(t *testing.T) {
	_, err := runCommand(map[string]any{"command": "sleep 5", "timeout_seconds": 1})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestReadWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")

	if _, err := writeFile(map[string]any{"path": path, "content": "hello sandbox"}); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	got, err := readFile(map[string]any{"path": path})
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if got != "hello sandbox" {
		t.Errorf("readFile = %q, want %q", got, "hello sandbox")
	}

	if _, err := readFile(map[string]any{"path": filepath.Join(t.TempDir(), "missing.txt")}); err == nil {
		t.Error("expected an error reading a nonexistent file")
	}
}

func TestWriteFileRequiresPath(t *testing.T) {
	if _, err := writeFile(map[string]any{"content": "x"}); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}

func TestWebFetchReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("i am a teapot"))
	}))
	defer srv.Close()

	out, err := webFetch(map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("webFetch: %v", err)
	}
	m := out.(map[string]any)
	if m["status"] != http.StatusTeapot {
		t.Errorf("status = %v, want %d", m["status"], http.StatusTeapot)
	}
	if m["body"] != "i am a teapot" {
		t.Errorf("body = %q, want %q", m["body"], "i am a teapot")
	}
}

func TestWebFetchRequiresURL(t *testing.T) {
	if _, err := webFetch(map[string]any{}); err == nil {
		t.Fatal("expected an error for a missing url")
	}
}

func TestProxyRequestForwardsMethodAndBody(t *testing.T) {
	var gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := proxyRequest(map[string]any{"method": http.MethodPost, "url": srv.URL, "body": "payload"})
	if err != nil {
		t.Fatalf("proxyRequest: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("server saw method %q, want POST", gotMethod)
	}
	if gotBody != "payload" {
		t.Errorf("server saw body %q, want %q", gotBody, "payload")
	}
}

func TestThinkIsPassthroughWithNoIO(t *testing.T) {
	before, _ := os.Getwd()
	out, err := think(map[string]any{"content": "let me reconsider the attack surface"})
	if err != nil {
		t.Fatalf("think: %v", err)
	}
	if out != "let me reconsider the attack surface" {
		t.Errorf("think = %v, want the content echoed back", out)
	}
	after, _ := os.Getwd()
	if before != after {
		t.Errorf("think changed the working directory: %s -> %s", before, after)
	}
}
