package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/strixrun/agentrun/pkg/action"
	"github.com/strixrun/agentrun/pkg/httpclient"
)

// RegisterBuiltins registers the sandbox-executed action modules named in
// role profiles (terminal, file_edit, python, web_search,
// browser, proxy, thinking) into reg. It is called identically by the host
// process (to advertise the registry/build a tools prompt) and by a worker
// subprocess (to actually run the handlers), grounded on the exec.Command
// and streaming-capture approach in original_source's command tool; the
// web actions use pkg/httpclient's retrying client.
func RegisterBuiltins(reg *action.Registry) error {
	regs := []action.Registration{
		{
			Name:          "run_command",
			Module:        "terminal",
			Sequentiality: action.Sequential,
			Handler:       runCommand,
			Arguments: []action.Argument{
				{Name: "command", Type: "string", Required: true, Description: "shell command to execute"},
				{Name: "timeout_seconds", Type: "int", Description: "execution timeout, default 30s"},
			},
		},
		{
			Name:          "read_file",
			Module:        "file_edit",
			Sequentiality: action.Sequential,
			Handler:       readFile,
			Arguments: []action.Argument{
				{Name: "path", Type: "string", Required: true},
			},
		},
		{
			Name:          "write_file",
			Module:        "file_edit",
			Sequentiality: action.Sequential,
			Handler:       writeFile,
			Arguments: []action.Argument{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
			},
		},
		{
			Name:          "run_python",
			Module:        "python",
			Sequentiality: action.Parallel,
			Handler:       runPython,
			Arguments: []action.Argument{
				{Name: "code", Type: "string", Required: true},
				{Name: "timeout_seconds", Type: "int"},
			},
		},
		{
			Name:          "web_search",
			Module:        "web_search",
			Sequentiality: action.Parallel,
			Handler:       webFetch,
			Arguments: []action.Argument{
				{Name: "url", Type: "string", Required: true},
			},
		},
		{
			Name:          "browse",
			Module:        "browser",
			Sequentiality: action.Sequential,
			Handler:       webFetch,
			Arguments: []action.Argument{
				{Name: "url", Type: "string", Required: true},
			},
		},
		{
			Name:          "proxy_request",
			Module:        "proxy",
			Sequentiality: action.Parallel,
			Handler:       proxyRequest,
			Arguments: []action.Argument{
				{Name: "method", Type: "string", Required: true},
				{Name: "url", Type: "string", Required: true},
				{Name: "body", Type: "string"},
			},
		},
		{
			Name:          "think",
			Module:        "thinking",
			Sequentiality: action.Parallel,
			Handler:       think,
			Arguments: []action.Argument{
				{Name: "content", Type: "string", Required: true},
			},
		},
	}

	for _, r := range regs {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("sandbox: register builtin %q: %w", r.Name, err)
		}
	}
	return nil
}

const defaultCommandTimeout = 30 * time.Second

func runCommand(args map[string]any) (any, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("run_command: command is required")
	}
	timeout := defaultCommandTimeout
	if secs, ok := args["timeout_seconds"].(int); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()

	result := map[string]any{
		"stdout":    out.String(),
		"stderr":    errOut.String(),
		"exit_code": cmd.ProcessState.ExitCode(),
	}
	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("run_command: timed out after %s", timeout)
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return result, fmt.Errorf("run_command: %w", err)
		}
	}
	return result, nil
}

func readFile(args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("read_file: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}

func writeFile(args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return nil, fmt.Errorf("write_file: path is required")
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}
	return map[string]any{"bytes_written": len(content)}, nil
}

func runPython(args map[string]any) (any, error) {
	code, _ := args["code"].(string)
	if code == "" {
		return nil, fmt.Errorf("run_python: code is required")
	}
	timeout := defaultCommandTimeout
	if secs, ok := args["timeout_seconds"].(int); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", "-c", code)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()

	result := map[string]any{"stdout": out.String(), "stderr": errOut.String()}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return result, fmt.Errorf("run_python: %w", err)
		}
	}
	return result, nil
}

// sharedHTTPClient retries transient failures with pkg/httpclient's
// exponential backoff (at most 2 retries) rather than a bare net/http.Get
// call. The Thinker transport does not use it; the Thinker Client retries
// on its own.
var sharedHTTPClient = httpclient.New(
	httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	httpclient.WithMaxRetries(2),
)

func webFetch(args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("web fetch: url is required")
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("web fetch: %w", err)
	}
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web fetch: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("web fetch: read body: %w", err)
	}
	return map[string]any{"status": resp.StatusCode, "body": string(body)}, nil
}

func proxyRequest(args map[string]any) (any, error) {
	method, _ := args["method"].(string)
	url, _ := args["url"].(string)
	body, _ := args["body"].(string)
	if method == "" || url == "" {
		return nil, fmt.Errorf("proxy_request: method and url are required")
	}
	req, err := http.NewRequest(method, url, io.NopCloser(bytes.NewReader([]byte(body))))
	if err != nil {
		return nil, fmt.Errorf("proxy_request: %w", err)
	}
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy_request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("proxy_request: read body: %w", err)
	}
	return map[string]any{"status": resp.StatusCode, "body": string(respBody)}, nil
}

// think is a pure scratchpad action: it performs no I/O, letting an agent
// externalize reasoning into an observation without it counting as a
// parse-time no-op.
func think(args map[string]any) (any, error) {
	content, _ := args["content"].(string)
	return content, nil
}
