// Package sandbox implements the Sandbox Dispatcher: a
// per-agent subordinate execution context supervised across its lifetime,
// with bounded request/response queues, bearer authentication, and
// consecutive-failure self-termination, grounded on
// original_source/strix/runtime/docker_runtime.go and
// original_source/strix/agents/tool_executor.py.
package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	plugin "github.com/hashicorp/go-plugin"

	"github.com/strixrun/agentrun/pkg/action"
	"github.com/strixrun/agentrun/pkg/rpc"
)

// WorkerSpawnEnv is the environment variable that tells a re-exec'd copy of
// the binary to run as a sandbox worker instead of the orchestrator.
const WorkerSpawnEnv = "AGENTRUN_SANDBOX_WORKER_MODE"

// WorkerConfig parameterizes one subprocess launch.
type WorkerConfig struct {
	AgentID  string
	RunID    string
	Secret   []byte
	TokenTTL time.Duration
	Log      hclog.Logger
}

// Worker supervises one subprocess and the HTTP client pointed at it.
type Worker struct {
	cfg    WorkerConfig
	client *plugin.Client
	rpc    *rpc.WorkerClient

	consecutiveFailures int
}

// Launch starts the subprocess, performs the go-plugin handshake over
// stdio to confirm liveness, pings it for its bound HTTP address, and
// mints a bearer token scoped to the run.
func Launch(ctx context.Context, cfg WorkerConfig) (*Worker, error) {
	if cfg.Log == nil {
		cfg.Log = hclog.NewNullLogger()
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve self executable: %w", err)
	}
	cmd := exec.CommandContext(ctx, self, "--sandbox-worker")
	cmd.Env = append(os.Environ(),
		WorkerSpawnEnv+"=1",
		"AGENTRUN_RUN_ID="+cfg.RunID,
		"AGENTRUN_AGENT_ID="+cfg.AgentID,
		"AGENTRUN_SANDBOX_SECRET="+base64.StdEncoding.EncodeToString(cfg.Secret),
	)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          pluginMap(nil),
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           cfg.Log,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("sandbox: handshake with worker: %w", err)
	}
	raw, err := rpcClient.Dispense("worker")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("sandbox: dispense worker stub: %w", err)
	}
	stub, ok := raw.(*workerRPC)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("sandbox: unexpected worker stub type %T", raw)
	}
	addr, err := stub.Ping()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("sandbox: ping worker: %w", err)
	}

	token, err := rpc.MintToken(cfg.RunID, cfg.Secret, cfg.TokenTTL)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("sandbox: mint worker token: %w", err)
	}

	return &Worker{
		cfg:    cfg,
		client: client,
		rpc:    rpc.NewWorkerClient(addr, token, 180*time.Second),
	}, nil
}

// Alive reports whether the subprocess is still running.
func (w *Worker) Alive() bool {
	return !w.client.Exited()
}

// Kill terminates the subprocess unconditionally.
func (w *Worker) Kill() {
	w.client.Kill()
}

// Execute calls the worker's /execute route.
func (w *Worker) Execute(ctx context.Context, req rpc.ExecuteRequest) (any, error) {
	return w.rpc.Execute(ctx, req)
}

// RegisterAgent calls the worker's /register_agent route.
func (w *Worker) RegisterAgent(ctx context.Context, agentID, role string) error {
	return w.rpc.RegisterAgent(ctx, agentID, role)
}

// ServeWorker runs the current process as a sandbox worker: it starts the
// bearer-authenticated HTTP execute surface on an ephemeral port, then
// blocks in the go-plugin handshake loop so the parent process (running
// Launch above) can ping it for that address. Returns when the parent
// disconnects (stdin closes) or the handshake loop otherwise exits.
func ServeWorker(registry *action.Registry, runID string, secret []byte) error {
	server := rpc.NewWorkerServer(registry, runID, secret)
	addr, err := server.Listen("127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("sandbox: worker listen: %w", err)
	}

	go func() {
		_ = server.Serve()
	}()

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         pluginMap(func() string { return addr }),
	})
	return nil
}
