// Command agentrun drives an autonomous agent run from a task description
// to completion, writing its artifacts under a run directory.
//
// Usage:
//
//	agentrun "find and validate an SSRF in the staging API"
//	agentrun --runs-root ./runs --max-iterations 150 "..."
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/strixrun/agentrun/pkg/logger"
	"github.com/strixrun/agentrun/pkg/runconfig"
	"github.com/strixrun/agentrun/pkg/runtime"
	"github.com/strixrun/agentrun/pkg/sandbox"
)

func main() {
	if os.Getenv(sandbox.WorkerSpawnEnv) != "" {
		runWorker()
		return
	}

	cfg, err := runconfig.Load(os.Args[1:], "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentrun: "+err.Error())
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = 0
	}
	output := os.Stderr
	if cfg.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cfg.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "agentrun: open log file: "+err.Error())
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, "simple")
	log := logger.GetLogger()

	rt, err := runtime.NewRuntime(cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code, err := rt.Run(ctx)
	if err != nil {
		log.Error("run failed", "err", err)
	}
	os.Exit(code)
}

// runWorker re-execs the same binary as a sandboxed action worker,
// dispensed over go-plugin's handshake to the parent orchestrator process
//. It never touches the Tracer, Arena, or any host-only state.
func runWorker() {
	registry, err := runtime.Registry()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentrun worker: "+err.Error())
		os.Exit(1)
	}

	runID := os.Getenv("AGENTRUN_RUN_ID")
	secret, err := base64.StdEncoding.DecodeString(os.Getenv("AGENTRUN_SANDBOX_SECRET"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentrun worker: decode sandbox secret: "+err.Error())
		os.Exit(1)
	}

	if err := sandbox.ServeWorker(registry, runID, secret); err != nil {
		fmt.Fprintln(os.Stderr, "agentrun worker: "+err.Error())
		os.Exit(1)
	}
}
