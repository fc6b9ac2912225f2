package rpc

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strixrun/agentrun/pkg/action"
)

// WorkerServer is the HTTP surface a sandbox worker subprocess exposes for
// its host dispatcher to call into. Built on go-chi/chi/v5 per the Sandbox
// Dispatcher's domain-stack wiring.
type WorkerServer struct {
	registry *action.Registry
	secret   []byte
	runID    string

	mu                  sync.Mutex
	agentRoles          map[string]action.Role
	consecutiveFailures int

	router   chi.Router
	listener net.Listener
}

// NewWorkerServer constructs a server that dispatches registered actions,
// gating every request on a bearer token minted for runID.
func NewWorkerServer(registry *action.Registry, runID string, secret []byte) *WorkerServer {
	s := &WorkerServer{
		registry:   registry,
		secret:     secret,
		runID:      runID,
		agentRoles: make(map[string]action.Role),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/execute", s.handleExecute)
		r.Post("/register_agent", s.handleRegisterAgent)
	})
	s.router = r
	return s
}

// Listen binds addr (use ":0" for an OS-assigned ephemeral port) and
// returns the server's actual listen address without blocking to serve.
func (s *WorkerServer) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.listener = ln
	return ln.Addr().String(), nil
}

// Serve blocks, accepting connections on the listener from Listen.
func (s *WorkerServer) Serve() error {
	return http.Serve(s.listener, s.router)
}

func (s *WorkerServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		subject, err := VerifyToken(token, s.secret)
		if err != nil || subject != s.runID {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *WorkerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	failures := s.consecutiveFailures
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", ConsecutiveFailures: failures})
}

func (s *WorkerServer) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.agentRoles[req.AgentID] = action.Role(req.Role)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// handleExecute implements the worker loop's per-request tiered exception
// handling: a malformed body, an unknown action or arguments that fail
// coercion get a 4xx status and leave the failure streak alone; a handler
// error or panic is returned with status 200 and extends the streak, and a
// success resets it. The server never terminates itself; the host-side
// supervisor keeps its own failure count and restarts the worker.
func (s *WorkerServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ExecuteResponse{Error: "malformed request body"})
		return
	}

	reg, ok := s.registry.Lookup(req.Action)
	if !ok {
		writeJSON(w, http.StatusNotFound, ExecuteResponse{Error: (&action.ErrActionNotFound{Name: req.Action}).Error()})
		return
	}

	args, err := action.Coerce(reg, req.Arguments)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ExecuteResponse{Error: err.Error()})
		return
	}

	result, err := s.callHandler(reg, args)
	if err != nil {
		s.recordFailure()
		writeJSON(w, http.StatusOK, ExecuteResponse{Error: err.Error()})
		return
	}
	s.recordSuccess()
	writeJSON(w, http.StatusOK, ExecuteResponse{Result: result})
}

// callHandler invokes reg.Handler, converting a panic (the catch-all tier)
// into an error rather than taking the whole worker down.
func (s *WorkerServer) callHandler(reg action.Registration, args map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &handlerPanic{reason: p}
		}
	}()
	return reg.Handler(args)
}

type handlerPanic struct{ reason any }

func (e *handlerPanic) Error() string { return "action handler panicked" }

// recordFailure/recordSuccess track the consecutive handler-failure count
// reported by /health.
func (s *WorkerServer) recordFailure() {
	s.mu.Lock()
	s.consecutiveFailures++
	s.mu.Unlock()
}

func (s *WorkerServer) recordSuccess() {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
}

// ConsecutiveFailures reports the current streak. The host-side supervisor
// does not read it; it counts failed calls on its own.
func (s *WorkerServer) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
