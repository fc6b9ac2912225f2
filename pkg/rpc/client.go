package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WorkerClient is the host-side handle a Sandbox Dispatcher holds to call
// into one worker subprocess's HTTP surface.
type WorkerClient struct {
	addr   string
	token  string
	client *http.Client
}

// NewWorkerClient constructs a client pointed at a worker's address,
// authenticating every request with token.
func NewWorkerClient(addr, token string, timeout time.Duration) *WorkerClient {
	return &WorkerClient{addr: addr, token: token, client: &http.Client{Timeout: timeout}}
}

// Execute calls POST /execute and returns its result, or the error the
// worker reported.
func (c *WorkerClient) Execute(ctx context.Context, req ExecuteRequest) (any, error) {
	var resp ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/execute", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Result, nil
}

// RegisterAgent calls POST /register_agent.
func (c *WorkerClient) RegisterAgent(ctx context.Context, agentID, role string) error {
	return c.do(ctx, http.MethodPost, "/register_agent", RegisterAgentRequest{AgentID: agentID, Role: role}, nil)
}

// Health calls GET /health.
func (c *WorkerClient) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

func (c *WorkerClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		enc, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(enc)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.addr+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("rpc: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
