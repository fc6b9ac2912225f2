package thinker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/strixrun/agentrun/pkg/agent"
)

// HTTPTransport is the reference Transport: it posts the conversation as
// JSON to a single configurable endpoint and expects a JSON object back
// with the generated text and usage counters. Concrete model vendor wire
// formats are out of scope; this is the generic contract a thin
// adapter in front of any vendor API can satisfy, not a vendor SDK itself.
type HTTPTransport struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPTransport constructs a transport posting to endpoint, bearer
// authenticated with apiKey if non-empty.
func NewHTTPTransport(endpoint, apiKey string) *HTTPTransport {
	return &HTTPTransport{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 600 * time.Second},
	}
}

type httpTransportRequest struct {
	Model    string          `json:"model"`
	Messages []wireMessage   `json:"messages"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type httpTransportResponse struct {
	Text  string `json:"text"`
	Usage struct {
		InputTokens  int     `json:"input_tokens"`
		OutputTokens int     `json:"output_tokens"`
		CachedTokens int     `json:"cached_tokens"`
		Cost         float64 `json:"cost"`
	} `json:"usage"`
}

func toWireMessages(messages []agent.Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		out[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, model string, messages []agent.Message) (Response, error) {
	body, err := json.Marshal(httpTransportRequest{Model: model, Messages: toWireMessages(messages)})
	if err != nil {
		return Response{}, fmt.Errorf("thinker http transport: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("thinker http transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("thinker http transport: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("thinker http transport: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("thinker http transport: status %d: %s", resp.StatusCode, string(data))
	}

	var out httpTransportResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Response{}, fmt.Errorf("thinker http transport: decode response: %w", err)
	}
	return Response{
		Text: out.Text,
		Usage: Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
			CachedTokens: out.Usage.CachedTokens,
			Cost:         out.Usage.Cost,
		},
	}, nil
}

// Stream implements Transport by issuing Send and replaying it as a single
// chunk; the reference transport has no incremental wire format of its
// own to stream from.
func (t *HTTPTransport) Stream(ctx context.Context, model string, messages []agent.Message) (<-chan StreamChunk, error) {
	resp, err := t.Send(ctx, model, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Delta: resp.Text, Done: true, Usage: resp.Usage}
	close(ch)
	return ch, nil
}
