package thinker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/strixrun/agentrun/pkg/agent"
)

func TestHTTPTransportSendRoundTrip(t *testing.T) {
	var gotAuth string
	var gotReq httpTransportRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := httpTransportResponse{Text: "the target looks vulnerable"}
		resp.Usage.InputTokens = 42
		resp.Usage.OutputTokens = 7
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret-key")
	messages := []agent.Message{
		{Role: agent.RoleSystem, Content: "you are an assistant"},
		{Role: agent.RoleUser, Content: "scan example.com"},
	}

	resp, err := tr.Send(context.Background(), "reference-model", messages)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Text != "the target looks vulnerable" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 42 || resp.Usage.OutputTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization header = %q, want bearer token", gotAuth)
	}
	if gotReq.Model != "reference-model" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "scan example.com" {
		t.Errorf("request messages = %+v", gotReq.Messages)
	}
}

func TestHTTPTransportNoAPIKeyOmitsHeader(t *testing.T) {
	var gotAuth string
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth, sawAuth = r.Header.Get("Authorization"), r.Header.Get("Authorization") != ""
		json.NewEncoder(w).Encode(httpTransportResponse{Text: "ok"})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "")
	if _, err := tr.Send(context.Background(), "m", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sawAuth {
		t.Errorf("Authorization header unexpectedly set to %q", gotAuth)
	}
}

func TestHTTPTransportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "")
	if _, err := tr.Send(context.Background(), "m", nil); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestHTTPTransportStreamRepliesSingleChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := httpTransportResponse{Text: "full answer"}
		resp.Usage.OutputTokens = 3
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "")
	ch, err := tr.Stream(context.Background(), "m", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Delta != "full answer" || !chunks[0].Done {
		t.Errorf("chunk = %+v", chunks[0])
	}
	if chunks[0].Usage.OutputTokens != 3 {
		t.Errorf("chunk usage = %+v", chunks[0].Usage)
	}
}
