package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeOllamaBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultOllamaURL},
		{"localhost:11434", "http://localhost:11434"},
		{"https://ollama.example.com/", "https://ollama.example.com"},
		{"  http://10.0.0.2:11434  ", "http://10.0.0.2:11434"},
	}
	for _, tt := range tests {
		if got := normalizeOllamaBaseURL(tt.in); got != tt.want {
			t.Errorf("normalizeOllamaBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewOllamaClientRequiresModel(t *testing.T) {
	if _, err := NewOllamaClient(Options{}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestOllamaClientComplete(t *testing.T) {
	req := require.New(t)

	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","message":{"role":"assistant","content":"A fox appears."},"done":true,"done_reason":"stop"}`))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Options{BaseURL: srv.URL, Model: "llama3.1:8b", Temperature: 0.7})
	req.NoError(err)

	reply, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a Story Guide."},
		{Role: RoleUser, Content: "What happens next?"},
	})
	req.NoError(err)
	req.Equal("A fox appears.", reply)

	req.Equal("llama3.1:8b", got.Model)
	req.False(got.Stream)
	req.Equal([]ollamaChatMessage{
		{Role: RoleSystem, Content: "You are a Story Guide."},
		{Role: RoleUser, Content: "What happens next?"},
	}, got.Messages)
	req.InDelta(0.7, got.Options["temperature"], 1e-9)
}

func TestOllamaClientEmptyMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":""},"done":true}`))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Options{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Empty(t, reply)
}

func TestOllamaClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"model 'm' not found"}`, http.StatusNotFound)
			},
		},
		{
			name: "error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"out of memory"}`))
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"message":`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client, err := NewOllamaClient(Options{BaseURL: srv.URL, Model: "m"})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrGenerationUnavailable), "got %v", err)
		})
	}
}

func TestOllamaClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewOllamaClient(Options{BaseURL: url, Model: "m"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestOllamaClientRequiresTurns(t *testing.T) {
	client, err := NewOllamaClient(Options{Model: "m"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: RoleSystem, Content: "only system"}})
	require.Error(t, err)
}
