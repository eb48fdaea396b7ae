package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/logger"
)

// DefaultOllamaURL is the address of a local Ollama daemon.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient implements the Client interface for the Ollama REST API.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOllamaClient creates a new Ollama client for the provided model.
func NewOllamaClient(opts Options) (*OllamaClient, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("ollama client requires a model identifier")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = consts.Timeout2Minutes
	}

	return &OllamaClient{
		baseURL:     normalizeOllamaBaseURL(opts.BaseURL),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *OllamaClient) GetModelName() string {
	return c.model
}

func (c *OllamaClient) Complete(ctx context.Context, messages []Message) (string, error) {
	payload, err := c.buildChatRequest(messages)
	if err != nil {
		return "", err
	}

	httpReq, err := c.newChatRequest(ctx, payload)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", unavailable("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, consts.BufferSize64KB))
		return "", unavailable("ollama", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", unavailable("ollama", err)
	}
	if chatResp.Error != "" {
		return "", unavailable("ollama", errors.New(chatResp.Error))
	}

	if chatResp.Message == nil {
		logger.Debug("ollama returned no message (done_reason=%q)", chatResp.DoneReason)
		return "", nil
	}
	return chatResp.Message.Content, nil
}

func (c *OllamaClient) buildChatRequest(messages []Message) (*ollamaChatRequest, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return nil, fmt.Errorf("ollama completion requires at least one message")
	}

	converted := make([]ollamaChatMessage, 0, len(turns)+1)
	if system != "" {
		converted = append(converted, ollamaChatMessage{Role: RoleSystem, Content: system})
	}
	for _, msg := range turns {
		converted = append(converted, ollamaChatMessage{Role: msg.Role, Content: msg.Content})
	}

	options := make(map[string]interface{})
	if c.temperature != 0 {
		options["temperature"] = c.temperature
	}
	if c.maxTokens > 0 {
		options["num_predict"] = c.maxTokens
	}
	if len(options) == 0 {
		options = nil
	}

	return &ollamaChatRequest{
		Model:    c.model,
		Stream:   false,
		Messages: converted,
		Options:  options,
	}, nil
}

func (c *OllamaClient) newChatRequest(ctx context.Context, payload *ollamaChatRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ollama request: %w", err)
	}

	endpoint := c.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaChatMessage    `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Model      string             `json:"model"`
	CreatedAt  string             `json:"created_at"`
	Message    *ollamaChatMessage `json:"message"`
	Done       bool               `json:"done"`
	DoneReason string             `json:"done_reason"`
	Error      string             `json:"error,omitempty"`
}

func normalizeOllamaBaseURL(baseURL string) string {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		return DefaultOllamaURL
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return strings.TrimRight(url, "/")
}
