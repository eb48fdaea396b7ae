package llm

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient implements the Client interface using the Google GenAI SDK.
type GeminiClient struct {
	modelName   string
	temperature float64
	maxTokens   int
	client      *genai.Client
}

// NewGeminiClient creates a Gemini API client for the provided model.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini client requires an API key")
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}

	return &GeminiClient{
		modelName:   normalizeGeminiModelName(opts.Model),
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		client:      client,
	}, nil
}

func (c *GeminiClient) GetModelName() string {
	return c.modelName
}

func (c *GeminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	contents, cfg, err := c.buildRequest(messages)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return "", unavailable("gemini", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	return collectTextFromContent(resp.Candidates[0].Content), nil
}

func (c *GeminiClient) buildRequest(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return nil, nil, fmt.Errorf("gemini completion requires at least one message")
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if c.temperature > 0 {
		temp := float32(c.temperature)
		cfg.Temperature = &temp
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.maxTokens)
	}
	return contents, cfg, nil
}

func collectTextFromContent(content *genai.Content) string {
	if content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func normalizeGeminiModelName(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	if model == "" {
		return defaultGeminiModel
	}
	return model
}
