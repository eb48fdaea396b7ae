package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/safetale/safetale-sync/internal/consts"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicClient implements the Client interface using the official Anthropic SDK.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewAnthropicClient creates an Anthropic client backed by the official SDK.
func NewAnthropicClient(opts Options) (*AnthropicClient, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic client requires an API key")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultAnthropicModel
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = consts.Timeout2Minutes
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(1),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (c *AnthropicClient) GetModelName() string {
	return c.model
}

func (c *AnthropicClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params, err := c.buildMessageParams(messages)
	if err != nil {
		return "", err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", unavailable("anthropic", err)
	}
	if msg == nil {
		return "", nil
	}
	return collectAnthropicText(msg.Content), nil
}

func (c *AnthropicClient) buildMessageParams(messages []Message) (anthropic.MessageNewParams, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion requires at least one user or assistant message")
	}

	chatMessages := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		role := anthropic.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		chatMessages = append(chatMessages, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  chatMessages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}
	return params, nil
}

func collectAnthropicText(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return sb.String()
}
