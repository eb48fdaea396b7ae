package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/safetale/safetale-sync/internal/consts"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements the Client interface with the Chat Completions API.
// A custom BaseURL points it at any OpenAI compatible server.
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIClient constructs a client backed by the official SDK.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	key := strings.TrimSpace(opts.APIKey)
	base := strings.TrimSpace(opts.BaseURL)
	if key == "" && base == "" {
		return nil, fmt.Errorf("openai client requires an API key")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = consts.Timeout2Minutes
	}

	reqOpts := []option.RequestOption{
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(1),
	}
	if key != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(key))
	}
	if base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}

	return &OpenAIClient{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

func (c *OpenAIClient) GetModelName() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params, err := c.buildParams(messages)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", unavailable("openai", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) buildParams(messages []Message) (openai.ChatCompletionNewParams, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("openai completion requires at least one message")
	}

	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		converted = append(converted, openai.SystemMessage(system))
	}
	for _, msg := range turns {
		if msg.Role == RoleAssistant {
			converted = append(converted, openai.AssistantMessage(msg.Content))
			continue
		}
		converted = append(converted, openai.UserMessage(msg.Content))
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: converted,
	}
	if c.temperature != 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}
	return params, nil
}
