package dialogue

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig holds configuration for OpenAIBackend.
type OpenAIConfig struct {
	APIKey      string  // OpenAI API key
	Model       string  // Model name (e.g., "gpt-4o-mini")
	BaseURL     string  // Optional API base URL override
	MaxTokens   int     // Maximum tokens in response (0 = default)
	Temperature float64 // Temperature for response generation (0 = default)
}

// OpenAIBackend answers through the OpenAI Chat Completions API.
type OpenAIBackend struct {
	config OpenAIConfig
	client openai.Client
}

// NewOpenAIBackend creates a Chat Completions backend.
func NewOpenAIBackend(config OpenAIConfig) (*OpenAIBackend, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	// Retries belong to RetryBackend.
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIBackend{
		config: config,
		client: openai.NewClient(opts...),
	}, nil
}

func (b *OpenAIBackend) Name() string  { return "openai" }
func (b *OpenAIBackend) Model() string { return b.config.Model }

// Reply performs one non-streaming chat completion.
func (b *OpenAIBackend) Reply(ctx context.Context, turns []Turn) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: buildOpenAIMessages(turns),
		Model:    shared.ChatModel(b.config.Model),
	}
	if b.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(b.config.MaxTokens))
	}
	if b.config.Temperature > 0 {
		params.Temperature = openai.Float(b.config.Temperature)
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion", ErrMalformedResponse)
	}

	return completion.Choices[0].Message.Content, nil
}

func buildOpenAIMessages(turns []Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	return messages
}

var _ Backend = (*OpenAIBackend)(nil)
