package dialogue

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for GeminiBackend.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiBackend answers through the Gemini GenerateContent API. System turns
// become the system instruction; assistant turns are sent with the model role.
type GeminiBackend struct {
	config GeminiConfig
	client *genai.Client
}

// NewGeminiBackend creates a Gemini client.
func NewGeminiBackend(ctx context.Context, config GeminiConfig) (*GeminiBackend, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiBackend{config: config, client: client}, nil
}

func (b *GeminiBackend) Name() string  { return "gemini" }
func (b *GeminiBackend) Model() string { return b.config.Model }

// Reply performs one GenerateContent call.
func (b *GeminiBackend) Reply(ctx context.Context, turns []Turn) (string, error) {
	contents, cfg := buildGeminiRequest(turns)

	resp, err := b.client.Models.GenerateContent(ctx, b.config.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := collectGeminiText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: no text in gemini response", ErrMalformedResponse)
	}
	return text, nil
}

func buildGeminiRequest(turns []Turn) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(turns))

	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			system = append(system, t.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}

	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: strings.Join(system, "\n\n")},
			},
		},
	}
}

func collectGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
	}

	return builder.String()
}

var _ Backend = (*GeminiBackend)(nil)
