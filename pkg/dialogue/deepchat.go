package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultDeepchatURL is the hosted deepchat endpoint.
const DefaultDeepchatURL = "https://llm.sandbox.deepgram.com/deepchat"

// DeepchatBackend posts the history as {"text":[turns]} and reads the reply
// from {"results":"..."}.
type DeepchatBackend struct {
	url    string
	client *http.Client
}

// NewDeepchatBackend returns a backend for url (DefaultDeepchatURL if empty).
func NewDeepchatBackend(url string) *DeepchatBackend {
	if url == "" {
		url = DefaultDeepchatURL
	}
	return &DeepchatBackend{url: url, client: &http.Client{}}
}

func (b *DeepchatBackend) Name() string { return "deepchat" }

type deepchatRequest struct {
	Text []Turn `json:"text"`
}

type deepchatResponse struct {
	Results *string `json:"results"`
}

// Reply sends one request. The timeout comes from ctx.
func (b *DeepchatBackend) Reply(ctx context.Context, turns []Turn) (string, error) {
	body, err := json.Marshal(deepchatRequest{Text: turns})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepchat request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepchat error (status %d): %s", resp.StatusCode, string(data))
	}

	var out deepchatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Results == nil {
		return "", fmt.Errorf("%w: missing results", ErrMalformedResponse)
	}
	return *out.Results, nil
}

var _ Backend = (*DeepchatBackend)(nil)
