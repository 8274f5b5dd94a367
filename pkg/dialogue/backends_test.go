package dialogue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var history = []Turn{
	{Role: RoleSystem, Content: "be brief"},
	{Role: RoleAssistant, Content: "hello, how can I help?"},
	{Role: RoleUser, Content: "one two"},
}

func TestDeepchatBackend_Reply(t *testing.T) {
	var got deepchatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"results":"three"}`))
	}))
	defer srv.Close()

	reply, err := NewDeepchatBackend(srv.URL).Reply(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "three", reply)
	assert.Equal(t, history, got.Text)
}

func TestDeepchatBackend_DefaultURL(t *testing.T) {
	assert.Equal(t, DefaultDeepchatURL, NewDeepchatBackend("").url)
	assert.Equal(t, "http://llm.local", NewDeepchatBackend("http://llm.local").url)
}

func TestDeepchatBackend_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        `<html>`,
		"missing results": `{"other":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewDeepchatBackend(srv.URL).Reply(context.Background(), history)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestDeepchatBackend_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewDeepchatBackend(srv.URL).Reply(context.Background(), history)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

func TestOpenAIBackend_Reply(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"three"}}]}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", b.Model())

	reply, err := b.Reply(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "three", reply)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "one two", got.Messages[2].Content)
}

func TestOpenAIBackend_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = b.Reply(context.Background(), history)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestNewBackends_RequireKeys(t *testing.T) {
	_, err := NewOpenAIBackend(OpenAIConfig{})
	assert.Error(t, err)
	_, err = NewGeminiBackend(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestBuildGeminiRequest(t *testing.T) {
	contents, cfg := buildGeminiRequest(history)

	require.NotNil(t, cfg)
	require.Len(t, cfg.SystemInstruction.Parts, 1)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)

	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleModel), contents[0].Role)
	assert.Equal(t, string(genai.RoleUser), contents[1].Role)
	assert.Equal(t, "one two", contents[1].Parts[0].Text)

	_, cfg = buildGeminiRequest([]Turn{{Role: RoleUser, Content: "x"}})
	assert.Nil(t, cfg)
}

func TestCloneTurns(t *testing.T) {
	c := CloneTurns(history)
	c[0].Content = "changed"
	assert.Equal(t, "be brief", history[0].Content)
}
