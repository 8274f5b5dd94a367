// NLU float-sample TTS Provider
//
// Posts the text as a multipart "texts" JSON array and receives
// {"results":[{"audio":[float32...]}]} at 16kHz.

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/realtime-ai/callbridge/pkg/audio"
)

const (
	// DefaultNLUURL is the hosted synthesis endpoint.
	DefaultNLUURL = "https://api.sandbox.deepgram.com/nlu?synthesize=true&speed=1.0&pitch_steps=2&variability=0.5"

	nluSampleRate = 16000
)

// NLUTTSProvider implements TTSProvider for the float-sample NLU endpoint.
type NLUTTSProvider struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewNLUTTSProvider creates a provider. An empty url uses DefaultNLUURL.
func NewNLUTTSProvider(url, apiKey string) *NLUTTSProvider {
	if url == "" {
		url = DefaultNLUURL
	}
	return &NLUTTSProvider{url: url, apiKey: apiKey, httpClient: &http.Client{}}
}

// Name returns the provider name
func (p *NLUTTSProvider) Name() string {
	return "nlu"
}

type nluResponse struct {
	Results []struct {
		Audio []float32 `json:"audio"`
	} `json:"results"`
}

// Synthesize returns 16kHz float32 samples as pcm_f32le.
func (p *NLUTTSProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	body, contentType, err := nluForm(req.Text)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var out nluResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("no results in synthesis response")
	}

	samples := out.Results[0].Audio
	return &SynthesizeResponse{
		AudioData: audio.Float32Bytes(samples),
		AudioFormat: AudioFormat{
			SampleRate: nluSampleRate,
			Channels:   1,
			MediaType:  "audio/pcm",
			Encoding:   EncodingPCMF32LE,
		},
		Duration: float64(len(samples)) / nluSampleRate,
	}, nil
}

// nluForm builds the multipart body: one JSON part named "texts".
func nluForm(text string) (*bytes.Buffer, string, error) {
	payload, err := json.Marshal([]string{text})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal texts: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="texts"; filename="texts"`)
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// GetSupportedVoices returns nil: the endpoint has a single voice.
func (p *NLUTTSProvider) GetSupportedVoices() []string {
	return nil
}

func (p *NLUTTSProvider) GetDefaultVoice() string {
	return ""
}

// ValidateConfig validates the provider configuration
func (p *NLUTTSProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return fmt.Errorf("NLU API key is not set")
	}
	return nil
}

var _ TTSProvider = (*NLUTTSProvider)(nil)
