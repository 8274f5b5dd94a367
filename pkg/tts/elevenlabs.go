package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/realtime-ai/callbridge/pkg/audio"
)

const (
	DefaultElevenLabsURL = "https://api.elevenlabs.io/v1/text-to-speech"

	elevenLabsDefaultModel = "eleven_turbo_v2_5"
	// ElevenLabs renders telephony audio itself; nothing to convert.
	elevenLabsOutputFormat = "ulaw_8000"
	elevenLabsLatency      = 3
)

// ElevenLabsConfig configures ElevenLabsProvider. APIKey and VoiceID are
// required; zero values elsewhere pick the defaults.
type ElevenLabsConfig struct {
	APIKey          string
	VoiceID         string
	Model           string
	BaseURL         string
	Stability       float64 // default 0.5
	SimilarityBoost float64 // default 0.75
	Speed           float64 // default 1.0
}

// ElevenLabsProvider synthesizes speech with the ElevenLabs text-to-speech
// API, asking for 8kHz μ-law output.
type ElevenLabsProvider struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
}

// NewElevenLabsProvider validates cfg and fills in defaults.
func NewElevenLabsProvider(cfg ElevenLabsConfig) (*ElevenLabsProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required")
	}
	if cfg.VoiceID == "" {
		return nil, fmt.Errorf("ElevenLabs voice ID is required")
	}
	if cfg.Model == "" {
		cfg.Model = elevenLabsDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsURL
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = 0.75
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	return &ElevenLabsProvider{cfg: cfg, httpClient: &http.Client{}}, nil
}

// Name returns the provider name
func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Synthesize returns 8kHz μ-law audio. req.Voice overrides the configured
// voice.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.cfg.VoiceID
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: p.cfg.Model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       p.cfg.Stability,
			SimilarityBoost: p.cfg.SimilarityBoost,
			Speed:           p.cfg.Speed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	query := url.Values{}
	query.Set("output_format", elevenLabsOutputFormat)
	query.Set("optimize_streaming_latency", strconv.Itoa(elevenLabsLatency))
	endpoint := p.cfg.BaseURL + "/" + url.PathEscape(voice) + "?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/basic")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read elevenlabs audio: %w", err)
	}

	return &SynthesizeResponse{
		AudioData: data,
		AudioFormat: AudioFormat{
			SampleRate: audio.TelephonySampleRate,
			Channels:   1,
			MediaType:  "audio/basic",
			Encoding:   EncodingMuLaw,
		},
		Duration: float64(len(data)) / audio.TelephonySampleRate,
	}, nil
}

// GetSupportedVoices returns the configured voice; the account's voice
// library is not listed.
func (p *ElevenLabsProvider) GetSupportedVoices() []string {
	return []string{p.cfg.VoiceID}
}

// GetDefaultVoice returns the configured voice ID
func (p *ElevenLabsProvider) GetDefaultVoice() string {
	return p.cfg.VoiceID
}

// ValidateConfig checks credentials
func (p *ElevenLabsProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("ElevenLabs API key is not set")
	}
	if p.cfg.VoiceID == "" {
		return fmt.Errorf("ElevenLabs voice ID is not set")
	}
	return nil
}

var _ TTSProvider = (*ElevenLabsProvider)(nil)
