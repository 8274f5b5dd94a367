package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIDefaultVoice = "alloy"
	// The speech endpoint's "pcm" format is 24kHz mono s16le.
	openAISpeechRate = 24000
)

var openAIVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// OpenAITTSConfig configures OpenAITTSProvider. Only APIKey is required.
type OpenAITTSConfig struct {
	APIKey  string
	BaseURL string
	Model   string  // tts-1 by default
	Voice   string  // alloy by default
	Speed   float64 // 1.0 by default
}

// OpenAITTSProvider synthesizes speech with OpenAI's /audio/speech
// endpoint, requesting raw PCM that ToMuLaw decimates by three.
type OpenAITTSProvider struct {
	cfg    OpenAITTSConfig
	client *openai.Client
}

func NewOpenAITTSProvider(cfg OpenAITTSConfig) *OpenAITTSProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = openAIDefaultVoice
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	return &OpenAITTSProvider{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

// Name returns the provider name
func (p *OpenAITTSProvider) Name() string {
	return "openai"
}

func (p *OpenAITTSProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	voice := req.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}

	body, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.cfg.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          p.cfg.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer body.Close()

	pcm, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}

	return &SynthesizeResponse{
		AudioData: pcm,
		AudioFormat: AudioFormat{
			SampleRate: openAISpeechRate,
			Channels:   1,
			MediaType:  "audio/pcm",
			Encoding:   EncodingPCMS16LE,
		},
		Duration: float64(len(pcm)/2) / openAISpeechRate,
	}, nil
}

func (p *OpenAITTSProvider) GetSupportedVoices() []string {
	return openAIVoices
}

// GetDefaultVoice returns the configured voice
func (p *OpenAITTSProvider) GetDefaultVoice() string {
	return p.cfg.Voice
}

func (p *OpenAITTSProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("OpenAI API key is not set")
	}
	return nil
}

var _ TTSProvider = (*OpenAITTSProvider)(nil)
