// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Provider names accepted by LLM_PROVIDER and TTS_PROVIDER.
const (
	LLMOpenAI   = "openai"
	LLMGemini   = "gemini"
	LLMDeepchat = "deepchat"

	TTSNLU        = "nlu"
	TTSOpenAI     = "openai"
	TTSElevenLabs = "elevenlabs"
)

// Config is the whole process configuration.
type Config struct {
	ProxyURL  string `env:"PROXY_URL" envDefault:"127.0.0.1:5000"`
	CertPEM   string `env:"CERT_PEM"`
	KeyPEM    string `env:"KEY_PEM"`
	StreamURL string `env:"STREAM_URL"`

	DeepgramURL        string `env:"DEEPGRAM_URL"`
	DeepgramAPIKey     string `env:"DEEPGRAM_API_KEY,required,notEmpty"`
	DeepgramAuthScheme string `env:"DEEPGRAM_AUTH_SCHEME" envDefault:"Token"`

	LLMProvider    string        `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	OpenAIModel    string        `env:"OPENAI_MODEL"`
	OpenAIBaseURL  string        `env:"OPENAI_BASE_URL"`
	GeminiAPIKey   string        `env:"GEMINI_API_KEY"`
	GeminiModel    string        `env:"GEMINI_MODEL"`
	DeepchatURL    string        `env:"DEEPCHAT_URL"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"5s"`
	LLMMaxAttempts int           `env:"LLM_MAX_ATTEMPTS" envDefault:"0"`
	LLMBackoff     time.Duration `env:"LLM_BACKOFF" envDefault:"0s"`

	TTSProvider       string `env:"TTS_PROVIDER" envDefault:"openai"`
	TTSURL            string `env:"TTS_URL"`
	TTSAPIKey         string `env:"TTS_API_KEY"`
	ElevenLabsAPIKey  string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID"`
	OpenAITTSVoice    string `env:"OPENAI_TTS_VOICE"`

	ObserverMode string `env:"OBSERVER_MODE" envDefault:"per-call"`
	PromptsFile  string `env:"PROMPTS_FILE"`
	FrameChunks  int    `env:"FRAME_CHUNKS" envDefault:"20"`

	RedisAddr   string `env:"REDIS_ADDR"`
	RedisStream string `env:"REDIS_STREAM" envDefault:"callbridge.events"`

	TraceExporter string `env:"TRACE_EXPORTER" envDefault:"none"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file (from paths, or ./.env when none are
// given) and parses the environment. Variables already set win over the
// file.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(paths...); err != nil && len(paths) > 0 {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the combinations the tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if (c.CertPEM == "") != (c.KeyPEM == "") {
		errs = append(errs, errors.New("CERT_PEM and KEY_PEM must be set together"))
	}

	switch c.LLMProvider {
	case LLMOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for LLM_PROVIDER=openai"))
		}
	case LLMGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for LLM_PROVIDER=gemini"))
		}
	case LLMDeepchat:
		// DEEPCHAT_URL falls back to dialogue.DefaultDeepchatURL.
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.TTSProvider {
	case TTSNLU:
		// TTS_URL falls back to tts.DefaultNLUURL; the key falls back to
		// DEEPGRAM_API_KEY, which is always set.
	case TTSOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for TTS_PROVIDER=openai"))
		}
	case TTSElevenLabs:
		if c.ElevenLabsAPIKey == "" || c.ElevenLabsVoiceID == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID are required for TTS_PROVIDER=elevenlabs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider))
	}

	switch c.ObserverMode {
	case "per-call", "global":
	default:
		errs = append(errs, fmt.Errorf("unknown OBSERVER_MODE %q", c.ObserverMode))
	}

	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.LLMMaxAttempts < 0 {
		errs = append(errs, errors.New("LLM_MAX_ATTEMPTS must not be negative"))
	}
	if c.FrameChunks <= 0 {
		errs = append(errs, errors.New("FRAME_CHUNKS must be positive"))
	}

	return errors.Join(errs...)
}

// TLS reports whether a certificate pair is configured.
func (c *Config) TLS() bool {
	return c.CertPEM != "" && c.KeyPEM != ""
}
