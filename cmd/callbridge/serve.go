package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/asr"
	"github.com/realtime-ai/callbridge/pkg/audio"
	"github.com/realtime-ai/callbridge/pkg/broadcast"
	"github.com/realtime-ai/callbridge/pkg/call"
	"github.com/realtime-ai/callbridge/pkg/config"
	"github.com/realtime-ai/callbridge/pkg/dialogue"
	"github.com/realtime-ai/callbridge/pkg/prompts"
	"github.com/realtime-ai/callbridge/pkg/server"
	"github.com/realtime-ai/callbridge/pkg/trace"
	"github.com/realtime-ai/callbridge/pkg/tts"
)

const drainTimeout = 30 * time.Second

func serve(ctx context.Context, cfg *config.Config) error {
	traceCfg := trace.DefaultConfig()
	traceCfg.ExporterType = cfg.TraceExporter
	if cfg.OTLPEndpoint != "" {
		traceCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if err := trace.Initialize(ctx, traceCfg); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(shutdownCtx)
	}()

	store, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}

	recognizer, err := asr.NewDeepgramProvider(asr.DeepgramConfig{
		URL:        cfg.DeepgramURL,
		APIKey:     cfg.DeepgramAPIKey,
		AuthScheme: cfg.DeepgramAuthScheme,
	})
	if err != nil {
		return err
	}

	backend, err := newDialogueBackend(ctx, cfg)
	if err != nil {
		return err
	}

	synth, err := newSynthesizer(cfg)
	if err != nil {
		return err
	}

	var opts []broadcast.RegistryOption
	if cfg.RedisAddr != "" {
		sink, err := broadcast.NewRedisStreamSink(cfg.RedisAddr, cfg.RedisStream, log.Logger)
		if err != nil {
			return err
		}
		defer sink.Close()
		opts = append(opts, broadcast.WithSink(sink))
		log.Info().Str("component", "main").Str("redis", cfg.RedisAddr).Str("stream", cfg.RedisStream).Msg("mirroring events")
	}
	registry := broadcast.NewRegistry(opts...)

	frames := audio.DefaultFrameAssemblerConfig()
	frames.FrameChunks = cfg.FrameChunks

	coordinator := call.NewCoordinator(call.CoordinatorConfig{
		Recognizer: recognizer,
		Backend:    backend,
		Synth:      synth,
		Observers:  registry,
		Prompts:    store,
		Frames:     frames,
	})

	srv := server.New(server.Config{
		Address:      cfg.ProxyURL,
		CertFile:     cfg.CertPEM,
		KeyFile:      cfg.KeyPEM,
		StreamURL:    cfg.StreamURL,
		ObserverMode: server.ObserverMode(cfg.ObserverMode),
	}, coordinator, registry, store)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info().
		Str("component", "main").
		Str("llm", backend.Name()).
		Str("tts", cfg.TTSProvider).
		Msg("callbridge ready")

	<-ctx.Done()
	log.Info().Str("component", "main").Msg("shutting down")

	if err := srv.Stop(); err != nil {
		log.Warn().Err(err).Str("component", "main").Msg("server shutdown")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := coordinator.Wait(drainCtx); err != nil {
		log.Warn().Int("calls", coordinator.ActiveCalls()).Str("component", "main").Msg("calls still running at exit")
	}
	return nil
}

func loadPrompts(path string) (*prompts.Store, error) {
	if path == "" {
		return prompts.NewStore(prompts.Default()), nil
	}
	cfg, err := prompts.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return prompts.NewStore(cfg), nil
}

// newDialogueBackend builds the configured backend wrapped in the retry
// policy.
func newDialogueBackend(ctx context.Context, cfg *config.Config) (dialogue.Backend, error) {
	var (
		backend dialogue.Backend
		err     error
	)
	switch cfg.LLMProvider {
	case config.LLMOpenAI:
		backend, err = dialogue.NewOpenAIBackend(dialogue.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	case config.LLMGemini:
		backend, err = dialogue.NewGeminiBackend(ctx, dialogue.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
	case config.LLMDeepchat:
		backend = dialogue.NewDeepchatBackend(cfg.DeepchatURL)
	default:
		err = fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("dialogue backend: %w", err)
	}

	return dialogue.NewRetryBackend(backend, dialogue.RetryConfig{
		Timeout:     cfg.LLMTimeout,
		MaxAttempts: cfg.LLMMaxAttempts,
		Backoff:     cfg.LLMBackoff,
	}), nil
}

func newSynthesizer(cfg *config.Config) (*tts.Synthesizer, error) {
	var provider tts.TTSProvider
	switch cfg.TTSProvider {
	case config.TTSNLU:
		key := cfg.TTSAPIKey
		if key == "" {
			key = cfg.DeepgramAPIKey
		}
		provider = tts.NewNLUTTSProvider(cfg.TTSURL, key)
	case config.TTSOpenAI:
		provider = tts.NewOpenAITTSProvider(tts.OpenAITTSConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Voice:   cfg.OpenAITTSVoice,
		})
	case config.TTSElevenLabs:
		p, err := tts.NewElevenLabsProvider(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			BaseURL: cfg.TTSURL,
		})
		if err != nil {
			return nil, fmt.Errorf("tts provider: %w", err)
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
	}

	if err := provider.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("tts provider: %w", err)
	}
	return tts.NewSynthesizer(provider, ""), nil
}
