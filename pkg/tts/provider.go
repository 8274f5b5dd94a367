// Package tts provides the voice synthesis backends of a call.
//
// Every TTSProvider returns audio in its native format; ToMuLaw converts a
// SynthesizeResponse to the 8kHz μ-law the telephony leg plays, and
// Synthesizer bundles the two for the dialogue engine.
package tts

import (
	"context"
)

// AudioFormat defines the audio format configuration
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g., 24000, 16000)
	Channels   int    // Number of audio channels (1 for mono)
	MediaType  string // MIME type (e.g., "audio/pcm")
	Encoding   string // Sample encoding: "pcm_s16le", "pcm_f32le" or "mulaw"
}

// Sample encodings understood by ToMuLaw.
const (
	EncodingPCMS16LE = "pcm_s16le"
	EncodingPCMF32LE = "pcm_f32le"
	EncodingMuLaw    = "mulaw"
)

// SynthesizeRequest represents a request to synthesize speech
type SynthesizeRequest struct {
	Text     string                 // Text to synthesize
	Voice    string                 // Voice ID or name
	Language string                 // Language code (e.g., "en-US")
	Options  map[string]interface{} // Additional provider-specific options
}

// SynthesizeResponse represents the response from speech synthesis
type SynthesizeResponse struct {
	AudioData   []byte      // Raw audio data
	AudioFormat AudioFormat // Format of the audio data
	Duration    float64     // Duration in seconds (if available)
}

// TTSProvider defines the interface that all TTS services must implement
type TTSProvider interface {
	// Name returns the name of the TTS provider (e.g., "openai", "elevenlabs")
	Name() string

	// Synthesize converts text to speech
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// GetSupportedVoices returns voice IDs/names usable in SynthesizeRequest
	GetSupportedVoices() []string

	// GetDefaultVoice returns the default voice for this provider
	GetDefaultVoice() string

	// ValidateConfig returns an error if credentials or required settings are missing
	ValidateConfig() error
}
