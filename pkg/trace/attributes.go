package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	AttrStreamSID       = "call.stream_sid"
	AttrTurnIndex       = "call.turn_index"
	AttrPostCallPrompts = "call.post_call_prompts"

	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioMediaType  = "audio.media_type"
	AttrAudioDataSize   = "audio.data_size"

	AttrASRProvider = "asr.provider"
	AttrASRURL      = "asr.url"

	AttrLLMProvider = "llm.provider"
	AttrLLMModel    = "llm.model"
	AttrLLMAttempt  = "llm.attempt"
	AttrLLMTurns    = "llm.turns"

	AttrTTSProvider = "tts.provider"
	AttrTTSVoice    = "tts.voice"
	AttrTextLength  = "text.length"
)

// AudioAttrs describes a block of audio produced on a span.
func AudioAttrs(sampleRate, dataSize int, mediaType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioDataSize, dataSize),
		attribute.String(AttrAudioMediaType, mediaType),
	}
}
