package tts

import (
	"context"
	"fmt"

	"github.com/realtime-ai/callbridge/pkg/audio"
	"github.com/realtime-ai/callbridge/pkg/trace"
)

// Synthesizer turns reply text into telephony audio using a TTSProvider.
type Synthesizer struct {
	provider   TTSProvider
	voice      string
	segmentLen int
}

// NewSynthesizer wraps provider. An empty voice uses the provider default.
func NewSynthesizer(provider TTSProvider, voice string) *Synthesizer {
	if voice == "" {
		voice = provider.GetDefaultVoice()
	}
	return &Synthesizer{provider: provider, voice: voice, segmentLen: DefaultSegmentLength}
}

// SynthesizeMuLaw returns 8kHz μ-law audio for text. Long text is
// synthesized one segment at a time and the audio concatenated.
func (s *Synthesizer) SynthesizeMuLaw(ctx context.Context, text string) ([]byte, error) {
	segments := Segment(text, s.segmentLen)
	if len(segments) <= 1 {
		return s.synthesize(ctx, text)
	}

	var out []byte
	for _, segment := range segments {
		mulaw, err := s.synthesize(ctx, segment)
		if err != nil {
			return nil, err
		}
		out = append(out, mulaw...)
	}
	return out, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := trace.InstrumentTTSRequest(ctx, s.provider.Name(), s.voice, text)
	defer span.End()

	resp, err := s.provider.Synthesize(ctx, &SynthesizeRequest{Text: text, Voice: s.voice})
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("%s synthesize: %w", s.provider.Name(), err)
	}

	mulaw, err := ToMuLaw(resp)
	if err != nil {
		trace.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(trace.AudioAttrs(audio.TelephonySampleRate, len(mulaw), "audio/x-mulaw")...)
	return mulaw, nil
}
