package tts

import (
	"errors"
	"fmt"

	"github.com/realtime-ai/callbridge/pkg/audio"
)

// ErrUnsupportedFormat is returned for audio ToMuLaw cannot convert.
var ErrUnsupportedFormat = errors.New("unsupported synthesis audio format")

// ToMuLaw converts synthesized audio to 8kHz mono μ-law. Higher sample rates
// must be integer multiples of 8kHz and are decimated without filtering.
func ToMuLaw(resp *SynthesizeResponse) ([]byte, error) {
	f := resp.AudioFormat
	if f.Channels > 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.Channels)
	}
	if f.SampleRate < audio.TelephonySampleRate || f.SampleRate%audio.TelephonySampleRate != 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	factor := f.SampleRate / audio.TelephonySampleRate

	var samples []int16
	switch f.Encoding {
	case EncodingMuLaw:
		if factor == 1 {
			return resp.AudioData, nil
		}
		samples = audio.DecodeSamples(resp.AudioData)
	case EncodingPCMS16LE, "":
		samples = audio.Int16Samples(resp.AudioData)
	case EncodingPCMF32LE:
		samples = audio.QuantizeFloats(audio.Float32Samples(resp.AudioData))
	default:
		return nil, fmt.Errorf("%w: encoding %q", ErrUnsupportedFormat, f.Encoding)
	}

	return audio.EncodeSamples(audio.Decimate(samples, factor)), nil
}
