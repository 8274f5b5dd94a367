// Package audio provides audio processing utilities for the telephony leg.
//
// mulaw.go implements μ-law (G.711) audio codec conversions.
// μ-law is the standard audio encoding for telephone systems in North America and Japan.
//
// Features:
//   - μ-law to Linear PCM (16-bit signed) conversion
//   - Linear PCM to μ-law conversion
//   - Float PCM quantization and integer-factor decimation for synthesis output
//
// Reference: ITU-T G.711 specification

package audio

import (
	"encoding/binary"
	"math"
)

// MuLaw codec constants
const (
	MuLawBias      = 0x84  // Bias for linear code
	MuLawClip      = 32635 // Maximum magnitude before biasing
	MuLawSegShift  = 4
	MuLawQuantMask = 0x0f

	// MuLawSilence is the μ-law code for a zero sample.
	MuLawSilence byte = 0xFF

	// TelephonySampleRate is the only rate the telephony leg carries.
	TelephonySampleRate = 8000
)

// muLawDecompressTable is a pre-computed lookup table for μ-law to linear PCM conversion.
// Each μ-law byte maps to a 16-bit signed PCM value.
var muLawDecompressTable = [256]int16{
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
}

// muLawSegmentTable holds the biased upper bound of each segment.
var muLawSegmentTable = [8]int32{0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF, 0x3FFF, 0x7FFF}

// MuLawDecode converts a single μ-law byte to a 16-bit signed PCM sample.
func MuLawDecode(mulaw byte) int16 {
	return muLawDecompressTable[mulaw]
}

// MuLawEncode converts a 16-bit signed PCM sample to μ-law.
// Every int16 is a valid input; magnitudes above MuLawClip saturate.
func MuLawEncode(pcm int16) byte {
	// Widen first so that -32768 can be negated.
	sample := int32(pcm)
	var sign int32
	if sample < 0 {
		sign = 0x80
		sample = -sample
	}
	if sample > MuLawClip {
		sample = MuLawClip
	}
	sample += MuLawBias

	segment := int32(7)
	for i, end := range muLawSegmentTable {
		if sample <= end {
			segment = int32(i)
			break
		}
	}

	return ^byte(sign | (segment << MuLawSegShift) | ((sample >> (segment + 3)) & MuLawQuantMask))
}

// EncodeSamples converts linear samples to μ-law bytes.
func EncodeSamples(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = MuLawEncode(s)
	}
	return out
}

// DecodeSamples converts μ-law bytes to linear samples.
func DecodeSamples(mulaw []byte) []int16 {
	out := make([]int16, len(mulaw))
	for i, b := range mulaw {
		out[i] = MuLawDecode(b)
	}
	return out
}


// Int16Samples reinterprets little-endian PCM bytes as int16 samples.
func Int16Samples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// Float32Samples reinterprets little-endian IEEE-754 bytes as float32 samples.
func Float32Samples(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return samples
}

// Float32Bytes is the inverse of Float32Samples.
func Float32Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// QuantizeFloat scales a float sample in [-1, 1] to int16, clamping out-of-range
// values. NaN maps to zero.
func QuantizeFloat(sample float32) int16 {
	switch {
	case math.IsNaN(float64(sample)):
		return 0
	case sample >= 1:
		return math.MaxInt16
	case sample <= -1:
		return -math.MaxInt16
	}
	return int16(sample * math.MaxInt16)
}

// QuantizeFloats applies QuantizeFloat to every sample.
func QuantizeFloats(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = QuantizeFloat(s)
	}
	return out
}

// Decimate keeps every factor-th sample starting with the first one. There is
// no anti-alias filter; the output has len(samples)/factor samples.
func Decimate(samples []int16, factor int) []int16 {
	if factor <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/factor)
	for i := range out {
		out[i] = samples[i*factor]
	}
	return out
}

// DecimateByHalf converts 16kHz samples to 8kHz.
func DecimateByHalf(samples []int16) []int16 {
	return Decimate(samples, 2)
}
