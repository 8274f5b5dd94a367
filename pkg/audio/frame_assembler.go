package audio

const (
	// TwilioChunkMs is the duration of one media chunk on the telephony leg.
	TwilioChunkMs = 20

	// DefaultFrameChunks is how many 20ms chunks are batched into one ASR frame.
	DefaultFrameChunks = 20

	// MaxGapFillMs caps how much silence is synthesized for one discontinuity.
	MaxGapFillMs = 1000

	bytesPerMs = TelephonySampleRate / 1000
)

// Frame is a span of μ-law bytes ready for the ASR connection. Timestamp is the
// provider timestamp (ms since stream start) of the last chunk in the frame.
type Frame struct {
	Data      []byte
	Timestamp int64
}

// FrameAssemblerConfig controls batching.
type FrameAssemblerConfig struct {
	// FrameChunks is the number of 20ms chunks that make up one frame.
	FrameChunks int

	// FillGaps pads μ-law silence for time lost in a discontinuity.
	FillGaps bool
}

// DefaultFrameAssemblerConfig returns the batching used for Twilio → Deepgram.
func DefaultFrameAssemblerConfig() FrameAssemblerConfig {
	return FrameAssemblerConfig{
		FrameChunks: DefaultFrameChunks,
		FillGaps:    true,
	}
}

// FrameAssembler batches inbound telephony chunks into ASR frames. It never
// reorders or drops bytes: a frame is always a prefix of the bytes pushed so
// far that has not been emitted yet, optionally followed by gap silence.
//
// A FrameAssembler belongs to one call and is not safe for concurrent use.
type FrameAssembler struct {
	buffer        []byte
	lastTimestamp int64
	started       bool

	minFrameBytes int
	fillGaps      bool
}

// NewFrameAssembler creates an assembler.
func NewFrameAssembler(cfg FrameAssemblerConfig) *FrameAssembler {
	if cfg.FrameChunks <= 0 {
		cfg.FrameChunks = DefaultFrameChunks
	}
	minFrameBytes := cfg.FrameChunks * TwilioChunkMs * bytesPerMs

	return &FrameAssembler{
		buffer:        make([]byte, 0, minFrameBytes*2),
		minFrameBytes: minFrameBytes,
		fillGaps:      cfg.FillGaps,
	}
}

// Push appends one decoded media chunk and returns the frames that are ready.
//
// When the chunk's timestamp jumps past the expected next chunk, the audio
// buffered before the gap is flushed at once (with silence for the lost time
// when FillGaps is set) and the new chunk starts a fresh buffer.
func (a *FrameAssembler) Push(chunk []byte, timestamp int64) []Frame {
	var frames []Frame

	if a.started && timestamp > a.lastTimestamp+TwilioChunkMs {
		if a.fillGaps {
			lostMs := timestamp - a.lastTimestamp - TwilioChunkMs
			if lostMs > MaxGapFillMs {
				lostMs = MaxGapFillMs
			}
			for i := int64(0); i < lostMs*bytesPerMs; i++ {
				a.buffer = append(a.buffer, MuLawSilence)
			}
		}
		if f, ok := a.take(a.lastTimestamp); ok {
			frames = append(frames, f)
		}
	}

	a.started = true
	a.lastTimestamp = timestamp
	a.buffer = append(a.buffer, chunk...)

	if len(a.buffer) >= a.minFrameBytes {
		if f, ok := a.take(timestamp); ok {
			frames = append(frames, f)
		}
	}

	return frames
}

// Flush returns whatever is buffered, if anything.
func (a *FrameAssembler) Flush() (Frame, bool) {
	return a.take(a.lastTimestamp)
}

// Buffered reports the number of bytes waiting for the next frame.
func (a *FrameAssembler) Buffered() int {
	return len(a.buffer)
}

// LastTimestamp returns the timestamp of the most recently pushed chunk.
func (a *FrameAssembler) LastTimestamp() int64 {
	return a.lastTimestamp
}

func (a *FrameAssembler) take(timestamp int64) (Frame, bool) {
	if len(a.buffer) == 0 {
		return Frame{}, false
	}
	data := make([]byte, len(a.buffer))
	copy(data, a.buffer)
	a.buffer = a.buffer[:0]
	return Frame{Data: data, Timestamp: timestamp}, true
}
