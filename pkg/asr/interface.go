// Package asr provides the streaming speech-recognition leg of a call.
// A Provider opens one StreamingRecognizer per call; the recognizer accepts
// raw telephony audio and yields TranscriptEvents in provider order.
package asr

import (
	"context"
	"time"
)

// TranscriptKind tags a TranscriptEvent.
type TranscriptKind string

const (
	// KindPartial is an interim hypothesis that later events may replace.
	KindPartial TranscriptKind = "partial"
	// KindFinal is a finalized transcript segment.
	KindFinal TranscriptKind = "final"
	// KindUtteranceEnd is the provider's explicit end-of-utterance marker.
	KindUtteranceEnd TranscriptKind = "utterance_end"
)

// TranscriptEvent is one recognition event.
type TranscriptEvent struct {
	Kind TranscriptKind

	// Text is the transcribed text, possibly empty.
	Text string

	// IsFinal is the provider's segment finality flag.
	IsFinal bool

	// SpeechFinal is set when the provider detected end of speech with this
	// segment. A final transcript with SpeechFinal closes the utterance.
	SpeechFinal bool

	// Confidence score (0.0-1.0) if available, otherwise -1
	Confidence float32

	// Start and Duration locate the segment in the audio stream.
	Start    time.Duration
	Duration time.Duration

	// Raw is the provider message the event was decoded from.
	Raw []byte
}

// IsBoundary reports whether the event closes the current utterance.
func (e TranscriptEvent) IsBoundary() bool {
	return e.Kind == KindUtteranceEnd || (e.Kind == KindFinal && e.SpeechFinal)
}

// StreamingRecognizer is one live connection to the recognition service.
type StreamingRecognizer interface {
	// SendAudio writes one frame of audio in the format the recognizer was
	// opened with.
	SendAudio(ctx context.Context, audioData []byte) error

	// Events returns the transcript stream. It is closed once the provider
	// connection ends.
	Events() <-chan TranscriptEvent

	// Finish tells the provider no more audio follows. Pending transcripts are
	// still delivered; the connection is force-closed after a grace period if
	// the provider keeps it open.
	Finish(ctx context.Context) error

	// Close tears the connection down immediately.
	Close() error
}

// Provider opens recognizers.
type Provider interface {
	// Name returns the provider name (e.g. "deepgram")
	Name() string

	// Connect opens an authenticated streaming connection for one call.
	Connect(ctx context.Context) (StreamingRecognizer, error)
}

// Error types for ASR operations
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeAuthenticationFailed
	ErrCodeNetworkError
	ErrCodeProviderError
	ErrCodeClosed
)
