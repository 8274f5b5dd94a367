// Package call runs one telephone call end to end.
//
// The Coordinator accepts a telephony socket, dials the recognizer and starts
// two goroutines per call: the inbound leg, which frames caller audio into
// the recognizer, and the Engine, which turns transcripts into dialogue turns
// and speech. The legs share nothing mutable; the stream id crosses from the
// inbound leg to the engine through a single-use Handoff.
package call

import (
	"context"

	"github.com/realtime-ai/callbridge/pkg/connection"
)

// Telephony is the call's media socket.
type Telephony interface {
	ReadEvent() (*connection.TwilioMediaMessage, error)
	SendAudio(streamSid string, mulaw []byte) error
	ClearAudio(streamSid string) error
	SendMark(streamSid, name string) error
	Close() error
}

// Synthesizer turns text into 8kHz μ-law audio.
type Synthesizer interface {
	SynthesizeMuLaw(ctx context.Context, text string) ([]byte, error)
}

// Observers receives call events. *broadcast.Registry implements it.
type Observers interface {
	OpenScope(scope string)
	CloseScope(scope string)
	Publish(ctx context.Context, streamSID string, event any)
}

var _ Telephony = (*connection.TwilioConnection)(nil)
