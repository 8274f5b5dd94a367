// Package connection provides the telephony leg transport.
//
// TwilioConnection wraps one Twilio Media Streams WebSocket. Reads are done
// by a single goroutine (the inbound leg); writes may come from several and
// are serialized because gorilla/websocket allows one concurrent writer.
//
// Audio Format:
//   - Twilio: μ-law, 8kHz, mono, base64 in JSON text frames
//
// Reference: https://www.twilio.com/docs/voice/media-streams

package connection

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Twilio Media Streams event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
	EventClear     = "clear"
)

const writeTimeout = 10 * time.Second

var (
	// ErrMalformedEvent marks an inbound frame that is not a Twilio event.
	ErrMalformedEvent = errors.New("malformed twilio event")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("twilio connection closed")
)

// TwilioMediaMessage represents a Twilio Media Streams WebSocket message.
type TwilioMediaMessage struct {
	Event          string              `json:"event"`
	SequenceNumber string              `json:"sequenceNumber,omitempty"`
	StreamSid      string              `json:"streamSid,omitempty"`
	Protocol       string              `json:"protocol,omitempty"`
	Version        string              `json:"version,omitempty"`
	Start          *TwilioStartPayload `json:"start,omitempty"`
	Media          *TwilioMediaPayload `json:"media,omitempty"`
	Stop           *TwilioStopPayload  `json:"stop,omitempty"`
	Mark           *TwilioMarkPayload  `json:"mark,omitempty"`
	DTMF           *TwilioDTMFPayload  `json:"dtmf,omitempty"`
}

// TwilioStartPayload contains stream initialization data.
type TwilioStartPayload struct {
	AccountSid       string            `json:"accountSid"`
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      TwilioMediaFormat `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// TwilioMediaFormat describes the audio format.
type TwilioMediaFormat struct {
	Encoding   string `json:"encoding"`   // "audio/x-mulaw"
	SampleRate int    `json:"sampleRate"` // 8000
	Channels   int    `json:"channels"`   // 1
}

// TwilioMediaPayload contains audio data.
type TwilioMediaPayload struct {
	Track     string `json:"track,omitempty"` // "inbound" or "outbound"
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // Base64 encoded μ-law audio
}

// TwilioStopPayload contains stream termination data.
type TwilioStopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// TwilioMarkPayload contains mark event data.
type TwilioMarkPayload struct {
	Name string `json:"name"`
}

// TwilioDTMFPayload contains DTMF digit data.
type TwilioDTMFPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}

// StreamID returns the stream identifier carried by a start event.
func (m *TwilioMediaMessage) StreamID() string {
	if m.Start != nil && m.Start.StreamSid != "" {
		return m.Start.StreamSid
	}
	return m.StreamSid
}

// Audio decodes the base64 μ-law payload.
func (p *TwilioMediaPayload) Audio() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode media payload: %w", err)
	}
	return data, nil
}

// TimestampMs parses the chunk timestamp (milliseconds since stream start).
func (p *TwilioMediaPayload) TimestampMs() (int64, error) {
	ts, err := strconv.ParseInt(p.Timestamp, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse media timestamp %q: %w", p.Timestamp, err)
	}
	return ts, nil
}

// IsInbound reports whether the chunk carries caller audio.
func (p *TwilioMediaPayload) IsInbound() bool {
	return p.Track == "" || p.Track == "inbound"
}

// TwilioConnection implements the telephony leg over a Twilio Media Streams socket.
type TwilioConnection struct {
	conn   *websocket.Conn
	closed atomic.Bool

	// gorilla/websocket requires synchronized writes
	writeMu sync.Mutex
}

// NewTwilioConnection wraps an accepted WebSocket.
func NewTwilioConnection(conn *websocket.Conn) *TwilioConnection {
	return &TwilioConnection{conn: conn}
}

// ReadEvent blocks for the next Twilio event. A frame that cannot be parsed
// yields an error wrapping ErrMalformedEvent; the connection stays usable.
// Any other error means the socket is gone.
func (tc *TwilioConnection) ReadEvent() (*TwilioMediaMessage, error) {
	for {
		msgType, data, err := tc.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg TwilioMediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return &msg, nil
	}
}

// SendAudio sends μ-law audio for playback on the call.
func (tc *TwilioConnection) SendAudio(streamSid string, mulaw []byte) error {
	return tc.writeJSON(TwilioMediaMessage{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media: &TwilioMediaPayload{
			Payload: base64.StdEncoding.EncodeToString(mulaw),
		},
	})
}

// ClearAudio asks Twilio to drop any audio queued for playback.
func (tc *TwilioConnection) ClearAudio(streamSid string) error {
	log.Debug().Str("component", "twilio").Str("stream_sid", streamSid).Msg("clearing playback")
	return tc.writeJSON(TwilioMediaMessage{
		Event:     EventClear,
		StreamSid: streamSid,
	})
}

// SendMark sends a mark that Twilio echoes once playback reaches it.
func (tc *TwilioConnection) SendMark(streamSid, name string) error {
	return tc.writeJSON(TwilioMediaMessage{
		Event:     EventMark,
		StreamSid: streamSid,
		Mark:      &TwilioMarkPayload{Name: name},
	})
}

// Close closes the socket. It is safe to call more than once.
func (tc *TwilioConnection) Close() error {
	if tc.closed.Swap(true) {
		return nil
	}
	return tc.conn.Close()
}

func (tc *TwilioConnection) writeJSON(msg TwilioMediaMessage) error {
	if tc.closed.Load() {
		return ErrClosed
	}

	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()

	if err := tc.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return tc.conn.WriteJSON(msg)
}
