// Deepgram streaming ASR provider
//
// Streams raw 8kHz μ-law telephony audio over a WebSocket and receives JSON
// transcript messages: interim "Results", finalized "Results" carrying
// is_final/speech_final flags, and "UtteranceEnd" markers.
//
// Reference: https://developers.deepgram.com/docs/live-streaming-audio

package asr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/trace"
)

const (
	// DefaultDeepgramURL asks for μ-law at 8kHz with interim results and
	// utterance-end detection.
	DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen?encoding=mulaw&sample_rate=8000&punctuate=true&model=nova-smart-format&utterance_end_ms=1000&interim_results=true"

	// Deepgram drops a stream after about 10s without audio or KeepAlive.
	DefaultDeepgramKeepAlive   = 5 * time.Second
	DefaultDeepgramFinishGrace = 5 * time.Second

	deepgramConnectionTimeout = 10 * time.Second
	deepgramWriteTimeout      = 10 * time.Second
	deepgramEventBuffer       = 64
	deepgramSendBuffer        = 100
)

// DeepgramConfig holds configuration for DeepgramProvider.
type DeepgramConfig struct {
	// URL is the streaming endpoint including query parameters.
	URL string

	// APIKey is the credential sent in the Authorization header (required).
	APIKey string

	// AuthScheme prefixes the key in the Authorization header (default "Token").
	AuthScheme string

	// KeepAlive is how long the stream may go without a write before a
	// KeepAlive message is sent (default 5s).
	KeepAlive time.Duration

	// FinishGrace is how long to wait for the server to close after
	// CloseStream before closing the socket ourselves (default 5s).
	FinishGrace time.Duration

	// WriteTimeout bounds every socket write (default 10s).
	WriteTimeout time.Duration
}

// DeepgramProvider implements Provider for Deepgram live transcription.
type DeepgramProvider struct {
	url    string
	header http.Header
	dialer websocket.Dialer
	timing deepgramTiming
}

type deepgramTiming struct {
	keepAlive    time.Duration
	finishGrace  time.Duration
	writeTimeout time.Duration
}

// NewDeepgramProvider validates the configuration and returns a provider.
func NewDeepgramProvider(config DeepgramConfig) (*DeepgramProvider, error) {
	if config.APIKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "Deepgram API key is required",
		}
	}
	if config.URL == "" {
		config.URL = DefaultDeepgramURL
	}
	if config.AuthScheme == "" {
		config.AuthScheme = "Token"
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = DefaultDeepgramKeepAlive
	}
	if config.FinishGrace <= 0 {
		config.FinishGrace = DefaultDeepgramFinishGrace
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = deepgramWriteTimeout
	}

	header := http.Header{}
	header.Set("Authorization", config.AuthScheme+" "+config.APIKey)

	return &DeepgramProvider{
		url:    config.URL,
		header: header,
		dialer: websocket.Dialer{HandshakeTimeout: deepgramConnectionTimeout},
		timing: deepgramTiming{
			keepAlive:    config.KeepAlive,
			finishGrace:  config.FinishGrace,
			writeTimeout: config.WriteTimeout,
		},
	}, nil
}

// Name returns the provider name.
func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

// Connect dials the streaming endpoint. A failure here is fatal for the call.
func (p *DeepgramProvider) Connect(ctx context.Context) (StreamingRecognizer, error) {
	ctx, span := trace.InstrumentASRConnect(ctx, p.Name(), p.url)
	defer span.End()

	conn, resp, err := p.dialer.DialContext(ctx, p.url, p.header)
	if err != nil {
		code := ErrCodeNetworkError
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			code = ErrCodeAuthenticationFailed
		}
		asrErr := &Error{Code: code, Message: "deepgram dial failed", Err: err}
		trace.RecordError(span, asrErr)
		return nil, asrErr
	}

	r := newDeepgramRecognizer(conn, p.timing)
	r.start()

	log.Info().Str("component", "asr").Str("provider", p.Name()).Msg("connected")
	return r, nil
}

// deepgramMessage covers every server message type we care about.
type deepgramMessage struct {
	Type        string          `json:"type"`
	IsFinal     bool            `json:"is_final"`
	SpeechFinal bool            `json:"speech_final"`
	Start       float64         `json:"start"`
	Duration    float64         `json:"duration"`
	Channel     json.RawMessage `json:"channel"`
	LastWordEnd float64         `json:"last_word_end"`
}

type deepgramChannel struct {
	Alternatives []struct {
		Transcript string  `json:"transcript"`
		Confidence float32 `json:"confidence"`
	} `json:"alternatives"`
}

type deepgramControl struct {
	Type string `json:"type"`
}

// deepgramRecognizer implements StreamingRecognizer.
type deepgramRecognizer struct {
	conn     *websocket.Conn
	timing   deepgramTiming
	events   chan TranscriptEvent
	sendChan chan []byte
	finishCh chan struct{}
	done     chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
	finished  atomic.Bool
	closed    atomic.Bool
}

func newDeepgramRecognizer(conn *websocket.Conn, timing deepgramTiming) *deepgramRecognizer {
	return &deepgramRecognizer{
		conn:     conn,
		timing:   timing,
		events:   make(chan TranscriptEvent, deepgramEventBuffer),
		sendChan: make(chan []byte, deepgramSendBuffer),
		finishCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *deepgramRecognizer) start() {
	r.wg.Add(2)
	go r.readLoop()
	go r.writeLoop()
}

// readLoop decodes provider messages until the socket closes, then closes
// the events channel.
func (r *deepgramRecognizer) readLoop() {
	defer r.wg.Done()
	defer close(r.events)
	defer r.Close()

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			if !r.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Str("component", "asr").Err(err).Msg("deepgram read error")
			}
			return
		}

		ev, ok := parseDeepgramMessage(message)
		if !ok {
			continue
		}
		select {
		case r.events <- ev:
		case <-r.done:
			return
		}
	}
}

// writeLoop is the only writer on the socket. The keep-alive timer restarts
// on every write, so a KeepAlive goes out exactly one interval after the
// stream goes quiet.
func (r *deepgramRecognizer) writeLoop() {
	defer r.wg.Done()

	idle := time.NewTimer(r.timing.keepAlive)
	defer idle.Stop()

	for {
		select {
		case <-r.done:
			return

		case frame := <-r.sendChan:
			if err := r.write(websocket.BinaryMessage, frame); err != nil {
				log.Warn().Str("component", "asr").Err(err).Msg("deepgram write failed")
				r.Close()
				return
			}
			idle.Reset(r.timing.keepAlive)

		case <-idle.C:
			if err := r.writeControl("KeepAlive"); err != nil {
				log.Warn().Str("component", "asr").Err(err).Msg("deepgram keep-alive failed")
				r.Close()
				return
			}
			idle.Reset(r.timing.keepAlive)

		case <-r.finishCh:
			// Drain audio queued before Finish so nothing is lost.
		drain:
			for {
				select {
				case frame := <-r.sendChan:
					if err := r.write(websocket.BinaryMessage, frame); err != nil {
						r.Close()
						return
					}
				default:
					break drain
				}
			}
			if err := r.writeControl("CloseStream"); err != nil {
				r.Close()
				return
			}
			log.Debug().Str("component", "asr").Msg("sent CloseStream")

			grace := time.NewTimer(r.timing.finishGrace)
			defer grace.Stop()
			select {
			case <-r.done:
			case <-grace.C:
				log.Warn().Str("component", "asr").Msg("deepgram did not close after CloseStream, closing")
				r.Close()
			}
			return
		}
	}
}

func (r *deepgramRecognizer) write(messageType int, data []byte) error {
	if err := r.conn.SetWriteDeadline(time.Now().Add(r.timing.writeTimeout)); err != nil {
		return err
	}
	return r.conn.WriteMessage(messageType, data)
}

func (r *deepgramRecognizer) writeControl(kind string) error {
	data, err := json.Marshal(deepgramControl{Type: kind})
	if err != nil {
		return err
	}
	return r.write(websocket.TextMessage, data)
}

// parseDeepgramMessage maps a provider message to a TranscriptEvent. Messages
// that carry no transcript information (metadata, speech started, malformed
// JSON) are skipped.
func parseDeepgramMessage(data []byte) (TranscriptEvent, bool) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Str("component", "asr").Err(err).Msg("ignoring malformed deepgram message")
		return TranscriptEvent{}, false
	}

	switch msg.Type {
	case "Results":
		var ch deepgramChannel
		if err := json.Unmarshal(msg.Channel, &ch); err != nil || len(ch.Alternatives) == 0 {
			return TranscriptEvent{}, false
		}
		alt := ch.Alternatives[0]
		kind := KindPartial
		if msg.IsFinal {
			kind = KindFinal
		}
		return TranscriptEvent{
			Kind:        kind,
			Text:        alt.Transcript,
			IsFinal:     msg.IsFinal,
			SpeechFinal: msg.SpeechFinal,
			Confidence:  alt.Confidence,
			Start:       seconds(msg.Start),
			Duration:    seconds(msg.Duration),
			Raw:         data,
		}, true

	case "UtteranceEnd":
		return TranscriptEvent{
			Kind:       KindUtteranceEnd,
			IsFinal:    true,
			Confidence: -1,
			Start:      seconds(msg.LastWordEnd),
			Raw:        data,
		}, true

	default:
		return TranscriptEvent{}, false
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// SendAudio queues a frame for the writer.
func (r *deepgramRecognizer) SendAudio(ctx context.Context, audioData []byte) error {
	if r.closed.Load() || r.finished.Load() {
		return &Error{Code: ErrCodeClosed, Message: "recognizer is closed"}
	}

	select {
	case r.sendChan <- audioData:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return &Error{Code: ErrCodeClosed, Message: "recognizer is closed"}
	}
}

// Events returns the transcript stream.
func (r *deepgramRecognizer) Events() <-chan TranscriptEvent {
	return r.events
}

// Finish sends CloseStream once all queued audio has been written.
func (r *deepgramRecognizer) Finish(ctx context.Context) error {
	if r.finished.Swap(true) {
		return nil
	}
	if r.closed.Load() {
		return nil
	}
	close(r.finishCh)
	return nil
}

// Close stops recognition and releases resources.
func (r *deepgramRecognizer) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		err = r.conn.Close()
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
	})
	return err
}

var _ StreamingRecognizer = (*deepgramRecognizer)(nil)
