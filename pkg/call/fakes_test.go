package call

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/realtime-ai/callbridge/pkg/asr"
	"github.com/realtime-ai/callbridge/pkg/broadcast"
	"github.com/realtime-ai/callbridge/pkg/connection"
	"github.com/realtime-ai/callbridge/pkg/dialogue"
)

type telEvent struct {
	msg *connection.TwilioMediaMessage
	err error
}

// fakeTelephony records outbound traffic in order as "audio:<bytes>" and
// "clear" entries. Marks are kept apart.
type fakeTelephony struct {
	inbound   chan telEvent
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu       sync.Mutex
	outbound []string
	marks    []string
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{
		inbound: make(chan telEvent, 256),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTelephony) push(msg *connection.TwilioMediaMessage) {
	f.inbound <- telEvent{msg: msg}
}

func (f *fakeTelephony) pushErr(err error) {
	f.inbound <- telEvent{err: err}
}

func (f *fakeTelephony) hangUp() {
	close(f.inbound)
}

func (f *fakeTelephony) ReadEvent() (*connection.TwilioMediaMessage, error) {
	select {
	case ev, ok := <-f.inbound:
		if !ok {
			return nil, io.EOF
		}
		return ev.msg, ev.err
	case <-f.closed:
		return nil, connection.ErrClosed
	}
}

func (f *fakeTelephony) SendAudio(streamSid string, mulaw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, "audio:"+string(mulaw))
	return nil
}

func (f *fakeTelephony) ClearAudio(streamSid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, "clear")
	return nil
}

func (f *fakeTelephony) SendMark(streamSid, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, name)
	return nil
}

func (f *fakeTelephony) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTelephony) sentMarks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marks...)
}

func (f *fakeTelephony) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.outbound...)
}

// fakeRecognizer hands test-supplied transcripts to the engine. With
// endOnFinish set, Finish ends the event stream the way a provider closes
// after CloseStream.
type fakeRecognizer struct {
	events      chan asr.TranscriptEvent
	endOnFinish bool
	sendErr     error

	endOnce  sync.Once
	finished atomic.Bool
	closed   atomic.Bool

	mu     sync.Mutex
	frames [][]byte
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan asr.TranscriptEvent, 64)}
}

func (f *fakeRecognizer) emit(evs ...asr.TranscriptEvent) {
	for _, ev := range evs {
		f.events <- ev
	}
}

func (f *fakeRecognizer) end() {
	f.endOnce.Do(func() { close(f.events) })
}

func (f *fakeRecognizer) SendAudio(ctx context.Context, data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeRecognizer) Events() <-chan asr.TranscriptEvent { return f.events }

func (f *fakeRecognizer) Finish(ctx context.Context) error {
	f.finished.Store(true)
	if f.endOnFinish {
		f.end()
	}
	return nil
}

func (f *fakeRecognizer) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeRecognizer) audio() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, fr := range f.frames {
		out = append(out, fr...)
	}
	return out
}

type fakeProvider struct {
	rec *fakeRecognizer
	err error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Connect(ctx context.Context) (asr.StreamingRecognizer, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.rec, nil
}

// fakeBackend answers with reply and keeps a copy of every history it saw.
type fakeBackend struct {
	reply func(ctx context.Context, turns []dialogue.Turn) (string, error)

	mu    sync.Mutex
	calls [][]dialogue.Turn
}

func echoBackend() *fakeBackend {
	return &fakeBackend{reply: func(_ context.Context, turns []dialogue.Turn) (string, error) {
		return "re: " + turns[len(turns)-1].Content, nil
	}}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Reply(ctx context.Context, turns []dialogue.Turn) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, dialogue.CloneTurns(turns))
	b.mu.Unlock()
	return b.reply(ctx, turns)
}

func (b *fakeBackend) history() [][]dialogue.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]dialogue.Turn(nil), b.calls...)
}

type fakeSynth struct {
	err error
}

func (s *fakeSynth) SynthesizeMuLaw(ctx context.Context, text string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(text), nil
}

// recordingObservers keeps every published event in order.
type recordingObservers struct {
	mu     sync.Mutex
	opened []string
	closed []string
	events []any
}

func (o *recordingObservers) OpenScope(scope string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, scope)
}

func (o *recordingObservers) CloseScope(scope string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, scope)
}

func (o *recordingObservers) Publish(ctx context.Context, streamSID string, event any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObservers) all() []any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]any(nil), o.events...)
}

func (o *recordingObservers) replies() []broadcast.ReplyEvent {
	var out []broadcast.ReplyEvent
	for _, ev := range o.all() {
		if r, ok := ev.(broadcast.ReplyEvent); ok {
			out = append(out, r)
		}
	}
	return out
}

func partial(text string) asr.TranscriptEvent {
	return asr.TranscriptEvent{Kind: asr.KindPartial, Text: text}
}

func final(text string, speechFinal bool) asr.TranscriptEvent {
	return asr.TranscriptEvent{Kind: asr.KindFinal, Text: text, IsFinal: true, SpeechFinal: speechFinal}
}

func utteranceEnd() asr.TranscriptEvent {
	return asr.TranscriptEvent{Kind: asr.KindUtteranceEnd, IsFinal: true}
}

func startEvent(id string) *connection.TwilioMediaMessage {
	return &connection.TwilioMediaMessage{
		Event:     connection.EventStart,
		StreamSid: id,
		Start:     &connection.TwilioStartPayload{StreamSid: id, Tracks: []string{"inbound"}},
	}
}

func mediaEvent(track string, ts int64, chunk []byte) *connection.TwilioMediaMessage {
	return &connection.TwilioMediaMessage{
		Event: connection.EventMedia,
		Media: &connection.TwilioMediaPayload{
			Track:     track,
			Timestamp: strconv.FormatInt(ts, 10),
			Payload:   base64.StdEncoding.EncodeToString(chunk),
		},
	}
}

var errBoom = errors.New("boom")
