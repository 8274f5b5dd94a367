package broadcast

import (
	"time"

	"github.com/google/uuid"

	"github.com/realtime-ai/callbridge/pkg/asr"
)

// Event types on the observer wire.
const (
	TypeTranscript    = "transcript"
	TypeReply         = "reply"
	TypeIntrospection = "introspection"
	TypeCall          = "call"
)

// Call lifecycle states carried by CallEvent.
const (
	CallStarted = "started"
	CallEnded   = "ended"
)

// Envelope is common to every observer event.
type Envelope struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	StreamSID string    `json:"stream_sid"`
	Timestamp time.Time `json:"timestamp"`
}

func newEnvelope(typ, streamSID string) Envelope {
	return Envelope{
		Type:      typ,
		ID:        uuid.NewString(),
		StreamSID: streamSID,
		Timestamp: time.Now().UTC(),
	}
}

// TranscriptEvent relays one ASR event.
type TranscriptEvent struct {
	Envelope
	Kind        string `json:"kind"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
}

// NewTranscriptEvent wraps an ASR event for observers.
func NewTranscriptEvent(streamSID string, ev asr.TranscriptEvent) TranscriptEvent {
	return TranscriptEvent{
		Envelope:    newEnvelope(TypeTranscript, streamSID),
		Kind:        string(ev.Kind),
		Text:        ev.Text,
		IsFinal:     ev.IsFinal,
		SpeechFinal: ev.SpeechFinal,
	}
}

// ReplyEvent carries an assistant reply. Prompt is set for post-call replies.
type ReplyEvent struct {
	Envelope
	Role     string `json:"role"`
	Content  string `json:"content"`
	PostCall bool   `json:"post_call"`
	Prompt   string `json:"prompt,omitempty"`
}

// NewReplyEvent builds an in-call reply event.
func NewReplyEvent(streamSID, content string) ReplyEvent {
	return ReplyEvent{
		Envelope: newEnvelope(TypeReply, streamSID),
		Role:     "assistant",
		Content:  content,
	}
}

// NewPostCallReplyEvent builds a reply event for a post-call prompt.
func NewPostCallReplyEvent(streamSID, prompt, content string) ReplyEvent {
	ev := NewReplyEvent(streamSID, content)
	ev.PostCall = true
	ev.Prompt = prompt
	return ev
}

// IntrospectionEvent carries the answer to the introspection prompt.
type IntrospectionEvent struct {
	Envelope
	Content string `json:"content"`
}

func NewIntrospectionEvent(streamSID, content string) IntrospectionEvent {
	return IntrospectionEvent{Envelope: newEnvelope(TypeIntrospection, streamSID), Content: content}
}

// CallEvent marks call start and end.
type CallEvent struct {
	Envelope
	State string `json:"state"`
}

func NewCallEvent(streamSID, state string) CallEvent {
	return CallEvent{Envelope: newEnvelope(TypeCall, streamSID), State: state}
}
