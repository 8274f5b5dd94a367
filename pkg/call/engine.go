package call

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/asr"
	"github.com/realtime-ai/callbridge/pkg/broadcast"
	"github.com/realtime-ai/callbridge/pkg/dialogue"
	"github.com/realtime-ai/callbridge/pkg/prompts"
	"github.com/realtime-ai/callbridge/pkg/trace"
)

// State is the engine's position in the call.
type State int

const (
	StateAwaitingStreamID State = iota
	StateGreeting
	StateListening
	StateTurn
	StateCallEnded
	StatePostCall
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingStreamID:
		return "awaiting_stream_id"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateTurn:
		return "turn"
	case StateCallEnded:
		return "call_ended"
	case StatePostCall:
		return "post_call"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// utterance accumulates the caller's words between boundaries. Finalized
// segments are kept; the latest interim hypothesis replaces the previous one.
type utterance struct {
	committed []string
	pending   string
}

func (u *utterance) partial(text string) {
	u.pending = strings.TrimSpace(text)
}

func (u *utterance) final(text string) {
	if t := strings.TrimSpace(text); t != "" {
		u.committed = append(u.committed, t)
	}
	u.pending = ""
}

func (u *utterance) text() string {
	parts := u.committed
	if u.pending != "" {
		parts = append(parts[:len(parts):len(parts)], u.pending)
	}
	return strings.Join(parts, " ")
}

// take returns the accumulated text and resets the accumulator.
func (u *utterance) take() string {
	t := u.text()
	u.committed = nil
	u.pending = ""
	return t
}

// Engine drives one call's dialogue. It alone owns the turn history and the
// utterance accumulator; Run must be called once.
type Engine struct {
	tel       Telephony
	rec       asr.StreamingRecognizer
	backend   dialogue.Backend
	synth     Synthesizer
	observers Observers
	handoff   *Handoff
	prompts   prompts.Config

	mu    sync.Mutex
	state State
	turns []dialogue.Turn

	streamSID string
	utterance utterance
	turnIndex int
	bg        sync.WaitGroup
	log       zerolog.Logger
}

// EngineDeps are the collaborators of an Engine.
type EngineDeps struct {
	Telephony  Telephony
	Recognizer asr.StreamingRecognizer
	Backend    dialogue.Backend
	Synth      Synthesizer
	Observers  Observers
	Handoff    *Handoff
}

// NewEngine creates an engine for one call. p is the prompt snapshot taken
// when the call was accepted.
func NewEngine(deps EngineDeps, p prompts.Config) *Engine {
	return &Engine{
		tel:       deps.Telephony,
		rec:       deps.Recognizer,
		backend:   deps.Backend,
		synth:     deps.Synth,
		observers: deps.Observers,
		handoff:   deps.Handoff,
		prompts:   p,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Turns returns a copy of the dialogue history.
func (e *Engine) Turns() []dialogue.Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return dialogue.CloneTurns(e.turns)
}

// Run blocks until the call and its post-call sequence are finished. The
// only error is a failed stream id handoff; everything after that is
// handled inside the call.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateAwaitingStreamID)
	id, err := e.handoff.Take(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("no stream id, abandoning call")
		_ = e.rec.Close()
		_ = e.tel.Close()
		e.setState(StateDone)
		return err
	}

	e.streamSID = id
	ctx, span := trace.InstrumentCallSession(ctx, id)
	defer span.End()
	e.log = trace.Logger(ctx).With().Str("component", "engine").Str("stream_sid", id).Logger()

	e.observers.OpenScope(id)
	e.observers.Publish(ctx, id, broadcast.NewCallEvent(id, broadcast.CallStarted))

	e.greet(ctx)

	e.setState(StateListening)
	for ev := range e.rec.Events() {
		e.handleTranscript(ctx, ev)
	}

	e.setState(StateCallEnded)
	e.log.Info().Int("turns", len(e.turns)).Msg("call ended")
	_ = e.tel.Close()
	_ = e.rec.Close()

	e.postCall(ctx)
	e.bg.Wait()

	e.observers.Publish(ctx, id, broadcast.NewCallEvent(id, broadcast.CallEnded))
	e.observers.CloseScope(id)
	e.setState(StateDone)
	return nil
}

// greet seeds the history and plays the greeting before any transcript is
// looked at.
func (e *Engine) greet(ctx context.Context) {
	e.setState(StateGreeting)

	if e.prompts.PreCallPrompt != "" {
		e.appendTurn(dialogue.RoleSystem, e.prompts.PreCallPrompt)
	}
	if e.prompts.InitialMessage == "" {
		return
	}
	e.appendTurn(dialogue.RoleAssistant, e.prompts.InitialMessage)
	e.speak(ctx, e.prompts.InitialMessage, "greeting")
	e.log.Info().Msg("greeting sent")
}

func (e *Engine) handleTranscript(ctx context.Context, ev asr.TranscriptEvent) {
	e.observers.Publish(ctx, e.streamSID, broadcast.NewTranscriptEvent(e.streamSID, ev))

	switch ev.Kind {
	case asr.KindPartial:
		e.utterance.partial(ev.Text)
		e.log.Debug().Str("text", ev.Text).Msg("partial transcript")
		if strings.TrimSpace(ev.Text) != "" {
			e.bargeIn()
		}
	case asr.KindFinal:
		e.utterance.final(ev.Text)
		e.log.Debug().Str("text", ev.Text).Bool("speech_final", ev.SpeechFinal).Msg("final transcript")
	}

	if !ev.IsBoundary() {
		return
	}

	text := e.utterance.take()
	if text == "" {
		return
	}
	e.runTurn(ctx, text)
}

// bargeIn drops any synthesized audio still queued on the call.
func (e *Engine) bargeIn() {
	if err := e.tel.ClearAudio(e.streamSID); err != nil {
		e.log.Debug().Err(err).Msg("clear playback failed")
	}
}

func (e *Engine) runTurn(ctx context.Context, text string) {
	e.setState(StateTurn)
	defer e.setState(StateListening)

	e.turnIndex++
	ctx, span := trace.InstrumentCallTurn(ctx, e.streamSID, e.turnIndex)
	defer span.End()

	e.appendTurn(dialogue.RoleUser, text)
	e.log.Info().Int("turn", e.turnIndex).Str("text", text).Msg("caller utterance")

	reply, err := e.backend.Reply(ctx, e.Turns())
	if err != nil {
		trace.RecordError(span, err)
		e.log.Error().Err(err).Int("turn", e.turnIndex).Msg("dialogue backend failed, skipping reply")
		return
	}
	e.appendTurn(dialogue.RoleAssistant, reply)
	e.log.Info().Int("turn", e.turnIndex).Str("text", reply).Msg("assistant reply")

	e.speak(ctx, reply, "turn-"+strconv.Itoa(e.turnIndex))
	e.observers.Publish(ctx, e.streamSID, broadcast.NewReplyEvent(e.streamSID, reply))

	if e.prompts.IntrospectionPrompt != "" {
		e.introspect(ctx, e.Turns())
	}
}

// introspect asks the introspection prompt against a copy of the history.
// The answer is only broadcast, never added to the call's turns.
func (e *Engine) introspect(ctx context.Context, history []dialogue.Turn) {
	history = append(history, dialogue.Turn{Role: dialogue.RoleUser, Content: e.prompts.IntrospectionPrompt})

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		answer, err := e.backend.Reply(ctx, history)
		if err != nil {
			e.log.Warn().Err(err).Msg("introspection failed")
			return
		}
		e.observers.Publish(ctx, e.streamSID, broadcast.NewIntrospectionEvent(e.streamSID, answer))
	}()
}

// speak synthesizes text and plays it, followed by a mark that Twilio echoes
// once playback reaches the end. Failures are logged; the call goes on.
func (e *Engine) speak(ctx context.Context, text, mark string) {
	mulaw, err := e.synth.SynthesizeMuLaw(ctx, text)
	if err != nil {
		e.log.Error().Err(err).Msg("synthesis failed")
		return
	}
	if err := e.tel.SendAudio(e.streamSID, mulaw); err != nil {
		e.log.Warn().Err(err).Msg("sending audio failed")
		return
	}
	if err := e.tel.SendMark(e.streamSID, mark); err != nil {
		e.log.Debug().Err(err).Str("mark", mark).Msg("sending mark failed")
	}
}

// postCall runs the post-call prompts in order against the full history.
func (e *Engine) postCall(ctx context.Context) {
	e.setState(StatePostCall)
	if len(e.prompts.PostCallPrompts) == 0 {
		return
	}

	ctx, span := trace.InstrumentPostCall(ctx, e.streamSID, len(e.prompts.PostCallPrompts))
	defer span.End()

	for i, prompt := range e.prompts.PostCallPrompts {
		e.appendTurn(dialogue.RoleUser, prompt)

		reply, err := e.backend.Reply(ctx, e.Turns())
		if err != nil {
			trace.RecordError(span, err)
			e.log.Error().Err(err).Int("prompt", i).Msg("post-call prompt failed")
			continue
		}
		e.appendTurn(dialogue.RoleAssistant, reply)
		e.observers.Publish(ctx, e.streamSID, broadcast.NewPostCallReplyEvent(e.streamSID, prompt, reply))
	}
	e.log.Info().Int("prompts", len(e.prompts.PostCallPrompts)).Msg("post-call sequence done")
}

func (e *Engine) appendTurn(role dialogue.Role, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, dialogue.Turn{Role: role, Content: content})
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()

	if prev != s {
		e.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state change")
	}
}
