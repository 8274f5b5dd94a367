package call

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/asr"
	"github.com/realtime-ai/callbridge/pkg/audio"
	"github.com/realtime-ai/callbridge/pkg/connection"
)

// inboundLeg reads telephony events in arrival order, surfaces the stream id
// and forwards framed caller audio to the recognizer.
type inboundLeg struct {
	tel       Telephony
	rec       asr.StreamingRecognizer
	handoff   *Handoff
	assembler *audio.FrameAssembler
	log       zerolog.Logger

	streamSID string
	asrDown   bool
}

func newInboundLeg(tel Telephony, rec asr.StreamingRecognizer, handoff *Handoff, cfg audio.FrameAssemblerConfig) *inboundLeg {
	return &inboundLeg{
		tel:       tel,
		rec:       rec,
		handoff:   handoff,
		assembler: audio.NewFrameAssembler(cfg),
		log:       log.With().Str("component", "inbound").Logger(),
	}
}

// run returns when the telephony socket closes or the stream stops. On the
// way out it flushes buffered audio and tells the recognizer no more audio
// follows.
func (l *inboundLeg) run(ctx context.Context) {
	defer l.finish(ctx)

	for {
		msg, err := l.tel.ReadEvent()
		if err != nil {
			if errors.Is(err, connection.ErrMalformedEvent) {
				l.log.Debug().Err(err).Msg("ignoring malformed event")
				continue
			}
			l.log.Info().Err(err).Msg("telephony socket closed")
			return
		}

		switch msg.Event {
		case connection.EventStart:
			l.handleStart(msg)
		case connection.EventMedia:
			l.handleMedia(ctx, msg)
		case connection.EventStop:
			l.log.Info().Msg("stream stopped")
			return
		case connection.EventConnected:
			l.log.Debug().Str("protocol", msg.Protocol).Str("version", msg.Version).Msg("telephony connected")
		case connection.EventMark:
			if msg.Mark != nil {
				l.log.Debug().Str("mark", msg.Mark.Name).Msg("playback reached mark")
			}
		case connection.EventDTMF:
			if msg.DTMF != nil {
				l.log.Info().Str("digit", msg.DTMF.Digit).Msg("caller pressed key")
			}
		default:
			l.log.Debug().Str("event", msg.Event).Msg("ignoring event")
		}
	}
}

func (l *inboundLeg) handleStart(msg *connection.TwilioMediaMessage) {
	id := msg.StreamID()
	if id == "" {
		l.log.Debug().Msg("start event without stream id")
		return
	}
	if err := l.handoff.Give(id); err != nil {
		l.log.Warn().Str("stream_sid", id).Msg("duplicate start event ignored")
		return
	}
	l.streamSID = id
	l.log = l.log.With().Str("stream_sid", id).Logger()
	l.log.Info().Msg("stream started")
}

func (l *inboundLeg) handleMedia(ctx context.Context, msg *connection.TwilioMediaMessage) {
	if msg.Media == nil || !msg.Media.IsInbound() {
		return
	}

	chunk, err := msg.Media.Audio()
	if err != nil {
		l.log.Debug().Err(err).Msg("ignoring media event")
		return
	}

	ts, err := msg.Media.TimestampMs()
	if err != nil {
		// Keep the chunk and treat it as contiguous.
		ts = l.assembler.LastTimestamp() + audio.TwilioChunkMs
	}

	for _, frame := range l.assembler.Push(chunk, ts) {
		l.forward(ctx, frame)
	}
}

func (l *inboundLeg) forward(ctx context.Context, frame audio.Frame) {
	if l.asrDown {
		return
	}
	if err := l.rec.SendAudio(ctx, frame.Data); err != nil {
		l.asrDown = true
		l.log.Warn().Err(err).Msg("recognizer rejected audio, dropping the rest of the call audio")
	}
}

func (l *inboundLeg) finish(ctx context.Context) {
	if frame, ok := l.assembler.Flush(); ok {
		l.forward(ctx, frame)
	}
	if err := l.rec.Finish(ctx); err != nil {
		l.log.Warn().Err(err).Msg("recognizer finish failed")
	}
	l.handoff.Abandon()
}
