package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentCallSession starts the root span of a call.
func InstrumentCallSession(ctx context.Context, streamSID string) (context.Context, trace.Span) {
	return start(ctx, "call.session", trace.WithAttributes(
		attribute.String(AttrStreamSID, streamSID),
	))
}

// InstrumentCallTurn covers one caller utterance and the reply to it.
func InstrumentCallTurn(ctx context.Context, streamSID string, index int) (context.Context, trace.Span) {
	return start(ctx, "call.turn", trace.WithAttributes(
		attribute.String(AttrStreamSID, streamSID),
		attribute.Int(AttrTurnIndex, index),
	))
}

func InstrumentPostCall(ctx context.Context, streamSID string, prompts int) (context.Context, trace.Span) {
	return start(ctx, "call.post_call", trace.WithAttributes(
		attribute.String(AttrStreamSID, streamSID),
		attribute.Int(AttrPostCallPrompts, prompts),
	))
}

// InstrumentLLMRequest covers a single dialogue backend attempt; retries
// get a span each.
func InstrumentLLMRequest(ctx context.Context, provider, model string, attempt, turns int) (context.Context, trace.Span) {
	return start(ctx, "llm.request", trace.WithAttributes(
		attribute.String(AttrLLMProvider, provider),
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMAttempt, attempt),
		attribute.Int(AttrLLMTurns, turns),
	))
}

func InstrumentTTSRequest(ctx context.Context, provider, voice, text string) (context.Context, trace.Span) {
	return start(ctx, "tts.request", trace.WithAttributes(
		attribute.String(AttrTTSProvider, provider),
		attribute.String(AttrTTSVoice, voice),
		attribute.Int(AttrTextLength, len(text)),
	))
}

// InstrumentASRConnect covers dialing the recognizer for one call.
func InstrumentASRConnect(ctx context.Context, provider, url string) (context.Context, trace.Span) {
	return start(ctx, "asr.connect", trace.WithAttributes(
		attribute.String(AttrASRProvider, provider),
		attribute.String(AttrASRURL, url),
	))
}
