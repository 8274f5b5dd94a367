package dialogue

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/trace"
)

// DefaultAttemptTimeout bounds a single backend attempt.
const DefaultAttemptTimeout = 5 * time.Second

// RetryConfig is the invocation policy around a Backend.
type RetryConfig struct {
	// Timeout bounds each attempt (default DefaultAttemptTimeout).
	Timeout time.Duration

	// MaxAttempts caps attempts; 0 retries until success.
	MaxAttempts int

	// Backoff is the constant pause between attempts (default none).
	Backoff time.Duration
}

// RetryBackend runs every attempt under its own timeout and retries attempts
// that timed out. Any other failure is returned at once: the turn is lost but
// nothing is retried twice, so exactly one reply is ever returned.
type RetryBackend struct {
	backend Backend
	config  RetryConfig
}

// NewRetryBackend wraps backend with the given policy.
func NewRetryBackend(backend Backend, config RetryConfig) *RetryBackend {
	if config.Timeout <= 0 {
		config.Timeout = DefaultAttemptTimeout
	}
	return &RetryBackend{backend: backend, config: config}
}

func (r *RetryBackend) Name() string { return r.backend.Name() }

// Reply calls the wrapped backend until an attempt completes within the
// timeout, the attempt cap is reached, or ctx is done.
func (r *RetryBackend) Reply(ctx context.Context, turns []Turn) (string, error) {
	var policy backoff.BackOff = backoff.NewConstantBackOff(r.config.Backoff)
	if r.config.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(r.config.MaxAttempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	var (
		reply   string
		attempt int
	)
	operation := func() error {
		attempt++
		out, err := r.attempt(ctx, turns, attempt)
		if err == nil {
			reply = out
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Str("component", "dialogue").
				Str("backend", r.backend.Name()).
				Int("attempt", attempt).
				Dur("timeout", r.config.Timeout).
				Msg("backend timed out, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return reply, nil
}

func (r *RetryBackend) attempt(ctx context.Context, turns []Turn, attempt int) (string, error) {
	ctx, span := trace.InstrumentLLMRequest(ctx, r.backend.Name(), modelOf(r.backend), attempt, len(turns))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	reply, err := r.backend.Reply(attemptCtx, turns)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
		// Some clients surface the deadline as their own error type.
		err = errors.Join(err, context.DeadlineExceeded)
	}
	trace.RecordError(span, err)
	return reply, err
}

var _ Backend = (*RetryBackend)(nil)
