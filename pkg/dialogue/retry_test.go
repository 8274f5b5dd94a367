package dialogue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend plays one step per call; a nil step blocks until the
// attempt context expires.
type scriptedBackend struct {
	steps []func(ctx context.Context) (string, error)
	calls atomic.Int32
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) Reply(ctx context.Context, turns []Turn) (string, error) {
	i := int(s.calls.Add(1)) - 1
	if i >= len(s.steps) {
		return "", errors.New("unexpected call")
	}
	return s.steps[i](ctx)
}

func hang(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func answer(text string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, nil }
}

func TestRetryBackend_RetriesTimeoutsUntilSuccess(t *testing.T) {
	b := &scriptedBackend{steps: []func(context.Context) (string, error){hang, hang, answer("hello")}}
	r := NewRetryBackend(b, RetryConfig{Timeout: 20 * time.Millisecond})

	reply, err := r.Reply(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, int32(3), b.calls.Load())
}

func TestRetryBackend_MalformedIsNotRetried(t *testing.T) {
	malformed := func(context.Context) (string, error) {
		return "", ErrMalformedResponse
	}
	b := &scriptedBackend{steps: []func(context.Context) (string, error){malformed, answer("never")}}
	r := NewRetryBackend(b, RetryConfig{Timeout: time.Second})

	_, err := r.Reply(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestRetryBackend_MaxAttempts(t *testing.T) {
	b := &scriptedBackend{steps: []func(context.Context) (string, error){hang, hang, answer("late")}}
	r := NewRetryBackend(b, RetryConfig{Timeout: 10 * time.Millisecond, MaxAttempts: 2})

	_, err := r.Reply(context.Background(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestRetryBackend_ParentCancelStops(t *testing.T) {
	b := &scriptedBackend{steps: []func(context.Context) (string, error){hang, hang, hang, hang}}
	r := NewRetryBackend(b, RetryConfig{Timeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Reply(ctx, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestRetryBackend_ClientDeadlineErrorIsRetried(t *testing.T) {
	// A client that reports the deadline with its own error value.
	opaque := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", errors.New("request canceled while waiting for headers")
	}
	b := &scriptedBackend{steps: []func(context.Context) (string, error){opaque, answer("ok")}}
	r := NewRetryBackend(b, RetryConfig{Timeout: 10 * time.Millisecond})

	reply, err := r.Reply(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}
