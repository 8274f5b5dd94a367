package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrHandoffConsumed is returned when either side of a Handoff is used
	// a second time.
	ErrHandoffConsumed = errors.New("stream id handoff already consumed")

	// ErrNoStreamID is returned by Take when the inbound leg ended before a
	// start event carried the stream id.
	ErrNoStreamID = errors.New("call ended before a stream id was received")
)

// Handoff passes the stream id from the inbound leg to the engine exactly
// once. Give and Take may each be called once; Abandon is safe to call any
// number of times and only has an effect before Give.
type Handoff struct {
	ch    chan string
	given atomic.Bool
	taken atomic.Bool
	done  sync.Once
}

// NewHandoff returns an unused handoff.
func NewHandoff() *Handoff {
	return &Handoff{ch: make(chan string, 1)}
}

// Give publishes id.
func (h *Handoff) Give(id string) error {
	if h.given.Swap(true) {
		return ErrHandoffConsumed
	}
	h.done.Do(func() {
		h.ch <- id
		close(h.ch)
	})
	return nil
}

// Abandon signals that no id will ever be given.
func (h *Handoff) Abandon() {
	if h.given.Swap(true) {
		return
	}
	h.done.Do(func() { close(h.ch) })
}

// Take blocks until the id is given, the handoff is abandoned, or ctx ends.
func (h *Handoff) Take(ctx context.Context) (string, error) {
	if h.taken.Swap(true) {
		return "", ErrHandoffConsumed
	}

	select {
	case id, ok := <-h.ch:
		if !ok {
			return "", ErrNoStreamID
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
