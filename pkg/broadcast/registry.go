// Package broadcast fans call events out to observer connections.
//
// The Registry holds one global subscriber set and one set per active call,
// all behind a single mutex. Broadcast sends to every subscriber of a scope
// concurrently and removes the ones whose send failed before the lock is
// released, so Subscribe never sees a half-pruned set.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// GlobalScope addresses the subscribers that observe every call.
const GlobalScope = ""

const defaultSendTimeout = 5 * time.Second

// Subscriber is one observer connection.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Sink receives a copy of every broadcast payload.
type Sink interface {
	Mirror(ctx context.Context, scope string, payload []byte) error
}

// Registry tracks observer subscriptions by scope.
type Registry struct {
	mu     sync.Mutex
	global []Subscriber
	scopes map[string][]Subscriber

	sink        Sink
	sendTimeout time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSink mirrors every broadcast payload to s.
func WithSink(s Sink) RegistryOption {
	return func(r *Registry) { r.sink = s }
}

// WithSendTimeout bounds each per-subscriber send.
func WithSendTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.sendTimeout = d }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		scopes:      make(map[string][]Subscriber),
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenScope creates the subscriber set for a call. Opening an existing scope
// is a no-op.
func (r *Registry) OpenScope(scope string) {
	if scope == GlobalScope {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scopes[scope]; !ok {
		r.scopes[scope] = nil
	}
}

// CloseScope removes a call's subscriber set and closes its connections.
func (r *Registry) CloseScope(scope string) {
	r.mu.Lock()
	subs, ok := r.scopes[scope]
	delete(r.scopes, scope)
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, s := range subs {
		_ = s.Close()
	}
}

// Subscribe registers sub in scope. A subscription to a scope that is not
// open is dropped: the subscriber is closed and false is returned.
func (r *Registry) Subscribe(sub Subscriber, scope string) bool {
	r.mu.Lock()
	if scope == GlobalScope {
		r.global = append(r.global, sub)
		r.mu.Unlock()
		return true
	}

	subs, ok := r.scopes[scope]
	if !ok {
		r.mu.Unlock()
		log.Debug().Str("component", "broadcast").Str("stream_sid", scope).Str("observer", sub.ID()).
			Msg("no such call, dropping observer")
		_ = sub.Close()
		return false
	}
	r.scopes[scope] = append(subs, sub)
	r.mu.Unlock()
	return true
}

// Keys returns the open call scopes in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.scopes))
	for k := range r.scopes {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of subscribers in scope.
func (r *Registry) Len(scope string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if scope == GlobalScope {
		return len(r.global)
	}
	return len(r.scopes[scope])
}

// Broadcast serializes event and delivers it to every subscriber in scope.
// Failed subscribers are closed and removed. Delivery is best-effort: the
// only error returned is a serialization failure.
func (r *Registry) Broadcast(ctx context.Context, scope string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	r.broadcast(ctx, scope, payload)
	return nil
}

// Publish broadcasts event to the call's scope and to the global scope, and
// mirrors it to the sink once.
func (r *Registry) Publish(ctx context.Context, streamSID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("component", "broadcast").Str("stream_sid", streamSID).Msg("marshal event")
		return
	}

	r.broadcast(ctx, streamSID, payload)
	if streamSID != GlobalScope {
		r.broadcast(ctx, GlobalScope, payload)
	}

	if r.sink == nil {
		return
	}
	if err := r.sink.Mirror(ctx, streamSID, payload); err != nil {
		log.Warn().Err(err).Str("component", "broadcast").Str("stream_sid", streamSID).Msg("event mirror failed")
	}
}

func (r *Registry) broadcast(ctx context.Context, scope string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if scope == GlobalScope {
		r.global = r.deliverLocked(ctx, scope, r.global, payload)
		return
	}
	if subs, ok := r.scopes[scope]; ok {
		r.scopes[scope] = r.deliverLocked(ctx, scope, subs, payload)
	}
}

// deliverLocked sends payload to subs concurrently and returns the survivors
// in their original order. r.mu must be held.
func (r *Registry) deliverLocked(ctx context.Context, scope string, subs []Subscriber, payload []byte) []Subscriber {
	if len(subs) == 0 {
		return subs
	}

	failed := make([]error, len(subs))
	var g errgroup.Group
	for i, s := range subs {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
			defer cancel()
			failed[i] = s.Send(sendCtx, payload)
			return nil
		})
	}
	_ = g.Wait()

	alive := subs[:0]
	for i, s := range subs {
		if failed[i] == nil {
			alive = append(alive, s)
			continue
		}
		log.Warn().Err(failed[i]).Str("component", "broadcast").Str("stream_sid", scope).Str("observer", s.ID()).
			Msg("observer send failed, dropping connection")
		_ = s.Close()
	}
	// Clear the tail so pruned subscribers can be collected.
	for i := len(alive); i < len(subs); i++ {
		subs[i] = nil
	}
	return alive
}
