package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id     string
	fail   bool
	mu     sync.Mutex
	got    [][]byte
	closed atomic.Bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(ctx context.Context, data []byte) error {
	if f.fail {
		return errors.New("broken pipe")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, data)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeSubscriber) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

type captureSink struct {
	scopes   []string
	payloads [][]byte
}

func (c *captureSink) Mirror(ctx context.Context, scope string, payload []byte) error {
	c.scopes = append(c.scopes, scope)
	c.payloads = append(c.payloads, payload)
	return nil
}

func TestRegistry_BroadcastPrunesFailedObserver(t *testing.T) {
	r := NewRegistry()
	r.OpenScope("CA123")

	good := &fakeSubscriber{id: "good"}
	bad := &fakeSubscriber{id: "bad", fail: true}
	require.True(t, r.Subscribe(good, "CA123"))
	require.True(t, r.Subscribe(bad, "CA123"))

	require.NoError(t, r.Broadcast(context.Background(), "CA123", NewCallEvent("CA123", CallStarted)))

	assert.Equal(t, 1, r.Len("CA123"))
	assert.Len(t, good.received(), 1)
	assert.True(t, bad.closed.Load())
	assert.False(t, good.closed.Load())

	require.NoError(t, r.Broadcast(context.Background(), "CA123", NewCallEvent("CA123", CallEnded)))
	assert.Len(t, good.received(), 2)
}

func TestRegistry_BroadcastWithoutObservers(t *testing.T) {
	r := NewRegistry()

	assert.NoError(t, r.Broadcast(context.Background(), GlobalScope, NewCallEvent("x", CallStarted)))
	assert.NoError(t, r.Broadcast(context.Background(), "unknown", NewCallEvent("x", CallStarted)))

	r.OpenScope("CA1")
	assert.NoError(t, r.Broadcast(context.Background(), "CA1", NewCallEvent("CA1", CallStarted)))
	assert.Equal(t, 0, r.Len("CA1"))
	assert.Equal(t, []string{"CA1"}, r.Keys())
}

func TestRegistry_BroadcastUnmarshalable(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Broadcast(context.Background(), GlobalScope, make(chan int)))
}

func TestRegistry_SubscribeUnknownScopeIsDropped(t *testing.T) {
	r := NewRegistry()
	sub := &fakeSubscriber{id: "late"}

	assert.False(t, r.Subscribe(sub, "CA404"))
	assert.True(t, sub.closed.Load())
	assert.Empty(t, r.Keys())
}

func TestRegistry_CloseScopeClosesObservers(t *testing.T) {
	r := NewRegistry()
	r.OpenScope("CA1")
	r.OpenScope("CA1")
	sub := &fakeSubscriber{id: "a"}
	r.Subscribe(sub, "CA1")

	r.CloseScope("CA1")
	r.CloseScope("CA1")

	assert.True(t, sub.closed.Load())
	assert.Empty(t, r.Keys())
	assert.False(t, r.Subscribe(&fakeSubscriber{id: "b"}, "CA1"))
}

func TestRegistry_PublishReachesCallAndGlobalAndSink(t *testing.T) {
	sink := &captureSink{}
	r := NewRegistry(WithSink(sink))
	r.OpenScope("CA1")
	r.OpenScope("CA2")

	call := &fakeSubscriber{id: "call"}
	other := &fakeSubscriber{id: "other"}
	global := &fakeSubscriber{id: "global"}
	r.Subscribe(call, "CA1")
	r.Subscribe(other, "CA2")
	r.Subscribe(global, GlobalScope)

	r.Publish(context.Background(), "CA1", NewReplyEvent("CA1", "hello"))

	require.Len(t, call.received(), 1)
	require.Len(t, global.received(), 1)
	assert.Empty(t, other.received())
	assert.Equal(t, []string{"CA1"}, sink.scopes)

	var ev ReplyEvent
	require.NoError(t, json.Unmarshal(call.received()[0], &ev))
	assert.Equal(t, TypeReply, ev.Type)
	assert.Equal(t, "CA1", ev.StreamSID)
	assert.Equal(t, "hello", ev.Content)
	assert.False(t, ev.PostCall)
	assert.NotEmpty(t, ev.ID)
}

func TestRegistry_ConcurrentSubscribeAndBroadcast(t *testing.T) {
	r := NewRegistry()
	r.OpenScope("CA1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Subscribe(&fakeSubscriber{id: fmt.Sprint(i), fail: i%2 == 0}, "CA1")
		}()
		go func() {
			defer wg.Done()
			_ = r.Broadcast(context.Background(), "CA1", NewCallEvent("CA1", CallStarted))
		}()
	}
	wg.Wait()

	// One more broadcast prunes any failing subscriber that joined last.
	require.NoError(t, r.Broadcast(context.Background(), "CA1", NewCallEvent("CA1", CallStarted)))
	assert.Equal(t, 25, r.Len("CA1"))
}
