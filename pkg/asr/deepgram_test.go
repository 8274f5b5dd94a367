package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeepgram runs handler against every accepted socket and returns a
// provider pointed at it.
func fakeDeepgram(t *testing.T, handler func(conn *websocket.Conn, r *http.Request), opts ...func(*DeepgramConfig)) *DeepgramProvider {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)

	cfg := DeepgramConfig{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/listen",
		APIKey: "dg-key",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := NewDeepgramProvider(cfg)
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, r StreamingRecognizer) []TranscriptEvent {
	t.Helper()

	var out []TranscriptEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("events channel never closed")
			return out
		}
	}
}

func TestNewDeepgramProvider_NoAPIKey(t *testing.T) {
	_, err := NewDeepgramProvider(DeepgramConfig{})
	require.Error(t, err)

	var asrErr *Error
	require.ErrorAs(t, err, &asrErr)
	assert.Equal(t, ErrCodeInvalidConfig, asrErr.Code)
}

func TestDeepgramProvider_Defaults(t *testing.T) {
	p, err := NewDeepgramProvider(DeepgramConfig{APIKey: "k"})
	require.NoError(t, err)

	assert.Equal(t, "deepgram", p.Name())
	assert.Equal(t, DefaultDeepgramURL, p.url)
	assert.Equal(t, "Token k", p.header.Get("Authorization"))
	assert.Equal(t, DefaultDeepgramKeepAlive, p.timing.keepAlive)
	assert.Less(t, p.timing.keepAlive, 10*time.Second)
	assert.Equal(t, DefaultDeepgramFinishGrace, p.timing.finishGrace)
	assert.Equal(t, deepgramWriteTimeout, p.timing.writeTimeout)

	p, err = NewDeepgramProvider(DeepgramConfig{APIKey: "k", AuthScheme: "Bearer"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer k", p.header.Get("Authorization"))
}

func TestDeepgramRecognizer_StreamsTranscripts(t *testing.T) {
	gotAuth := make(chan string, 1)
	p := fakeDeepgram(t, func(conn *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")

		msgs := []string{
			`{"type":"Metadata","request_id":"x"}`,
			`{"type":"Results","is_final":false,"speech_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]}}`,
			`{"type":"Results","is_final":true,"speech_final":true,"start":1.5,"duration":0.5,"channel":{"alternatives":[{"transcript":"hello","confidence":0.9}]}}`,
			`garbage`,
			`{"type":"UtteranceEnd","last_word_end":2.0}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	r, err := p.Connect(context.Background())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "Token dg-key", <-gotAuth)

	events := collect(t, r)
	require.Len(t, events, 3)

	assert.Equal(t, KindPartial, events[0].Kind)
	assert.Equal(t, "hel", events[0].Text)
	assert.False(t, events[0].IsBoundary())

	assert.Equal(t, KindFinal, events[1].Kind)
	assert.Equal(t, "hello", events[1].Text)
	assert.True(t, events[1].SpeechFinal)
	assert.Equal(t, 1500*time.Millisecond, events[1].Start)
	assert.True(t, events[1].IsBoundary())

	assert.Equal(t, KindUtteranceEnd, events[2].Kind)
	assert.True(t, events[2].IsBoundary())
}

func TestDeepgramRecognizer_FinishSendsCloseStreamAfterAudio(t *testing.T) {
	received := make(chan []string, 1)
	p := fakeDeepgram(t, func(conn *websocket.Conn, _ *http.Request) {
		var seen []string
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				received <- seen
				return
			}
			if mt == websocket.BinaryMessage {
				seen = append(seen, "audio:"+string(data))
				continue
			}
			var ctl deepgramControl
			if json.Unmarshal(data, &ctl) == nil {
				seen = append(seen, ctl.Type)
			}
			if ctl.Type == "CloseStream" {
				received <- seen
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	})

	ctx := context.Background()
	r, err := p.Connect(ctx)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.SendAudio(ctx, []byte("a")))
	require.NoError(t, r.SendAudio(ctx, []byte("b")))
	require.NoError(t, r.Finish(ctx))
	require.NoError(t, r.Finish(ctx))

	select {
	case seen := <-received:
		assert.Equal(t, []string{"audio:a", "audio:b", "CloseStream"}, seen)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw CloseStream")
	}

	collect(t, r)

	err = r.SendAudio(ctx, []byte("c"))
	var asrErr *Error
	require.ErrorAs(t, err, &asrErr)
	assert.Equal(t, ErrCodeClosed, asrErr.Code)
}

func TestDeepgramRecognizer_KeepAliveAfterIdle(t *testing.T) {
	const interval = 150 * time.Millisecond

	type arrival struct {
		kind string
		at   time.Time
	}
	arrivals := make(chan arrival, 16)
	p := fakeDeepgram(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			kind := "audio"
			var ctl deepgramControl
			if mt == websocket.TextMessage && json.Unmarshal(data, &ctl) == nil {
				kind = ctl.Type
			}
			arrivals <- arrival{kind: kind, at: time.Now()}
		}
	}, func(c *DeepgramConfig) { c.KeepAlive = interval })

	ctx := context.Background()
	r, err := p.Connect(ctx)
	require.NoError(t, err)
	defer r.Close()

	// Audio just before the first interval would have elapsed pushes the
	// KeepAlive out by a full interval from the last frame.
	time.Sleep(interval * 2 / 3)
	require.NoError(t, r.SendAudio(ctx, []byte{0xFF}))

	var first arrival
	select {
	case first = <-arrivals:
	case <-time.After(2 * time.Second):
		t.Fatal("audio never arrived")
	}
	require.Equal(t, "audio", first.kind)

	select {
	case ka := <-arrivals:
		assert.Equal(t, "KeepAlive", ka.kind)
		idle := ka.at.Sub(first.at)
		assert.GreaterOrEqual(t, idle, interval-20*time.Millisecond)
		assert.Less(t, idle, 2*interval)
	case <-time.After(2 * time.Second):
		t.Fatal("no KeepAlive after the stream went idle")
	}
}

func TestDeepgramRecognizer_ClosesWhenServerIgnoresCloseStream(t *testing.T) {
	gotClose := make(chan struct{})
	p := fakeDeepgram(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ctl deepgramControl
			if mt == websocket.TextMessage && json.Unmarshal(data, &ctl) == nil && ctl.Type == "CloseStream" {
				close(gotClose)
			}
		}
	}, func(c *DeepgramConfig) { c.FinishGrace = 100 * time.Millisecond })

	ctx := context.Background()
	r, err := p.Connect(ctx)
	require.NoError(t, err)
	defer r.Close()

	start := time.Now()
	require.NoError(t, r.Finish(ctx))

	select {
	case <-gotClose:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw CloseStream")
	}

	collect(t, r)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDeepgramRecognizer_StalledServerClosesStream(t *testing.T) {
	release := make(chan struct{})
	p := fakeDeepgram(t, func(conn *websocket.Conn, _ *http.Request) {
		// Never read, so the client's socket buffers fill up.
		<-release
	}, func(c *DeepgramConfig) { c.WriteTimeout = 50 * time.Millisecond })
	t.Cleanup(func() { close(release) })

	ctx := context.Background()
	r, err := p.Connect(ctx)
	require.NoError(t, err)
	defer r.Close()

	frame := make([]byte, 256*1024)
	deadline := time.After(10 * time.Second)
	for {
		if err := r.SendAudio(ctx, frame); err != nil {
			var asrErr *Error
			require.ErrorAs(t, err, &asrErr)
			assert.Equal(t, ErrCodeClosed, asrErr.Code)
			break
		}
		select {
		case <-deadline:
			t.Fatal("writes to a stalled server never timed out")
		default:
		}
	}

	collect(t, r)
}

func TestDeepgramProvider_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewDeepgramProvider(DeepgramConfig{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey: "bad",
	})
	require.NoError(t, err)

	_, err = p.Connect(context.Background())
	var asrErr *Error
	require.ErrorAs(t, err, &asrErr)
	assert.Equal(t, ErrCodeAuthenticationFailed, asrErr.Code)
}

func TestParseDeepgramMessage_EmptyAlternatives(t *testing.T) {
	_, ok := parseDeepgramMessage([]byte(`{"type":"Results","channel":{"alternatives":[]}}`))
	assert.False(t, ok)

	_, ok = parseDeepgramMessage([]byte(`{"type":"SpeechStarted"}`))
	assert.False(t, ok)
}
