package connection

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair returns a server-side TwilioConnection and the client socket talking to it.
func pair(t *testing.T) (*TwilioConnection, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	tc := NewTwilioConnection(<-accepted)
	t.Cleanup(func() { tc.Close() })
	return tc, client
}

func TestTwilioConnection_ReadEvent(t *testing.T) {
	tc, client := pair(t)

	require.NoError(t, client.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"start","streamSid":"MZ1","start":{"streamSid":"CA123","callSid":"CA9","tracks":["inbound"]}}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"media","media":{"track":"inbound","timestamp":"40","payload":"`+base64.StdEncoding.EncodeToString([]byte{1, 2, 3})+`"}}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"stop"}`)))

	start, err := tc.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, EventStart, start.Event)
	assert.Equal(t, "CA123", start.StreamID())

	media, err := tc.ReadEvent()
	require.NoError(t, err)
	require.NotNil(t, media.Media)
	assert.True(t, media.Media.IsInbound())
	audio, err := media.Media.Audio()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, audio)
	ts, err := media.Media.TimestampMs()
	require.NoError(t, err)
	assert.Equal(t, int64(40), ts)

	_, err = tc.ReadEvent()
	assert.True(t, errors.Is(err, ErrMalformedEvent))

	stop, err := tc.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, EventStop, stop.Event)

	client.Close()
	_, err = tc.ReadEvent()
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedEvent))
}

func TestTwilioConnection_SendAudioAndClear(t *testing.T) {
	tc, client := pair(t)

	require.NoError(t, tc.SendAudio("CA123", []byte{0xFF, 0x7F}))
	require.NoError(t, tc.ClearAudio("CA123"))
	require.NoError(t, tc.SendMark("CA123", "greeting"))

	var media TwilioMediaMessage
	require.NoError(t, client.ReadJSON(&media))
	assert.Equal(t, EventMedia, media.Event)
	assert.Equal(t, "CA123", media.StreamSid)
	require.NotNil(t, media.Media)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xFF, 0x7F}), media.Media.Payload)

	var cleared TwilioMediaMessage
	require.NoError(t, client.ReadJSON(&cleared))
	assert.Equal(t, EventClear, cleared.Event)
	assert.Equal(t, "CA123", cleared.StreamSid)
	assert.Nil(t, cleared.Media)

	var mark TwilioMediaMessage
	require.NoError(t, client.ReadJSON(&mark))
	assert.Equal(t, EventMark, mark.Event)
	require.NotNil(t, mark.Mark)
	assert.Equal(t, "greeting", mark.Mark.Name)
}

func TestTwilioConnection_WriteAfterClose(t *testing.T) {
	tc, _ := pair(t)

	require.NoError(t, tc.Close())
	require.NoError(t, tc.Close())
	assert.ErrorIs(t, tc.SendAudio("CA123", []byte{1}), ErrClosed)
}

func TestTwilioMediaPayload_BadInput(t *testing.T) {
	p := &TwilioMediaPayload{Payload: "%%%", Timestamp: "abc", Track: "outbound"}

	_, err := p.Audio()
	assert.Error(t, err)
	_, err = p.TimestampMs()
	assert.Error(t, err)
	assert.False(t, p.IsInbound())
}
