package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/broadcast"
)

// handshakeTimeout bounds how long a per-call observer may take to pick a
// call.
const handshakeTimeout = 30 * time.Second

type observerKeys struct {
	Keys []string `json:"keys"`
}

// handleClient attaches an observer socket to the registry.
//
// In per-call mode the server first sends {"keys":[...]} listing the active
// stream ids; the observer's first text frame names the call to follow. An
// unknown id drops the observer. In global mode the observer is subscribed
// to every call at once.
func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "server").Msg("observer upgrade failed")
		return
	}

	sub := broadcast.NewWebSocketSubscriber(wsConn)
	logger := log.With().Str("component", "observer").Str("observer", sub.ID()).Logger()

	scope := broadcast.GlobalScope
	if s.config.ObserverMode != ObserverGlobal {
		if err := sub.WriteJSON(observerKeys{Keys: s.registry.Keys()}); err != nil {
			logger.Debug().Err(err).Msg("send keys failed")
			_ = sub.Close()
			return
		}

		_ = wsConn.SetReadDeadline(time.Now().Add(handshakeTimeout))
		mt, data, err := wsConn.ReadMessage()
		if err != nil || mt != websocket.TextMessage {
			logger.Debug().Err(err).Msg("observer left before choosing a call")
			_ = sub.Close()
			return
		}
		_ = wsConn.SetReadDeadline(time.Time{})
		scope = strings.TrimSpace(string(data))
		if scope == broadcast.GlobalScope {
			_ = sub.Close()
			return
		}
	}

	if !s.registry.Subscribe(sub, scope) {
		return
	}
	logger.Info().Str("stream_sid", scope).Msg("observer subscribed")

	// Observers never talk after the handshake; reading keeps control frames
	// flowing and notices the peer leaving. The registry prunes the
	// subscriber on its next failed send.
	go func() {
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				_ = sub.Close()
				return
			}
		}
	}()
}
