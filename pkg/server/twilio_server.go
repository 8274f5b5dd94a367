package server

import (
	"net/http"
	"text/template"

	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/connection"
)

var twimlTemplate = template.Must(template.New("twiml").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="{{html .StreamURL}}">
            {{range $key, $value := .Parameters}}
            <Parameter name="{{html $key}}" value="{{html $value}}" />
            {{end}}
        </Stream>
    </Connect>
</Response>`))

// handleTwilio upgrades a Twilio Media Streams socket and hands it to the
// coordinator. The call runs on after this handler returns.
func (s *Server) handleTwilio(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("component", "server").Str("remote", r.RemoteAddr).Logger()

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("telephony upgrade failed")
		return
	}

	tel := connection.NewTwilioConnection(wsConn)
	if err := s.calls.Accept(r.Context(), tel); err != nil {
		logger.Error().Err(err).Msg("call rejected")
		return
	}
	logger.Info().Msg("telephony socket accepted")
}

// handleTwiML answers the voice webhook with a <Connect><Stream> pointing
// back at /twilio.
func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		log.Info().
			Str("component", "server").
			Str("call_sid", r.FormValue("CallSid")).
			Str("from", r.FormValue("From")).
			Str("to", r.FormValue("To")).
			Msg("incoming call")
	}

	data := struct {
		StreamURL  string
		Parameters map[string]string
	}{
		StreamURL:  s.streamURL(r),
		Parameters: s.config.CustomParameters,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := twimlTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Str("component", "server").Msg("render twiml")
	}
}

func (s *Server) streamURL(r *http.Request) string {
	if s.config.StreamURL != "" {
		return s.config.StreamURL
	}
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/twilio"
}
