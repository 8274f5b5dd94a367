// Package server exposes the call bridge over HTTP.
//
// Routes:
//   - /twilio: Twilio Media Streams WebSocket, one call per socket
//   - /client: observer WebSocket receiving call events
//   - /twiml: TwiML webhook connecting a call to /twilio
//   - /pre-call-prompt, /initial-call-message, /post-call-prompts,
//     /introspection-prompt: prompt configuration (GET/POST)
//   - /health: liveness and active call count
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/broadcast"
	"github.com/realtime-ai/callbridge/pkg/call"
	"github.com/realtime-ai/callbridge/pkg/prompts"
)

// ObserverMode selects how observer sockets are subscribed.
type ObserverMode string

const (
	// ObserverPerCall subscribes an observer to one call it picks during
	// the handshake.
	ObserverPerCall ObserverMode = "per-call"
	// ObserverGlobal subscribes every observer to every call.
	ObserverGlobal ObserverMode = "global"
)

const shutdownTimeout = 5 * time.Second

// Config holds configuration for Server.
type Config struct {
	// Address is the listen address (e.g., "127.0.0.1:5000")
	Address string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// StreamURL is the public WebSocket URL placed in TwiML. When empty it
	// is derived from the webhook request's Host.
	StreamURL string

	// CustomParameters to pass from TwiML to the stream
	CustomParameters map[string]string

	// ObserverMode defaults to ObserverPerCall.
	ObserverMode ObserverMode

	// ReadBufferSize for WebSocket (default: 1024)
	ReadBufferSize int

	// WriteBufferSize for WebSocket (default: 1024)
	WriteBufferSize int
}

// CallAcceptor starts a call on an accepted telephony socket.
// *call.Coordinator implements it.
type CallAcceptor interface {
	Accept(ctx context.Context, tel call.Telephony) error
	ActiveCalls() int
}

// Server is the HTTP front of the bridge.
type Server struct {
	config   Config
	calls    CallAcceptor
	registry *broadcast.Registry
	prompts  *prompts.Store

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a server. It does not listen until Start.
func New(config Config, calls CallAcceptor, registry *broadcast.Registry, store *prompts.Store) *Server {
	if config.ObserverMode == "" {
		config.ObserverMode = ObserverPerCall
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = 1024
	}

	return &Server{
		config:   config,
		calls:    calls,
		registry: registry,
		prompts:  store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler with permissive CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/twilio", s.handleTwilio)
	mux.HandleFunc("/client", s.handleClient)
	mux.HandleFunc("/twiml", s.handleTwiML)
	mux.HandleFunc("/health", s.handleHealth)
	s.registerPromptRoutes(mux)
	return withCORS(mux)
}

// Start binds the listen address and serves in the background. A bind
// failure is returned; later serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	if (s.config.CertFile == "") != (s.config.KeyFile == "") {
		return errors.New("TLS needs both a certificate and a key")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if s.config.CertFile != "" {
			err = s.server.ServeTLS(ln, s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("component", "server").Msg("serve failed")
		}
	}()

	log.Info().
		Str("component", "server").
		Str("addr", ln.Addr().String()).
		Bool("tls", s.config.CertFile != "").
		Str("observer_mode", string(s.config.ObserverMode)).
		Msg("listening")
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down. Calls in progress keep running; wait for
// them on the coordinator.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	log.Info().Str("component", "server").Msg("stopped")
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"calls":  s.calls.ActiveCalls(),
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
