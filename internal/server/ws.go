package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/duelforge/duel-server-go/internal/auth"
	"github.com/duelforge/duel-server-go/internal/config"
)

// Server accepts websocket connections, authenticates the handshake
// credential and hands verified clients to the hub.
type Server struct {
	cfg      config.ServerConfig
	hub      *Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates the transport server.
func NewServer(cfg config.ServerConfig, hub *Hub, verifier auth.Verifier, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    s.cfg.Address,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("websocket server listening", zap.String("address", s.cfg.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleWS authenticates the handshake credential and upgrades. A failed
// verification refuses the connection before any session-layer state is
// touched.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	credential := handshakeCredential(r)
	if credential == "" {
		http.Error(w, "credential required", http.StatusUnauthorized)
		return
	}

	identity, err := s.verifier.Verify(r.Context(), credential)
	if err != nil {
		s.logger.Warn("handshake verification failed", zap.Error(err))
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(s.hub, conn, identity, s.cfg.MaxMessageBytes, s.cfg.SendBuffer, s.logger)
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// handshakeCredential reads the credential from the query string or a
// bearer Authorization header.
func handshakeCredential(r *http.Request) string {
	if cred := r.URL.Query().Get("credential"); cred != "" {
		return cred
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
