package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/config"
)

// Server wraps http.Server with production timeouts, optional TLS and
// graceful shutdown
type Server struct {
	httpServer *http.Server
	cfg        config.ServerConfig
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer builds a server from the configuration
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		MaxHeaderBytes:    1 << 20,
	}
	if cfg.TLSCertFile != "" {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"h2", "http/1.1"},
		}
	}

	return &Server{httpServer: httpServer, cfg: cfg, logger: logger}, nil
}

// Start listens and serves until Shutdown or a fatal error. It returns
// nil after a graceful shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	s.logger.Info("http server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", s.cfg.TLSCertFile != ""),
	)

	if s.cfg.TLSCertFile != "" {
		err = s.httpServer.ServeTLS(listener, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	} else {
		err = s.httpServer.Serve(listener)
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Addr returns the bound network address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}
