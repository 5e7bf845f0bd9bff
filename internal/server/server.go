package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/devhttps/internal/http"
	"github.com/wolfeidau/devhttps/internal/logger"
	"github.com/wolfeidau/devhttps/internal/pki"
	"golang.org/x/net/netutil"
)

const shutdownTimeout = 5 * time.Second

// ErrLoadIdentity is returned when the certificate and key cannot be loaded.
var ErrLoadIdentity = errors.New("failed to load TLS identity")

// Server serves a directory over HTTPS
type Server struct {
	cfg     Config
	log     zerolog.Logger
	handler http.Handler
}

// NewServer validates the configuration and builds the request handler.
func NewServer(cfg Config, log zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", cfg.Root)
	}

	s := &Server{cfg: cfg, log: log}
	s.handler = s.buildHandler()

	return s, nil
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	var h http.Handler = newFileHandler(s.cfg.Root)

	h = httpmiddleware.ContentTypeMiddleware()(h)

	if s.cfg.Compress {
		h = gzhttp.GzipHandler(h)
	}

	if len(s.cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler(h)
	}

	h = httpmiddleware.SecurityHeadersMiddleware()(h)
	h = logger.NewHTTPRequests(s.log).Middleware(h)

	return httpmiddleware.ClientIPMiddleware()(h)
}

// Serve loads the TLS identity, binds the configured address and serves until
// ctx is cancelled. The identity is loaded before the socket is opened so a
// bad pair never leaves a listener behind.
func (s *Server) Serve(ctx context.Context) error {
	cert, err := s.loadIdentity()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	return s.serve(ctx, ln, cert)
}

// ServeListener is Serve on an already bound listener, which it takes
// ownership of.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	cert, err := s.loadIdentity()
	if err != nil {
		_ = ln.Close()
		return err
	}

	return s.serve(ctx, ln, cert)
}

func (s *Server) loadIdentity() (tls.Certificate, error) {
	cert, err := pki.LoadKeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %w", ErrLoadIdentity, err)
	}
	return cert, nil
}

func (s *Server) serve(ctx context.Context, ln net.Listener, cert tls.Certificate) error {
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	// #nosec G402 - protocol versions are left to the crypto/tls server defaults
	tlsListener := tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
	})

	srv := configureHTTPServer(s.handler)
	srv.ErrorLog = log.New(s.log.With().Str("component", "net/http").Logger(), "", 0)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("root", s.cfg.Root).
		Bool("compress", s.cfg.Compress).
		Int("max_conns", s.cfg.MaxConns).
		Msg("Starting HTTPS server")

	if s.cfg.OnListening != nil {
		s.cfg.OnListening(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(tlsListener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("https server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("Stopping HTTPS server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("Graceful shutdown timed out, closing connections")
		_ = srv.Close()
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("https server failed: %w", err)
	}

	return nil
}
