package commands

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wolfeidau/devhttps/internal/logger"
	"github.com/wolfeidau/devhttps/internal/pki"
	"github.com/wolfeidau/devhttps/internal/server"
)

// stdout receives the human readable banner.
var stdout io.Writer = os.Stdout

type ServeCmd struct {
	// Server configuration
	Port int    `help:"TCP port to listen on, all interfaces" default:"8443"`
	Root string `help:"directory to serve" default:"." type:"existingdir"`
	Cert string `help:"path to TLS cert file, relative to --root" default:"server.crt"`
	Key  string `help:"path to TLS key file, relative to --root" default:"server.key"`

	// Response handling
	Compress    bool     `help:"gzip compressible responses" default:"false"`
	CORSOrigins []string `name:"cors-origin" help:"allowed CORS origins, CORS is disabled when empty"`
	MaxConns    int      `help:"maximum concurrent connections, 0 is unlimited" default:"0"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	cfg, err := c.config()
	if err != nil {
		return err
	}

	// Provision the certificate once, before anything listens
	if err := pki.NewProvisioner(log).Ensure(ctx, cfg.CertFile, cfg.KeyFile); err != nil {
		return fmt.Errorf("failed to provision certificate: %w", err)
	}

	cfg.OnListening = func(addr net.Addr) {
		printBanner(stdout, cfg.Root, addr)
	}

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Serve(ctx); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(stdout, "\nServer stopped")

	return nil
}

func (c *ServeCmd) config() (server.Config, error) {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return server.Config{}, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	return server.Config{
		Addr:        net.JoinHostPort("", strconv.Itoa(c.Port)),
		Root:        root,
		CertFile:    resolvePath(root, c.Cert),
		KeyFile:     resolvePath(root, c.Key),
		Compress:    c.Compress,
		CORSOrigins: c.CORSOrigins,
		MaxConns:    c.MaxConns,
	}, nil
}

func printBanner(w io.Writer, root string, addr net.Addr) {
	port := strconv.Itoa(server.DefaultPort)
	if _, p, err := net.SplitHostPort(addr.String()); err == nil {
		port = p
	}

	_, _ = fmt.Fprintf(w, `Local HTTPS development server
Serving HTTPS on port %s
Root: %s
Open: https://localhost:%s

You may see a security warning about the self-signed certificate.
Click 'Advanced' and 'Proceed to localhost' to continue.

Press Ctrl+C to stop the server
`, port, root, port)
}
