package server

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultPort     = 8443
	DefaultCertFile = "server.crt"
	DefaultKeyFile  = "server.key"
)

// Config is everything the server needs, fixed for the lifetime of the process.
type Config struct {
	// Addr is the TCP listen address, ":8443" listens on all interfaces.
	Addr     string
	Root     string
	CertFile string
	KeyFile  string

	// Compress gzips compressible responses.
	Compress bool

	// CORSOrigins enables CORS for GET and HEAD when not empty.
	CORSOrigins []string

	// MaxConns caps concurrently accepted connections, 0 is unlimited.
	MaxConns int

	// OnListening is called with the bound address once the listener is ready.
	OnListening func(addr net.Addr)
}

// DefaultConfig serves the current directory on port 8443 using server.crt
// and server.key.
func DefaultConfig() Config {
	return Config{
		Addr:     net.JoinHostPort("", strconv.Itoa(DefaultPort)),
		Root:     ".",
		CertFile: DefaultCertFile,
		KeyFile:  DefaultKeyFile,
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	if c.Root == "" {
		return errors.New("root directory is required")
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("TLS certificate and key are required")
	}
	if c.MaxConns < 0 {
		return errors.New("max connections must not be negative")
	}
	return nil
}

// configureHTTPServer applies a header read timeout only, large assets and slow
// clients may hold a connection for as long as they need.
func configureHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
