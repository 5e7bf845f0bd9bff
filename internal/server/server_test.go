package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/devhttps/internal/pki"
)

type runningServer struct {
	addr   string
	cancel context.CancelFunc
	errCh  chan error
}

func (rs *runningServer) stop(t *testing.T) {
	t.Helper()
	rs.cancel()
	select {
	case err := <-rs.errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

// provisionedRoot writes the test tree plus a fresh certificate pair.
func provisionedRoot(t *testing.T) Config {
	t.Helper()

	root := t.TempDir()
	writeTree(t, root, testFiles)

	cfg := DefaultConfig()
	cfg.Root = root
	cfg.CertFile = filepath.Join(root, DefaultCertFile)
	cfg.KeyFile = filepath.Join(root, DefaultKeyFile)

	require.NoFileExists(t, cfg.CertFile)
	require.NoFileExists(t, cfg.KeyFile)

	err := pki.NewProvisioner(zerolog.Nop()).Ensure(context.Background(), cfg.CertFile, cfg.KeyFile)
	require.NoError(t, err)

	require.FileExists(t, cfg.CertFile)
	require.FileExists(t, cfg.KeyFile)

	return cfg
}

func startServer(t *testing.T, cfg Config) *runningServer {
	t.Helper()

	srv, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningServer{addr: ln.Addr().String(), cancel: cancel, errCh: make(chan error, 1)}

	go func() {
		rs.errCh <- srv.ServeListener(ctx, ln)
	}()

	return rs
}

func trustingClient(t *testing.T, certFile string) *http.Client {
	t.Helper()

	certPEM, err := os.ReadFile(certFile)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(certPEM))

	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}
}

func TestServe_endToEnd(t *testing.T) {
	cfg := provisionedRoot(t)
	rs := startServer(t, cfg)
	defer rs.stop(t)

	client := trustingClient(t, cfg.CertFile)

	resp, err := client.Get("https://" + rs.addr + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, resp.TLS)
	require.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	requireSecurityHeaders(t, resp.Header)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, testFiles["index.html"], string(body))
}

func TestServe_headersOnNotFound(t *testing.T) {
	cfg := provisionedRoot(t)
	rs := startServer(t, cfg)
	defer rs.stop(t)

	resp, err := trustingClient(t, cfg.CertFile).Get("https://" + rs.addr + "/nope.js")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	requireSecurityHeaders(t, resp.Header)
}

func TestServe_existingPairUntouched(t *testing.T) {
	cfg := provisionedRoot(t)

	certBefore, err := os.ReadFile(cfg.CertFile)
	require.NoError(t, err)
	keyBefore, err := os.ReadFile(cfg.KeyFile)
	require.NoError(t, err)

	require.NoError(t, pki.NewProvisioner(zerolog.Nop()).Ensure(context.Background(), cfg.CertFile, cfg.KeyFile))

	rs := startServer(t, cfg)

	resp, err := trustingClient(t, cfg.CertFile).Get("https://" + rs.addr + "/app.js")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))

	rs.stop(t)

	certAfter, err := os.ReadFile(cfg.CertFile)
	require.NoError(t, err)
	keyAfter, err := os.ReadFile(cfg.KeyFile)
	require.NoError(t, err)

	require.Equal(t, certBefore, certAfter)
	require.Equal(t, keyBefore, keyAfter)
}

func TestServe_plainHTTPRejected(t *testing.T) {
	cfg := provisionedRoot(t)
	rs := startServer(t, cfg)
	defer rs.stop(t)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + rs.addr + "/index.html")
	if err != nil {
		return
	}
	defer resp.Body.Close()

	// net/http answers a plaintext request on a TLS socket with a bare 400
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}

func TestServe_untrustedClientFailsHandshake(t *testing.T) {
	cfg := provisionedRoot(t)
	rs := startServer(t, cfg)
	defer rs.stop(t)

	client := &http.Client{Timeout: 5 * time.Second}
	_, err := client.Get("https://" + rs.addr + "/index.html")
	require.Error(t, err)
}

func TestServe_loadFailureBeforeBind(t *testing.T) {
	root := t.TempDir()

	// occupy a port: a bind attempt would fail with a different error
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := DefaultConfig()
	cfg.Root = root
	cfg.Addr = occupied.Addr().String()
	cfg.CertFile = filepath.Join(root, "missing.crt")
	cfg.KeyFile = filepath.Join(root, "missing.key")

	listening := false
	cfg.OnListening = func(net.Addr) { listening = true }

	srv, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)

	err = srv.Serve(context.Background())
	require.ErrorIs(t, err, ErrLoadIdentity)
	require.False(t, listening)
}

func TestServe_bindFailure(t *testing.T) {
	cfg := provisionedRoot(t)

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg.Addr = occupied.Addr().String()

	srv, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)

	err = srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestServe_mismatchedPair(t *testing.T) {
	cfg := provisionedRoot(t)

	other := t.TempDir()
	otherCert, otherKey := filepath.Join(other, "server.crt"), filepath.Join(other, "server.key")
	require.NoError(t, pki.NewProvisioner(zerolog.Nop()).Ensure(context.Background(), otherCert, otherKey))
	cfg.KeyFile = otherKey

	srv, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = srv.ServeListener(context.Background(), ln)
	require.ErrorIs(t, err, ErrLoadIdentity)

	// the listener was released
	_, err = ln.Accept()
	require.Error(t, err)
}

func TestServe_stopsOnCancel(t *testing.T) {
	cfg := provisionedRoot(t)
	cfg.Addr = "127.0.0.1:0"

	addrCh := make(chan net.Addr, 1)
	cfg.OnListening = func(addr net.Addr) { addrCh <- addr }

	srv, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx)
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start listening")
	}

	resp, err := trustingClient(t, cfg.CertFile).Get("https://" + addr.String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}

	// the port is closed once Serve returns
	_, err = net.DialTimeout("tcp", addr.String(), time.Second)
	require.Error(t, err)
}

func TestServe_maxConns(t *testing.T) {
	cfg := provisionedRoot(t)
	cfg.MaxConns = 1
	rs := startServer(t, cfg)
	defer rs.stop(t)

	client := trustingClient(t, cfg.CertFile)
	for _, target := range []string{"/index.html", "/app.js", "/style.css"} {
		resp, err := client.Get("https://" + rs.addr + target)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
