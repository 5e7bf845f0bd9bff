package commands

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/wolfeidau/devhttps/internal/logger"
)

// WaitCmd polls a server until it answers, for scripts that start devhttps
// in the background.
type WaitCmd struct {
	URL     string        `help:"URL to poll" default:"https://localhost:8443/"`
	Timeout time.Duration `help:"give up after this long" default:"30s"`
	CACert  string        `help:"PEM certificate to trust, the server certificate is not verified when empty" default:""`
}

func (w *WaitCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	client, err := w.client()
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	status, err := backoff.Retry(ctx, func() (int, error) {
		return probe(ctx, client, w.URL)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(w.Timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("next_retry", next).Msg("Server not ready, will retry")
		}),
	)
	if err != nil {
		return fmt.Errorf("server at %s not ready after %s: %w", w.URL, w.Timeout, err)
	}

	log.Info().Str("url", w.URL).Int("status", status).Msg("Server is ready")

	return nil
}

func (w *WaitCmd) client() (*http.Client, error) {
	// #nosec G402 - the target is a local self-signed development server
	tlsConfig := &tls.Config{InsecureSkipVerify: true}

	if w.CACert != "" {
		certPEM, err := os.ReadFile(w.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(certPEM) {
			return nil, fmt.Errorf("no certificates found in %s", w.CACert)
		}

		tlsConfig = &tls.Config{RootCAs: pool}
	}

	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

// probe treats any response below 500 as ready. Certificate verification
// failures are permanent, retrying cannot fix them.
func probe(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("invalid url: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		var verifyErr *tls.CertificateVerificationError
		if errors.As(err, &verifyErr) {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, fmt.Errorf("server responded %s", resp.Status)
	}

	return resp.StatusCode, nil
}
