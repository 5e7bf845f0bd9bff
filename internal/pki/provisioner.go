package pki

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrProvisionFailed is returned when no generator produced a usable pair.
var ErrProvisionFailed = errors.New("certificate provisioning failed")

// Provisioner makes sure a certificate and key pair exists on disk.
type Provisioner struct {
	primary  Generator
	fallback Generator
	log      zerolog.Logger
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithPrimary replaces the in-process generator.
func WithPrimary(g Generator) ProvisionerOption {
	return func(p *Provisioner) {
		p.primary = g
	}
}

// WithFallback replaces the openssl generator, nil disables the fallback.
func WithFallback(g Generator) ProvisionerOption {
	return func(p *Provisioner) {
		p.fallback = g
	}
}

// NewProvisioner creates a provisioner which generates in-process and falls
// back to openssl.
func NewProvisioner(log zerolog.Logger, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		primary:  NewInProcessGenerator(),
		fallback: NewOpenSSLGenerator(),
		log:      log,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Ensure generates a new pair unless both files already exist. Existing files
// are used as-is without any expiry check.
func (p *Provisioner) Ensure(ctx context.Context, certPath, keyPath string) error {
	if fileExists(certPath) && fileExists(keyPath) {
		p.log.Info().
			Str("path_cert", certPath).
			Str("path_key", keyPath).
			Msg("Using existing certificate files")
		return nil
	}

	return p.Regenerate(ctx, certPath, keyPath)
}

// Regenerate writes a fresh pair, replacing any existing files. Each generator
// is attempted once.
func (p *Provisioner) Regenerate(ctx context.Context, certPath, keyPath string) error {
	log := p.log.With().Str("path_cert", certPath).Str("path_key", keyPath).Logger()

	log.Info().Msg("Generating self-signed certificate...")

	err := p.primary.Generate(ctx, certPath, keyPath)
	if err != nil {
		if p.fallback == nil {
			return fmt.Errorf("%w: %w", ErrProvisionFailed, err)
		}

		log.Warn().Err(err).Msg("In-process generation failed, falling back to openssl")

		if fallbackErr := p.fallback.Generate(ctx, certPath, keyPath); fallbackErr != nil {
			return fmt.Errorf("%w: %w", ErrProvisionFailed, errors.Join(err, fallbackErr))
		}
	}

	// whichever generator ran, the result must load as a matching pair
	cert, err := LoadKeyPair(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("%w: generated files are unusable: %w", ErrProvisionFailed, err)
	}

	log.Info().
		Str("serial_number", cert.Leaf.SerialNumber.Text(16)).
		Time("not_after", cert.Leaf.NotAfter).
		Msg("Created self-signed certificate")

	return nil
}
