package pki

import (
	"context"
	"fmt"
)

// Generator writes a new certificate and private key pair to disk.
// Implementations include InProcessGenerator (crypto/x509) and OpenSSLGenerator
// (external openssl binary).
type Generator interface {
	// Generate creates the pair and writes it to certPath and keyPath,
	// replacing any existing files.
	Generate(ctx context.Context, certPath, keyPath string) error
}

// InProcessGenerator generates the pair with the Go crypto libraries.
type InProcessGenerator struct {
	Options Options
}

// NewInProcessGenerator returns a generator for the default localhost identity.
func NewInProcessGenerator() *InProcessGenerator {
	return &InProcessGenerator{Options: DefaultOptions()}
}

// Generate implements Generator.
func (g *InProcessGenerator) Generate(ctx context.Context, certPath, keyPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	identity, err := GenerateSelfSigned(g.Options)
	if err != nil {
		return err
	}

	// Save certificate
	if err := saveCertificate(certPath, identity.CertPEM); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}

	// Save key
	if err := savePrivateKey(keyPath, identity.KeyPEM); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}

	return nil
}
