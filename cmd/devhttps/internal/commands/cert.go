package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wolfeidau/devhttps/internal/logger"
	"github.com/wolfeidau/devhttps/internal/pki"
	"gopkg.in/yaml.v3"
)

// CertCmd groups certificate maintenance commands
type CertCmd struct {
	Ensure  CertEnsureCmd  `cmd:"" help:"Create the certificate and key unless both exist"`
	Inspect CertInspectCmd `cmd:"" help:"Print certificate details as YAML"`
}

type CertEnsureCmd struct {
	Dir   string `help:"directory holding the certificate files" default:"." type:"existingdir"`
	Cert  string `help:"path to TLS cert file, relative to --dir" default:"server.crt"`
	Key   string `help:"path to TLS key file, relative to --dir" default:"server.key"`
	Force bool   `help:"regenerate even when both files exist" default:"false"`
}

func (c *CertEnsureCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}

	certPath := resolvePath(dir, c.Cert)
	keyPath := resolvePath(dir, c.Key)

	provisioner := pki.NewProvisioner(log)

	if c.Force {
		log.Info().Msg("Force flag set, regenerating certificate...")
		return provisioner.Regenerate(ctx, certPath, keyPath)
	}

	return provisioner.Ensure(ctx, certPath, keyPath)
}

type CertInspectCmd struct {
	Cert string `arg:"" optional:"" help:"path to TLS cert file" default:"server.crt"`
}

func (c *CertInspectCmd) Run(globals *Globals) error {
	info, err := pki.Inspect(c.Cert, time.Now())
	if err != nil {
		return fmt.Errorf("failed to inspect certificate: %w", err)
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)

	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("failed to encode certificate details: %w", err)
	}

	return enc.Close()
}
