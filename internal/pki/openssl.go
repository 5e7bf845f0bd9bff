package pki

import (
	"context"
	"crypto/x509/pkix"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// OpenSSLGenerator generates the pair by running the openssl command line tool.
// It is the fallback when in-process generation fails.
type OpenSSLGenerator struct {
	// Binary is the openssl executable, resolved via PATH when not absolute.
	Binary  string
	Options Options
}

// NewOpenSSLGenerator returns a generator equivalent to InProcessGenerator's
// defaults.
func NewOpenSSLGenerator() *OpenSSLGenerator {
	return &OpenSSLGenerator{Binary: "openssl", Options: DefaultOptions()}
}

// Generate implements Generator.
func (g *OpenSSLGenerator) Generate(ctx context.Context, certPath, keyPath string) error {
	binary, err := exec.LookPath(g.Binary)
	if err != nil {
		return fmt.Errorf("openssl not available: %w", err)
	}

	// #nosec G204 - arguments are built from generator options, not request input
	cmd := exec.CommandContext(ctx, binary, g.args(certPath, keyPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("openssl req failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}

func (g *OpenSSLGenerator) args(certPath, keyPath string) []string {
	keyBits := g.Options.KeyBits
	if keyBits == 0 {
		keyBits = DefaultKeyBits
	}
	validity := g.Options.Validity
	if validity == 0 {
		validity = DefaultValidity
	}

	args := []string{
		"req", "-x509",
		"-newkey", fmt.Sprintf("rsa:%d", keyBits),
		"-sha256",
		"-keyout", keyPath,
		"-out", certPath,
		"-days", fmt.Sprintf("%d", int(validity/(24*time.Hour))),
		"-nodes",
		"-subj", opensslSubject(g.Options.Subject),
	}

	var alt []string
	for _, name := range g.Options.DNSNames {
		alt = append(alt, "DNS:"+name)
	}
	for _, ip := range g.Options.IPAddresses {
		alt = append(alt, "IP:"+ip.String())
	}
	if len(alt) > 0 {
		args = append(args, "-addext", "subjectAltName="+strings.Join(alt, ","))
	}

	return args
}

// opensslSubject formats a name the way `openssl req -subj` expects it,
// e.g. /C=CA/ST=Ontario/L=Toronto/O=Metrolinx Voice App/CN=localhost.
func opensslSubject(name pkix.Name) string {
	var b strings.Builder

	write := func(key string, values ...string) {
		for _, v := range values {
			b.WriteString("/" + key + "=" + strings.ReplaceAll(v, "/", `\/`))
		}
	}

	write("C", name.Country...)
	write("ST", name.Province...)
	write("L", name.Locality...)
	write("O", name.Organization...)
	write("OU", name.OrganizationalUnit...)
	if name.CommonName != "" {
		write("CN", name.CommonName)
	}

	return b.String()
}
