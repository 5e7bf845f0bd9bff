package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

const (
	// DefaultValidity is the lifetime of a generated certificate.
	DefaultValidity = 365 * 24 * time.Hour

	// DefaultKeyBits is the RSA modulus size of a generated key.
	DefaultKeyBits = 2048
)

// DefaultSubject is used as both subject and issuer of generated certificates.
var DefaultSubject = pkix.Name{
	Country:      []string{"CA"},
	Province:     []string{"Ontario"},
	Locality:     []string{"Toronto"},
	Organization: []string{"Metrolinx Voice App"},
	CommonName:   "localhost",
}

// Options controls self-signed certificate generation.
type Options struct {
	Subject     pkix.Name
	DNSNames    []string
	IPAddresses []net.IP
	Validity    time.Duration
	KeyBits     int

	// Now returns the generation time, defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the options for a localhost development certificate.
func DefaultOptions() Options {
	return Options{
		Subject:     DefaultSubject,
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1)},
		Validity:    DefaultValidity,
		KeyBits:     DefaultKeyBits,
		Now:         time.Now,
	}
}

// Identity is a generated certificate with its private key, both in parsed
// and PEM form.
type Identity struct {
	Certificate *x509.Certificate
	Key         *rsa.PrivateKey
	CertPEM     []byte
	KeyPEM      []byte
}

// GenerateSelfSigned creates an RSA key and a certificate signed by that key
// whose subject and issuer are identical.
func GenerateSelfSigned(opts Options) (*Identity, error) {
	if opts.KeyBits == 0 {
		opts.KeyBits = DefaultKeyBits
	}
	if opts.Validity == 0 {
		opts.Validity = DefaultValidity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	// certificates carry second precision
	notBefore := opts.Now().UTC().Truncate(time.Second)

	template := &x509.Certificate{
		SerialNumber:       serialNumber,
		Subject:            opts.Subject,
		Issuer:             opts.Subject,
		NotBefore:          notBefore,
		NotAfter:           notBefore.Add(opts.Validity),
		KeyUsage:           x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:        []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:           opts.DNSNames,
		IPAddresses:        opts.IPAddresses,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyPEM, err := encodePrivateKey(key)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Certificate: cert,
		Key:         key,
		CertPEM:     encodeCertificate(der),
		KeyPEM:      keyPEM,
	}, nil
}
