package pki

import (
	"bytes"
	"crypto/x509"
	"time"
)

// Info describes a certificate on disk.
type Info struct {
	Path               string    `yaml:"path"`
	Subject            string    `yaml:"subject"`
	Issuer             string    `yaml:"issuer"`
	SerialNumber       string    `yaml:"serial_number"`
	SignatureAlgorithm string    `yaml:"signature_algorithm"`
	NotBefore          time.Time `yaml:"not_before"`
	NotAfter           time.Time `yaml:"not_after"`
	DNSNames           []string  `yaml:"dns_names,omitempty"`
	IPAddresses        []string  `yaml:"ip_addresses,omitempty"`
	SelfSigned         bool      `yaml:"self_signed"`
	Expired            bool      `yaml:"expired"`
	DaysRemaining      int       `yaml:"days_remaining"`
}

// Inspect loads the certificate at path and reports its details relative to now.
func Inspect(path string, now time.Time) (*Info, error) {
	cert, err := loadCertificate(path)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Path:               path,
		Subject:            cert.Subject.String(),
		Issuer:             cert.Issuer.String(),
		SerialNumber:       cert.SerialNumber.Text(16),
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		DNSNames:           cert.DNSNames,
		SelfSigned:         isSelfSigned(cert),
		Expired:            now.After(cert.NotAfter),
		DaysRemaining:      int(cert.NotAfter.Sub(now).Hours() / 24),
	}

	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}

	return info, nil
}

// isSelfSigned checks the signature directly, CheckSignatureFrom would reject
// a leaf without the CA basic constraint.
func isSelfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawSubject, cert.RawIssuer) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}
