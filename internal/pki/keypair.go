package pki

import (
	"crypto"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypePrivateKey  = "PRIVATE KEY"
)

// LoadKeyPair loads a PEM-encoded certificate and private key from disk and
// checks that they belong together.
func LoadKeyPair(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := loadCertificate(certPath)
	if err != nil {
		return tls.Certificate{}, err
	}

	key, err := loadPrivateKey(keyPath)
	if err != nil {
		return tls.Certificate{}, err
	}

	// Verify key and cert match
	if err := verifyCertKeyPair(cert, key); err != nil {
		return tls.Certificate{}, fmt.Errorf("certificate and key do not match: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	certData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cert file: %w", err)
	}

	certBlock, _ := pem.Decode(certData)
	if certBlock == nil || certBlock.Type != pemTypeCertificate {
		return nil, fmt.Errorf("failed to decode cert PEM in %s", path)
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return cert, nil
}

// loadPrivateKey accepts PKCS#8 keys as written by the in-process generator
// and falls back to PKCS#1 for keys produced by older openssl releases.
func loadPrivateKey(path string) (crypto.Signer, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode key PEM in %s", path)
	}

	if keyBlock.Type == "RSA PRIVATE KEY" {
		key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 private key: %w", err)
		}
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
	}

	key, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}

	return key, nil
}

func saveCertificate(path string, certPEM []byte) error {
	return os.WriteFile(path, certPEM, 0644) // #nosec G306 - public certificate
}

func savePrivateKey(path string, keyPEM []byte) error {
	return os.WriteFile(path, keyPEM, 0600)
}

func encodeCertificate(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeCertificate,
		Bytes: der,
	})
}

func encodePrivateKey(key *rsa.PrivateKey) ([]byte, error) {
	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypePrivateKey,
		Bytes: keyBytes,
	}), nil
}

// verifyCertKeyPair checks that a certificate's public key matches a private key
func verifyCertKeyPair(cert *x509.Certificate, key crypto.Signer) error {
	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return fmt.Errorf("private key type %T cannot be compared", key)
	}

	if !pub.Equal(cert.PublicKey) {
		return fmt.Errorf("public keys do not match")
	}

	return nil
}
