// Package certgen generates self-signed X.509 certificates and RSA
// private keys for the console's TLS endpoint.
//
// When server.ssl_enabled is turned on with empty ssl_cert/ssl_key paths,
// gx-admin generates a certificate here for the configured domain and
// points the configuration at the result.
//
// Typical usage:
//
//	err := certgen.GenerateCert("cert.pem", "key.pem", "tunnel.example.com")
//	if err != nil {
//	    log.Fatalf("Failed to generate cert: %v", err)
//	}
package certgen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// GenerateCert generates a self-signed X.509 certificate and a 2048-bit
// RSA private key valid for one year.
//
// The certificate and key are written to certFile and keyFile in PEM
// format. If both files already exist they are left untouched. domain is
// added to the certificate's DNS names alongside localhost; pass an empty
// string for a localhost-only certificate.
func GenerateCert(certFile, keyFile, domain string) error {
	// Return early if both cert and key files exist
	if fileExists(certFile) && fileExists(keyFile) {
		return nil
	}

	// Generate private key
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	// Generate serial number
	serialNumber, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	dnsNames := []string{"localhost"}
	if domain != "" {
		dnsNames = append(dnsNames, domain)
	}

	// Certificate template
	tmpl := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"gx-admin"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
	}

	// Create certificate
	derBytes, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	// Write certificate to file
	if err := writePemToFile(certFile, "CERTIFICATE", derBytes); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	// Write private key to file
	keyBytes := x509.MarshalPKCS1PrivateKey(priv)
	if err := writePemToFile(keyFile, "RSA PRIVATE KEY", keyBytes); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}

// fileExists reports whether the named file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// writePemToFile writes the given bytes as a PEM-encoded block of the specified type to the given filename.
// It creates or truncates the file as needed.
func writePemToFile(filename, pemType string, bytes []byte) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: pemType, Bytes: bytes})
}
