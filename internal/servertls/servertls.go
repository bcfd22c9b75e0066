// Package servertls resolves the single TLS certificate nexusd presents on
// both the BBS port and the transfer port (§4.5 "Certificate pinning
// contract" — clients must see the same cert on 7500 and 7501). It loads a
// configured cert/key pair when present and otherwise falls back to a
// self-signed certificate, adapting the teacher's generateTLSConfig so a
// fresh checkout can still start without operator-provided material.
package servertls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Load returns a tls.Config presenting certFile/keyFile if both exist, or a
// freshly generated self-signed certificate (logged via the fingerprint
// return value so operators can pin it) when either is missing.
func Load(certFile, keyFile string) (*tls.Config, string, error) {
	if fileExists(certFile) && fileExists(keyFile) {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, "", fmt.Errorf("load tls key pair: %w", err)
		}
		fp := ""
		if len(cert.Certificate) > 0 {
			sum := sha256.Sum256(cert.Certificate[0])
			fp = hex.EncodeToString(sum[:])
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, fp, nil
	}
	return generateSelfSigned(365 * 24 * time.Hour)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// generateSelfSigned creates an ECDSA self-signed certificate valid for
// validity, mirroring the teacher's own TLS bootstrap.
func generateSelfSigned(validity time.Duration) (*tls.Config, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("generate serial: %w", err)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "nexusd"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, "", fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("parse certificate: %w", err)
	}

	fp := sha256.Sum256(certDER)
	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}
	return &tls.Config{Certificates: []tls.Certificate{tlsCert}}, hex.EncodeToString(fp[:]), nil
}
