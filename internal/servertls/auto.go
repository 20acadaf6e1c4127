package servertls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	autoCertName  = "server.crt"
	autoKeyName   = "server.key"
	autoCertValid = 365 * 24 * time.Hour
	// autoRenewBefore regenerates a certificate that is close to expiry.
	autoRenewBefore = 7 * 24 * time.Hour
)

var defaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// autoSource serves a generated self-signed certificate. It is meant for
// local development.
type autoSource struct {
	certPath string
	cert     tls.Certificate
}

func newAutoSource(cfg Config, logger *slog.Logger) (*autoSource, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = defaultHosts
	}
	dir := cfg.AutoDir
	if dir == "" {
		dir = ".tls"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	certPath := filepath.Join(dir, autoCertName)
	keyPath := filepath.Join(dir, autoKeyName)

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil && reusable(cert, hosts, time.Now()) {
		logger.Info("using existing self-signed certificate", slog.String("cert_path", certPath))
		return &autoSource{certPath: certPath, cert: cert}, nil
	}

	logger.Info("generating self-signed certificate",
		slog.String("cert_path", certPath),
		slog.Any("hosts", hosts))
	if err := writeSelfSigned(certPath, keyPath, hosts, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	cert, err = tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load self-signed certificate: %w", err)
	}
	logger.Warn("self-signed certificate in use - not suitable for production", slog.String("cert_path", certPath))
	return &autoSource{certPath: certPath, cert: cert}, nil
}

func (s *autoSource) TLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion:   MinVersion,
		Certificates: []tls.Certificate{s.cert},
	}, nil
}

func (s *autoSource) Description() string {
	return fmt.Sprintf("self-signed (cert=%s) - DEV ONLY", s.certPath)
}

func (s *autoSource) Shutdown() error { return nil }

// reusable reports whether a stored certificate still covers exactly the
// requested hosts and is not about to expire.
func reusable(cert tls.Certificate, hosts []string, now time.Time) bool {
	if len(cert.Certificate) == 0 {
		return false
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return false
	}
	if now.Before(leaf.NotBefore) || now.Add(autoRenewBefore).After(leaf.NotAfter) {
		return false
	}

	dns, ips := splitHosts(hosts)
	got := make([]string, 0, len(leaf.IPAddresses))
	for _, ip := range leaf.IPAddresses {
		got = append(got, ip.String())
	}
	return sameSet(dns, leaf.DNSNames) && sameSet(ips, got)
}

func splitHosts(hosts []string) (dns []string, ips []string) {
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			ips = append(ips, ip.String())
		} else {
			dns = append(dns, host)
		}
	}
	return dns, ips
}

func sameSet(a, b []string) bool {
	a = slices.Compact(slices.Sorted(slices.Values(a)))
	b = slices.Compact(slices.Sorted(slices.Values(b)))
	return slices.Equal(a, b)
}

func writeSelfSigned(certPath, keyPath string, hosts []string, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Dojo GraphQL (Self-Signed)"},
			CommonName:   hosts[0],
		},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(autoCertValid),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}
