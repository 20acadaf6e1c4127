package servertls

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileSource serves a certificate pair from disk and picks up rotated files
// when the certificate's modification time changes.
type fileSource struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func newFileSource(cfg Config, logger *slog.Logger) (*fileSource, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("tls_cert_file and tls_key_file are required when tls_mode=file")
	}
	if err := checkRegularFile(cfg.CertFile); err != nil {
		return nil, fmt.Errorf("invalid certificate file: %w", err)
	}
	if err := checkRegularFile(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("invalid key file: %w", err)
	}
	if err := checkKeyPermissions(cfg.KeyFile); err != nil {
		return nil, err
	}

	s := &fileSource{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSource) load() (*tls.Certificate, error) {
	info, err := os.Stat(s.certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat certificate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cert != nil && info.ModTime().Equal(s.modTime) {
		return s.cert, nil
	}

	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if s.cert != nil {
		s.logger.Info("reloaded TLS certificate", slog.String("cert_file", s.certFile))
	}
	s.cert = &cert
	s.modTime = info.ModTime()
	return s.cert, nil
}

func (s *fileSource) TLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion: MinVersion,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert, err := s.load()
			if err != nil {
				s.logger.Error("failed to reload certificate",
					slog.String("cert_file", s.certFile),
					slog.String("error", err.Error()))
			}
			return cert, err
		},
	}, nil
}

func (s *fileSource) Description() string {
	return fmt.Sprintf("file (cert=%s, key=%s)", s.certFile, s.keyFile)
}

func (s *fileSource) Shutdown() error { return nil }

func checkRegularFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return fmt.Errorf("file not accessible: %w", err)
	case info.IsDir():
		return fmt.Errorf("%s is a directory", path)
	case info.Size() == 0:
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}

// checkKeyPermissions rejects private keys readable by group or others.
func checkKeyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("insecure key file permissions %o on %s (want 0600 or 0400)", perm, path)
	}
	return nil
}
