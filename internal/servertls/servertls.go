// Package servertls supplies certificates for the HTTPS listener, either from
// files on disk or from a generated development certificate.
package servertls

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// Mode selects where the server certificate comes from.
type Mode string

const (
	ModeFile Mode = "file"
	ModeAuto Mode = "auto"
)

// ParseMode maps a configured tls_mode onto a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeFile, ModeAuto:
		return Mode(value), nil
	default:
		return "", fmt.Errorf("unsupported TLS mode %q (valid modes: file, auto)", value)
	}
}

// Config holds certificate settings.
type Config struct {
	Mode Mode

	CertFile string
	KeyFile  string

	// AutoDir holds the generated certificate and key in auto mode.
	AutoDir string
	// Hosts are the DNS names and IPs the generated certificate covers.
	Hosts []string
}

// Manager provides the TLS configuration for http.Server.
type Manager interface {
	TLSConfig() (*tls.Config, error)
	Description() string
	Shutdown() error
}

// MinVersion is the lowest TLS version the server accepts.
const MinVersion = tls.VersionTLS13

// NewManager creates the manager for the configured mode.
func NewManager(cfg Config, logger *slog.Logger) (Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case ModeFile:
		return newFileSource(cfg, logger)
	case ModeAuto:
		return newAutoSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported TLS mode %q (valid modes: file, auto)", cfg.Mode)
	}
}
