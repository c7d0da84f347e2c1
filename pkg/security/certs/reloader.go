package certs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ExpiryWarning is how close to expiry a loaded certificate is logged as
// a warning.
const ExpiryWarning = 30 * 24 * time.Hour

// ErrNotLoaded is returned by GetCertificate before a successful Load.
var ErrNotLoaded = errors.New("certs: no certificate loaded")

// Reloader holds the current certificate and replaces it when the files
// change. A failed reload keeps the previous certificate.
type Reloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	cert    *tls.Certificate
	leaf    *x509.Certificate
	certMod time.Time
	keyMod  time.Time
}

// NewReloader creates a reloader for a PEM pair checked every interval.
func NewReloader(certFile, keyFile string, interval time.Duration) *Reloader {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		logger:   slog.Default().With("component", "certs"),
		now:      time.Now,
	}
}

// Load reads the pair from disk. It fails on unreadable files, a key that
// does not match the certificate or a certificate outside its validity
// period.
func (r *Reloader) Load() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("certificate file: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	if err := checkValidity(leaf, r.now()); err != nil {
		return err
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.leaf = leaf
	r.certMod = certInfo.ModTime()
	r.keyMod = keyInfo.ModTime()
	r.mu.Unlock()

	r.logLoaded(leaf)
	return nil
}

// Run polls the files until ctx is cancelled and reloads after a change.
func (r *Reloader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.Load(); err != nil {
				r.logger.Error("failed to reload certificate, keeping the previous one",
					"cert_file", r.certFile,
					"error", err,
				)
			}
		}
	}
}

// GetCertificate has the signature of tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, ErrNotLoaded
	}
	return r.cert, nil
}

// NotAfter returns the expiry of the loaded certificate.
func (r *Reloader) NotAfter() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.leaf == nil {
		return time.Time{}
	}
	return r.leaf.NotAfter
}

func (r *Reloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return !certInfo.ModTime().Equal(r.certMod) || !keyInfo.ModTime().Equal(r.keyMod)
}

func (r *Reloader) logLoaded(leaf *x509.Certificate) {
	left := leaf.NotAfter.Sub(r.now())
	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"issuer", leaf.Issuer.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if left < ExpiryWarning {
		r.logger.Warn("certificate expires soon", append(attrs, "expires_in", left.Round(time.Hour))...)
		return
	}
	r.logger.Info("certificate loaded", attrs...)
}

func checkValidity(leaf *x509.Certificate, now time.Time) error {
	if now.Before(leaf.NotBefore) {
		return fmt.Errorf("certificate is not valid before %s", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return fmt.Errorf("certificate expired on %s", leaf.NotAfter.Format(time.RFC3339))
	}
	return nil
}
