package certs

import (
	"crypto/tls"
	"fmt"
)

// Options tune the server TLS configuration.
type Options struct {
	// MinVersion is "1.2" or "1.3". Empty means 1.2.
	MinVersion string

	// CipherSuites names the allowed TLS 1.2 suites. TLS 1.3 suites are
	// not configurable.
	CipherSuites []string
}

// ServerConfig builds a server TLS configuration serving the reloader's
// current certificate.
func ServerConfig(r *Reloader, opts Options) (*tls.Config, error) {
	version, err := ParseVersion(opts.MinVersion)
	if err != nil {
		return nil, err
	}
	suites, err := ParseCipherSuites(opts.CipherSuites)
	if err != nil {
		return nil, err
	}

	// #nosec G402 -- MinVersion is at least TLS 1.2.
	return &tls.Config{
		MinVersion:     version,
		CipherSuites:   suites,
		GetCertificate: r.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}, nil
}

// ParseVersion converts "1.2" or "1.3" to a tls version constant.
func ParseVersion(s string) (uint16, error) {
	switch s {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", s)
	}
}

// ParseCipherSuites resolves suite names against the secure suites known
// to crypto/tls. Nil input returns nil so the Go defaults apply.
func ParseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown or insecure cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
