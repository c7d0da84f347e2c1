// Package certs serves the gateway's TLS certificate.
//
// A Reloader loads a PEM certificate and key pair and polls the files for
// changes, so certificates rotated on disk (cert-manager, Let's Encrypt,
// mounted secrets) take effect on the next handshake without a restart.
// ServerConfig builds the *tls.Config handed to the HTTP server.
//
// Usage:
//
//	r := certs.NewReloader("tls.crt", "tls.key", time.Minute)
//	if err := r.Load(); err != nil {
//		return err
//	}
//	go r.Run(ctx)
//
//	tlsCfg, err := certs.ServerConfig(r, certs.Options{MinVersion: "1.2"})
package certs
