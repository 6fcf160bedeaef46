package api

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// NewTLSTransport builds a transport that trusts the system roots plus the CA
// in caFile (the dev CA written by tools/certgen). certFile and keyFile are
// optional and add a client certificate.
func NewTLSTransport(caFile, certFile, keyFile string) (*http.Transport, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA cert")
		}
	}

	cfg := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = cfg
	return transport, nil
}

// WithRootCA trusts caFile in addition to the system roots.
func WithRootCA(caFile string) (Option, error) {
	transport, err := NewTLSTransport(caFile, "", "")
	if err != nil {
		return nil, err
	}
	return WithTransport(transport), nil
}
