package testutil

import (
	"crypto/tls"
	"crypto/x509"
	"net/http/httptest"
)

// TLSClientConfig returns a client config trusting srv's certificate.
func TLSClientConfig(srv *httptest.Server) *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
}
