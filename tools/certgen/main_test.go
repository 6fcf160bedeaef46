package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func leaf(t *testing.T, dir string) *x509.Certificate {
	t.Helper()
	pair, err := tls.LoadX509KeyPair(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	return cert
}

func TestCertgen_DefaultHosts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	out := run(t, "--dir", dir)

	assert.Contains(t, out, "Certificates generated into "+dir)
	for _, name := range []string{"ca.crt", "ca.key", "server.crt", "server.key"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	cert := leaf(t, dir)
	assert.Equal(t, []string{"localhost"}, cert.DNSNames)
	assert.Len(t, cert.IPAddresses, 2)

	caPEM, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	require.NoError(t, err)
	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(caPEM))
	_, err = cert.Verify(x509.VerifyOptions{DNSName: "10.0.0.47", Roots: roots})
	assert.NoError(t, err)
}

func TestCertgen_ReuseCA(t *testing.T) {
	dir := t.TempDir()
	run(t, "--dir", dir)
	before, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	require.NoError(t, err)

	run(t, "--dir", dir, "--reuse-ca", "--hosts", "shop.lan,192.168.1.20")

	after, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	cert := leaf(t, dir)
	assert.Equal(t, "shop.lan", cert.Subject.CommonName)
	assert.Equal(t, []string{"shop.lan"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "192.168.1.20", cert.IPAddresses[0].String())
}

func TestCertgen_ReuseMissingCA(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", t.TempDir(), "--reuse-ca"})

	assert.ErrorContains(t, cmd.Execute(), "read ca cert")
}
