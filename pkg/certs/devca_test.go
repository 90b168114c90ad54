package certs_test

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtt-om/arrowhead-client-go/pkg/certs"
)

func TestDevCA_LoadOrCreate_idempotent(t *testing.T) {
	dir := t.TempDir()

	ca1 := certs.NewDevCA(dir, "")
	require.NoError(t, ca1.LoadOrCreate())
	for _, name := range []string{"ca.crt", "ca.key"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "expected %s to exist", name)
	}

	ca2 := certs.NewDevCA(dir, "")
	require.NoError(t, ca2.LoadOrCreate())
	assert.Equal(t, ca1.CertPEM(), ca2.CertPEM(), "second LoadOrCreate must load, not create")
}

func TestDevCA_IssueSystem_verifiesAgainstCA(t *testing.T) {
	ca := certs.NewDevCA(t.TempDir(), "cloud.local")
	require.NoError(t, ca.Create())

	m, err := ca.IssueSystem("provider", []string{"localhost", "10.0.0.5"}, 0)
	require.NoError(t, err)

	block, _ := pem.Decode(m.CertPEM)
	require.NotNil(t, block)
	leaf, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(m.CAPEM))
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	require.NoError(t, err)

	assert.Equal(t, "provider.cloud.local", leaf.Subject.CommonName)
	assert.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "10.0.0.5", leaf.IPAddresses[0].String())
}

func TestDevCA_IssueWithoutLoad(t *testing.T) {
	_, err := certs.NewDevCA(t.TempDir(), "").IssueSystem("x", nil, 0)
	assert.Error(t, err)
}
