package certs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtt-om/arrowhead-client-go/pkg/certs"
)

func TestBundleDir_writeThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "consumer")
	m := issue(t)
	require.NoError(t, certs.WriteBundleDir(dir, m))

	info, err := os.Stat(filepath.Join(dir, certs.BundleKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := certs.LoadBundleDir(dir)
	require.NoError(t, err)

	cc, err := certs.New(loaded)
	require.NoError(t, err)
	assert.True(t, cc.Secure())
}

func TestLoadBundleDir_withoutCA(t *testing.T) {
	dir := t.TempDir()
	m := issue(t)
	m.CAPEM = nil
	require.NoError(t, certs.WriteBundleDir(dir, m))

	loaded, err := certs.LoadBundleDir(dir)
	require.NoError(t, err)
	assert.Empty(t, loaded.CAPEM)

	cc, err := certs.New(loaded)
	require.NoError(t, err)
	assert.False(t, cc.Secure())
}

func TestLoadBundleDir_missingKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, certs.BundleCertFile), issue(t).CertPEM, 0o644))

	_, err := certs.LoadBundleDir(dir)
	assert.ErrorContains(t, err, certs.BundleKeyFile)
}

func TestFromKeystore_errors(t *testing.T) {
	_, err := certs.FromKeystore(filepath.Join(t.TempDir(), "none.p12"), "123456", "")
	assert.ErrorIs(t, err, os.ErrNotExist)

	junk := filepath.Join(t.TempDir(), "junk.p12")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not DER"), 0o600))
	_, err = certs.FromKeystore(junk, "123456", "")
	assert.ErrorContains(t, err, "decode keystore")
}

func TestMaterialEmpty(t *testing.T) {
	assert.True(t, certs.Material{}.Empty())
	assert.False(t, certs.Material{Key: "k"}.Empty())
}
