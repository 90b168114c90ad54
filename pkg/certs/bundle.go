package certs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"
)

// Bundle file names inside a certificate directory.
const (
	BundleCertFile = "cert.pem"
	BundleKeyFile  = "key.pem"
	BundleCAFile   = "ca.pem"
)

// LoadBundleDir reads cert.pem, key.pem and ca.pem from dir. A missing
// ca.pem is tolerated and leaves the resulting context insecure.
//
//	m, err := certs.LoadBundleDir(os.ExpandEnv("$HOME/.arrowhead/certs/consumer"))
func LoadBundleDir(dir string) (Material, error) {
	read := func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}

	cert, err := read(BundleCertFile)
	if err != nil {
		return Material{}, err
	}
	key, err := read(BundleKeyFile)
	if err != nil {
		return Material{}, err
	}
	ca, err := read(BundleCAFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Material{}, err
	}
	return Material{CertPEM: cert, KeyPEM: key, CAPEM: ca}, nil
}

// WriteBundleDir writes m's inline PEM to dir using the bundle file names.
func WriteBundleDir(dir string, m Material) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cert dir %q: %w", dir, err)
	}
	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{BundleCertFile, m.CertPEM, 0o644},
		{BundleKeyFile, m.KeyPEM, 0o600},
		{BundleCAFile, m.CAPEM, 0o644},
	}
	for _, f := range files {
		if len(f.data) == 0 {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, f.mode); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

// FromKeystore decodes a PKCS#12 keystore, the format Arrowhead ships system
// certificates in. The certificate matching the private key becomes the
// identity; the remaining certificates of the chain become the authority
// unless caPath names a separate trust anchor.
func FromKeystore(p12Path, password, caPath string) (Material, error) {
	data, err := os.ReadFile(p12Path)
	if err != nil {
		return Material{}, fmt.Errorf("read keystore: %w", err)
	}
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return Material{}, fmt.Errorf("decode keystore: %w", err)
	}

	var keyPEM []byte
	var certPEMs [][]byte
	for _, b := range blocks {
		encoded := pemEncode(b.Type, b.Bytes)
		switch b.Type {
		case "CERTIFICATE":
			certPEMs = append(certPEMs, encoded)
		default:
			if keyPEM == nil {
				keyPEM = encoded
			}
		}
	}
	if keyPEM == nil || len(certPEMs) == 0 {
		return Material{}, fmt.Errorf("keystore %q holds no certificate/key pair", p12Path)
	}

	m := Material{KeyPEM: keyPEM}
	for _, c := range certPEMs {
		if m.CertPEM == nil && matchesKey(c, keyPEM) {
			m.CertPEM = c
			continue
		}
		m.CAPEM = append(m.CAPEM, c...)
	}
	if m.CertPEM == nil {
		return Material{}, fmt.Errorf("keystore %q: no certificate matches the private key", p12Path)
	}

	if caPath != "" {
		ca, err := os.ReadFile(caPath)
		if err != nil {
			return Material{}, fmt.Errorf("read certificate authority: %w", err)
		}
		m.CAPEM = ca
	}
	return m, nil
}
