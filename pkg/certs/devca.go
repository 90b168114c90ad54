package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	devCACertFile = "ca.crt"
	devCAKeyFile  = "ca.key"
	devKeyBits    = 2048
)

// DevCA is a throwaway certificate authority for local Arrowhead clouds and
// tests. It is persisted to dir on first use and reloaded afterwards; every
// system certificate it issues is valid for both client and server auth.
type DevCA struct {
	dir  string
	name string
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// NewDevCA returns a DevCA that stores its files in dir. cloud names the CA
// subject, e.g. "testcloud.aitia.arrowhead.eu".
func NewDevCA(dir, cloud string) *DevCA {
	if cloud == "" {
		cloud = "arrowhead.local"
	}
	return &DevCA{dir: dir, name: cloud}
}

// LoadOrCreate loads the CA from disk if it exists; creates a new one otherwise.
func (ca *DevCA) LoadOrCreate() error {
	if err := ca.Load(); err == nil {
		return nil
	}
	return ca.Create()
}

// Load reads an existing CA cert and key from the configured directory.
func (ca *DevCA) Load() error {
	certPEM, err := os.ReadFile(filepath.Join(ca.dir, devCACertFile))
	if err != nil {
		return fmt.Errorf("read CA cert: %w", err)
	}
	keyPEM, err := os.ReadFile(filepath.Join(ca.dir, devCAKeyFile))
	if err != nil {
		return fmt.Errorf("read CA key: %w", err)
	}
	cert, key, err := decodeCertAndKey(certPEM, keyPEM)
	if err != nil {
		return err
	}
	ca.cert = cert
	ca.key = key
	return nil
}

// Create generates a new RSA CA, saves it to disk, and activates it.
func (ca *DevCA) Create() error {
	if err := os.MkdirAll(ca.dir, 0o700); err != nil {
		return fmt.Errorf("create cert dir %q: %w", ca.dir, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, devKeyBits)
	if err != nil {
		return fmt.Errorf("generate CA key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: ca.name, Organization: []string{"Arrowhead"}},
		NotBefore:             time.Now().UTC().Add(-time.Minute),
		NotAfter:              time.Now().UTC().Add(5 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("parse CA certificate: %w", err)
	}

	if err := os.WriteFile(filepath.Join(ca.dir, devCACertFile), pemEncode("CERTIFICATE", der), 0o644); err != nil {
		return fmt.Errorf("write CA cert: %w", err)
	}
	keyPEM := pemEncode("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
	if err := os.WriteFile(filepath.Join(ca.dir, devCAKeyFile), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write CA key: %w", err)
	}

	ca.cert = cert
	ca.key = key
	return nil
}

// CertPEM returns the CA certificate encoded as PEM.
func (ca *DevCA) CertPEM() []byte {
	return pemEncode("CERTIFICATE", ca.cert.Raw)
}

// IssueSystem issues a certificate for an Arrowhead system. The common name
// follows the Arrowhead convention <system>.<cloud>; hosts become DNS or IP
// SANs.
func (ca *DevCA) IssueSystem(systemName string, hosts []string, ttl time.Duration) (Material, error) {
	if ca.cert == nil {
		return Material{}, fmt.Errorf("CA not loaded")
	}
	if ttl == 0 {
		ttl = 365 * 24 * time.Hour
	}

	key, err := rsa.GenerateKey(rand.Reader, devKeyBits)
	if err != nil {
		return Material{}, fmt.Errorf("generate system key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return Material{}, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: systemName + "." + ca.name},
		NotBefore:    time.Now().UTC().Add(-time.Minute),
		NotAfter:     time.Now().UTC().Add(ttl),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return Material{}, fmt.Errorf("sign system certificate: %w", err)
	}
	return Material{
		CertPEM: pemEncode("CERTIFICATE", der),
		KeyPEM:  pemEncode("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)),
		CAPEM:   ca.CertPEM(),
	}, nil
}

// decodeCertAndKey parses PEM-encoded certificate and RSA private key bytes.
func decodeCertAndKey(certPEM, keyPEM []byte) (*x509.Certificate, *rsa.PrivateKey, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}

	block, _ = pem.Decode(keyPEM)
	if block == nil {
		return nil, nil, fmt.Errorf("failed to decode private key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key: %w", err)
	}
	return cert, key, nil
}

func pemEncode(typ string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
}

func matchesKey(certPEM, keyPEM []byte) bool {
	_, err := tls.X509KeyPair(certPEM, keyPEM)
	return err == nil
}

// randomSerial generates a cryptographically random 128-bit certificate serial.
func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	return serial, nil
}
