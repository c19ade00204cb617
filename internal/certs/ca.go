package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const (
	keyBits       = 2048
	caValidity    = 10 * 365 * 24 * time.Hour
	caCertFile    = "ca.crt"
	caKeyFile     = "ca.key"
	certMode      = 0o644
	keyMode       = 0o600
	dirMode       = 0o755
	defaultCAName = "OSSS Local Development CA"
)

// Authority is a CA able to sign leaf certificates.
type Authority struct {
	Dir      string
	CertPath string
	KeyPath  string
	Cert     *x509.Certificate
	Key      *rsa.PrivateKey

	// Created is false when existing material was loaded.
	Created bool
}

// EnsureCA loads the CA from dir, or creates it when absent or when force
// is set. commonName defaults to "OSSS Local Development CA".
func EnsureCA(dir, commonName string, force bool) (*Authority, error) {
	if commonName == "" {
		commonName = defaultCAName
	}
	ca := &Authority{
		Dir:      dir,
		CertPath: filepath.Join(dir, caCertFile),
		KeyPath:  filepath.Join(dir, caKeyFile),
	}

	if !force {
		err := ca.load()
		if err == nil {
			return ca, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("existing CA in %s is unusable (use --force to replace it): %w", dir, err)
		}
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"OSSS"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	if err := writePEM(ca.CertPath, "CERTIFICATE", der, certMode); err != nil {
		return nil, err
	}
	if err := writePEM(ca.KeyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), keyMode); err != nil {
		return nil, err
	}
	ca.Cert, ca.Key, ca.Created = cert, key, true
	return ca, nil
}

func (a *Authority) load() error {
	cert, err := readCert(a.CertPath)
	if err != nil {
		return err
	}
	keyPEM, err := os.ReadFile(a.KeyPath)
	if err != nil {
		return err
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return fmt.Errorf("%s: no PEM block", a.KeyPath)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("%s: %w", a.KeyPath, err)
	}
	if !cert.IsCA {
		return fmt.Errorf("%s is not a CA certificate", a.CertPath)
	}
	a.Cert, a.Key = cert, key
	return nil
}

// Pool returns a cert pool holding only this CA.
func (a *Authority) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(a.Cert)
	return pool
}

func readCert(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s: no certificate PEM block", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cert, nil
}

func newSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// OpenFile keeps the mode of an existing file.
	return os.Chmod(path, mode)
}
