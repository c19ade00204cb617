package certs

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// DefaultLeafDays is the validity of a leaf certificate when the request
// does not set one.
const DefaultLeafDays = 825

// renewBefore is how close to expiry a leaf may be and still be reused.
const renewBefore = 30 * 24 * time.Hour

// LeafRequest describes a certificate to issue.
type LeafRequest struct {
	// Name is the file stem: <Name>.crt, <Name>.key, <Name>-chain.crt.
	Name      string
	DNSNames  []string
	IPs       []net.IP
	ValidDays int
}

// Leaf is an issued certificate on disk.
type Leaf struct {
	Name      string `json:"name"`
	CertPath  string `json:"cert"`
	KeyPath   string `json:"key"`
	ChainPath string `json:"chain"`

	Cert *x509.Certificate `json:"-"`
}

func (a *Authority) leafPaths(name string) *Leaf {
	return &Leaf{
		Name:      name,
		CertPath:  filepath.Join(a.Dir, name+".crt"),
		KeyPath:   filepath.Join(a.Dir, name+".key"),
		ChainPath: filepath.Join(a.Dir, name+"-chain.crt"),
	}
}

// IssueLeaf signs a server and client auth certificate for req and writes
// it next to the CA. Existing files for the same name are overwritten.
func (a *Authority) IssueLeaf(req LeafRequest) (*Leaf, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("leaf certificate needs a name")
	}
	days := req.ValidDays
	if days <= 0 {
		days = DefaultLeafDays
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key for %s: %w", req.Name, err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	cn := req.Name
	if len(req.DNSNames) > 0 {
		cn = req.DNSNames[0]
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"OSSS"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(time.Duration(days) * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              req.DNSNames,
		IPAddresses:           req.IPs,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, a.Cert, &key.PublicKey, a.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate for %s: %w", req.Name, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	leaf := a.leafPaths(req.Name)
	leaf.Cert = cert
	if err := writePEM(leaf.CertPath, "CERTIFICATE", der, certMode); err != nil {
		return nil, err
	}
	if err := writePEM(leaf.KeyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), keyMode); err != nil {
		return nil, err
	}

	var chain bytes.Buffer
	_ = pem.Encode(&chain, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	_ = pem.Encode(&chain, &pem.Block{Type: "CERTIFICATE", Bytes: a.Cert.Raw})
	if err := os.WriteFile(leaf.ChainPath, chain.Bytes(), certMode); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", leaf.ChainPath, err)
	}
	return leaf, nil
}

// ExistingLeaf returns the leaf for req if its files exist, it was signed by
// this CA, it covers every requested DNS name and it is not about to expire.
// Otherwise it returns nil.
func (a *Authority) ExistingLeaf(req LeafRequest) *Leaf {
	leaf := a.leafPaths(req.Name)
	cert, err := readCert(leaf.CertPath)
	if err != nil {
		return nil
	}
	if _, err := os.Stat(leaf.KeyPath); err != nil {
		return nil
	}
	if time.Until(cert.NotAfter) < renewBefore {
		return nil
	}
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     a.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		return nil
	}
	for _, dns := range req.DNSNames {
		if cert.VerifyHostname(dns) != nil {
			return nil
		}
	}
	leaf.Cert = cert
	return leaf
}
