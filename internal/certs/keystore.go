package certs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/process"
)

// DefaultStorePassword is the JDK's default keystore password, which the
// OSSS service configs expect.
const DefaultStorePassword = "changeit"

// TruststoreFile is the JKS truststore holding the CA.
const TruststoreFile = "truststore.jks"

// Keystores builds Java keystores with openssl and keytool.
type Keystores struct {
	Runner   process.Runner
	Log      *zap.Logger
	Password string

	// LookPath reports whether a binary is installed. Defaults to
	// process.LookPath.
	LookPath func(name string) bool
}

func (k *Keystores) password() string {
	if k.Password == "" {
		return DefaultStorePassword
	}
	return k.Password
}

// Available reports whether openssl and keytool are both installed, and
// logs a warning naming the one that is missing.
func (k *Keystores) Available() bool {
	look := k.LookPath
	if look == nil {
		look = process.LookPath
	}
	for _, bin := range []string{"openssl", "keytool"} {
		if !look(bin) {
			logging.OrNop(k.Log).Warn("skipping Java keystores: binary not found; PEM files are still written",
				zap.String("binary", bin))
			return false
		}
	}
	return true
}

// Build converts leaf into <name>.p12 and <name>.jks in the CA directory and
// returns the JKS path.
func (k *Keystores) Build(ctx context.Context, ca *Authority, leaf *Leaf) (string, error) {
	pass := k.password()
	p12 := filepath.Join(ca.Dir, leaf.Name+".p12")
	jks := filepath.Join(ca.Dir, leaf.Name+".jks")

	// keytool refuses to import over an existing alias.
	if err := os.Remove(jks); err != nil && !os.IsNotExist(err) {
		return "", err
	}

	steps := []process.Cmd{
		{Name: "openssl", Args: []string{"pkcs12", "-export",
			"-in", leaf.CertPath, "-inkey", leaf.KeyPath, "-certfile", ca.CertPath,
			"-name", leaf.Name, "-out", p12, "-passout", "pass:" + pass}},
		{Name: "keytool", Args: []string{"-importkeystore", "-noprompt",
			"-srckeystore", p12, "-srcstoretype", "PKCS12", "-srcstorepass", pass,
			"-destkeystore", jks, "-deststoretype", "JKS", "-deststorepass", pass}},
	}
	for _, cmd := range steps {
		if _, err := k.Runner.Run(ctx, cmd); err != nil {
			return "", fmt.Errorf("keystore for %s: %s failed: %w", leaf.Name, cmd.Name, err)
		}
	}
	return jks, nil
}

// Truststore (re)creates truststore.jks holding the CA and returns its path.
func (k *Keystores) Truststore(ctx context.Context, ca *Authority) (string, error) {
	path := filepath.Join(ca.Dir, TruststoreFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	cmd := process.Cmd{Name: "keytool", Args: []string{"-importcert", "-noprompt",
		"-alias", "osss-ca", "-file", ca.CertPath,
		"-keystore", path, "-storetype", "JKS", "-storepass", k.password()}}
	if _, err := k.Runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("truststore: keytool failed: %w", err)
	}
	return path, nil
}
