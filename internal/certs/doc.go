// Package certs generates the local development PKI: one self-signed CA and
// a leaf certificate per TLS-enabled service, plus Java keystores for the
// JVM services (Trino, Keycloak, OpenMetadata).
//
// PEM material is produced with crypto/x509. Keystores are built by the
// openssl and keytool binaries, the same tools the services' own
// documentation uses, and are skipped with a warning when keytool is
// missing.
package certs
