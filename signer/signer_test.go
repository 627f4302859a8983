// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package signer

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"
)

// writeSelfSignedPEMPair generates an RSA key and a self-signed
// certificate for it, PEM-encodes both into dir, and returns their
// paths.
func writeSelfSignedPEMPair(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sbsign test signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("x509.CreateCertificate: %v", err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	return certPath, keyPath
}

func TestSignProducesVerifiableSignedData(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedPEMPair(t, dir)

	s, err := NewPKCS7Signer(certPath, keyPath)
	if err != nil {
		t.Fatalf("NewPKCS7Signer: %v", err)
	}

	idc := []byte("a fake SpcIndirectDataContent DER blob")
	der, err := s.Sign(idc)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		t.Fatalf("pkcs7.Parse: %v", err)
	}
	if !bytes.Equal(p7.Content, idc) {
		t.Errorf("parsed content = %q, want %q", p7.Content, idc)
	}
	if err := p7.Verify(); err != nil {
		t.Errorf("p7.Verify(): %v", err)
	}
}

func TestLoadCertificateRejectsNonPEM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notacert.pem")
	if err := os.WriteFile(path, []byte("not pem data"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadCertificate(path); err == nil {
		t.Fatalf("LoadCertificate on non-PEM data: expected error, got nil")
	}
}

func TestLoadPrivateKeyRejectsNonPEM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notakey.pem")
	if err := os.WriteFile(path, []byte("not pem data"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadPrivateKey(path); err == nil {
		t.Fatalf("LoadPrivateKey on non-PEM data: expected error, got nil")
	}
}
