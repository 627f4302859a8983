// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

// Package signer implements the external signer collaborator required
// by sbsign.Image: turning an SpcIndirectDataContent digest into a
// detached PKCS#7 SignedData with Authenticode content-type, using a
// PEM-loaded key and certificate.
package signer

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"os"

	"go.mozilla.org/pkcs7"
)

// oidSpcIndirectDataContent is the Authenticode content type that
// replaces PKCS#7's default pkcs7-data OID in the SignedData this
// package produces.
var oidSpcIndirectDataContent = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}

// Signer turns IDC bytes (the DER encoding of a
// SpcIndirectDataContent) into a detached PKCS#7 SignedData blob.
type Signer interface {
	Sign(idc []byte) ([]byte, error)
}

// PKCS7Signer signs with a PEM-loaded certificate and private key. No
// engine-backed or hardware-token key is supported: keyform is always
// PEM (SPEC_FULL.md §4.8 resolves the source's keyformname Open
// Question this way).
type PKCS7Signer struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
}

// NewPKCS7Signer loads certPath and keyPath as PEM files and returns a
// ready-to-use PKCS7Signer.
func NewPKCS7Signer(certPath, keyPath string) (*PKCS7Signer, error) {
	cert, err := LoadCertificate(certPath)
	if err != nil {
		return nil, err
	}
	key, err := LoadPrivateKey(keyPath)
	if err != nil {
		return nil, err
	}
	return &PKCS7Signer{Certificate: cert, PrivateKey: key}, nil
}

// Sign builds a PKCS#7 SignedData over idc, then retags its inner
// encapsulated content type from pkcs7-data to the Authenticode
// SPC_INDIRECT_DATA_OBJID, per SPEC_FULL.md §4.8. This is the one
// piece of Authenticode-specific surgery the generic PKCS#7 library
// cannot do on its own, since it has no notion of SPC content types;
// GetSignedData exposes the exact field go.mozilla.org/pkcs7 needs
// overridden, so no hand-rolled DER surgery is required.
func (s *PKCS7Signer) Sign(idc []byte) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(idc)
	if err != nil {
		return nil, fmt.Errorf("signer: new signed data: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := sd.AddSigner(s.Certificate, s.PrivateKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("signer: add signer: %w", err)
	}

	sd.GetSignedData().ContentInfo.ContentType = oidSpcIndirectDataContent

	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("signer: finish signed data: %w", err)
	}
	return der, nil
}

// LoadCertificate reads a single PEM-encoded X.509 certificate from
// path.
func LoadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read certificate %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("signer: %s does not contain a PEM CERTIFICATE block", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signer: parse certificate %s: %w", path, err)
	}
	return cert, nil
}

// LoadPrivateKey reads a PEM-encoded private key from path, trying
// PKCS#1, PKCS#8 and SEC1 (EC) encodings in turn.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read key %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("signer: %s does not contain a PEM block", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key %s: %w", path, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("signer: key in %s is not a signing key", path)
	}
	return signer, nil
}
