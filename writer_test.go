// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteAttachedAppendsAlignedCertTable(t *testing.T) {
	layout := buildTestPE32([][]byte{make([]byte, 128)}, 0)
	hdr, err := parseHeader(layout.buf)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	_, dataSize, err := buildRegions(layout.buf, hdr, 0, func(string) {})
	if err != nil {
		t.Fatalf("buildRegions: %v", err)
	}

	certs := addCertificate(nil, []byte("a fake detached signature"))
	out, err := writeAttached(layout.buf, hdr, dataSize, certs)
	if err != nil {
		t.Fatalf("writeAttached: %v", err)
	}

	if uint32(len(out)) < dataSize {
		t.Fatalf("output shorter than dataSize: %d < %d", len(out), dataSize)
	}

	gotDirOffset, err := readUint32(out, hdr.certDirOffset)
	if err != nil {
		t.Fatalf("readUint32(dirOffset): %v", err)
	}
	gotDirSize, err := readUint32(out, hdr.certDirOffset+4)
	if err != nil {
		t.Fatalf("readUint32(dirSize): %v", err)
	}
	if gotDirOffset != dataSize {
		t.Errorf("cert dir offset = %d, want %d", gotDirOffset, dataSize)
	}
	wantSize := uint32(len(encodeCertificates(certs)))
	if gotDirSize != wantSize {
		t.Errorf("cert dir size = %d, want %d", gotDirSize, wantSize)
	}

	trailer := out[dataSize:]
	if !bytes.Equal(trailer, encodeCertificates(certs)) {
		t.Errorf("appended certificate table does not match encodeCertificates output")
	}
}

func TestWriteAttachedNoCertificatesZeroesDirectory(t *testing.T) {
	layout := buildTestPE32([][]byte{make([]byte, 64)}, 0)
	hdr, err := parseHeader(layout.buf)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	_, dataSize, err := buildRegions(layout.buf, hdr, 0, func(string) {})
	if err != nil {
		t.Fatalf("buildRegions: %v", err)
	}

	out, err := writeAttached(layout.buf, hdr, dataSize, nil)
	if err != nil {
		t.Fatalf("writeAttached: %v", err)
	}

	gotDirOffset, _ := readUint32(out, hdr.certDirOffset)
	gotDirSize, _ := readUint32(out, hdr.certDirOffset+4)
	if gotDirOffset != 0 || gotDirSize != 0 {
		t.Errorf("security directory = (%d, %d), want (0, 0) with no certificates", gotDirOffset, gotDirSize)
	}
}

func TestWriteDetachedReturnsBarePayloadAtIndex(t *testing.T) {
	certs := addCertificate(nil, []byte("first signature"))
	certs = addCertificate(certs, []byte("second signature"))

	got, err := writeDetached(certs, 1)
	if err != nil {
		t.Fatalf("writeDetached: %v", err)
	}
	if !bytes.Equal(got, certs[1].Data) {
		t.Errorf("writeDetached(certs, 1) = %x, want %x", got, certs[1].Data)
	}
	if bytes.Equal(got, encodeCertificates(certs)) {
		t.Errorf("writeDetached returned the whole cert table, not a single entry's payload")
	}
	if bytes.Contains(encodeCertificates(certs), got) && len(got) == len(encodeCertificates(certs)) {
		t.Errorf("writeDetached did not strip the WIN_CERTIFICATE header")
	}
}

func TestWriteDetachedOutOfRangeErrors(t *testing.T) {
	certs := addCertificate(nil, []byte("only one"))

	if _, err := writeDetached(certs, 1); !errors.Is(err, ErrSignatureOutOfRange) {
		t.Fatalf("writeDetached(certs, 1) error = %v, want ErrSignatureOutOfRange", err)
	}
	if _, err := writeDetached(certs, -1); !errors.Is(err, ErrSignatureOutOfRange) {
		t.Fatalf("writeDetached(certs, -1) error = %v, want ErrSignatureOutOfRange", err)
	}
}
