// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import "fmt"

// WIN_CERTIFICATE revision and certificate-type constants (spec.md
// §4.6). winCertTypePKCSSignedData is the only type this package
// produces or expects to find.
const (
	winCertRevision20         = 0x0200
	winCertTypePKCSSignedData = 0x0002
	winCertHeaderSize         = 8
)

// Certificate is one entry of the certificate table: the raw
// WIN_CERTIFICATE header fields plus its payload (a detached PKCS#7
// SignedData blob, for every entry this package writes).
type Certificate struct {
	Revision uint16
	CertType uint16
	Data     []byte
}

// size is the entry's on-disk length including the WIN_CERTIFICATE
// header, before 8-byte alignment padding.
func (c Certificate) size() uint32 {
	return winCertHeaderSize + uint32(len(c.Data))
}

// encode serializes c as a WIN_CERTIFICATE entry, padded with zero
// bytes up to an 8-byte boundary as required by spec.md §4.6.
func (c Certificate) encode() []byte {
	raw := make([]byte, align8(c.size()))
	_ = writeUint32(raw, 0, c.size())
	_ = writeUint16(raw, 4, c.Revision)
	_ = writeUint16(raw, 6, c.CertType)
	copy(raw[8:], c.Data)
	return raw
}

// listCertificates walks the certificate table described by sigBytes
// (the raw bytes following the original end of image data, as found at
// the security data directory's file offset) and returns each entry in
// order. It mirrors parseSecurityDirectory's align8 walk in the
// teacher, generalized to report malformed headers via error instead of
// silently stopping.
func listCertificates(sigBytes []byte) ([]Certificate, error) {
	var certs []Certificate
	offset := uint32(0)
	for offset < uint32(len(sigBytes)) {
		if uint64(offset)+winCertHeaderSize > uint64(len(sigBytes)) {
			return nil, fmt.Errorf("%w: truncated WIN_CERTIFICATE header at offset %d", ErrInvalidCertHeader, offset)
		}
		entrySize, err := readUint32(sigBytes, offset)
		if err != nil {
			return nil, err
		}
		revision, err := readUint16(sigBytes, offset+4)
		if err != nil {
			return nil, err
		}
		certType, err := readUint16(sigBytes, offset+6)
		if err != nil {
			return nil, err
		}
		if entrySize < winCertHeaderSize || uint64(offset)+uint64(entrySize) > uint64(len(sigBytes)) {
			return nil, fmt.Errorf("%w: entry size %d out of range at offset %d", ErrInvalidCertHeader, entrySize, offset)
		}

		data := make([]byte, entrySize-winCertHeaderSize)
		copy(data, sigBytes[offset+winCertHeaderSize:offset+entrySize])
		certs = append(certs, Certificate{
			Revision: revision,
			CertType: certType,
			Data:     data,
		})

		offset += align8(entrySize)
	}
	return certs, nil
}

// encodeCertificates concatenates certs into the byte form of the
// certificate table, each entry individually 8-byte aligned.
func encodeCertificates(certs []Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, c.encode()...)
	}
	return out
}

// addCertificate appends a new PKCS#7 signed-data entry to certs,
// returning the updated table. Grounded on image_add_signature, which
// always appends rather than replacing existing entries: a PE/COFF
// image may carry more than one Authenticode signature.
func addCertificate(certs []Certificate, signedData []byte) []Certificate {
	return append(certs, Certificate{
		Revision: winCertRevision20,
		CertType: winCertTypePKCSSignedData,
		Data:     signedData,
	})
}

// removeCertificate deletes the certificate at index i, matching
// image_remove_signature's by-index semantics.
func removeCertificate(certs []Certificate, i int) ([]Certificate, error) {
	if i < 0 || i >= len(certs) {
		return nil, fmt.Errorf("%w: index %d", ErrSignatureOutOfRange, i)
	}
	out := make([]Certificate, 0, len(certs)-1)
	out = append(out, certs[:i]...)
	out = append(out, certs[i+1:]...)
	return out, nil
}
