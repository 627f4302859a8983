// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import "fmt"

// writeAttached renders the full, self-contained image: the original
// bytes up to dataSize, the checksum field patched in place, the
// security data directory entry pointing at the certificate table, and
// the certificate table itself appended and 8-byte aligned. Mirrors
// image_write.
func writeAttached(buf []byte, hdr headerInfo, dataSize uint32, certs []Certificate) ([]byte, error) {
	certBytes := encodeCertificates(certs)

	out := make([]byte, dataSize+uint32(len(certBytes)))
	copy(out, buf[:dataSize])
	copy(out[dataSize:], certBytes)

	dirOffset, dirSize := dataSize, uint32(len(certBytes))
	if len(certs) == 0 {
		dirOffset, dirSize = 0, 0
	}
	if err := writeUint32(out, hdr.certDirOffset, dirOffset); err != nil {
		return nil, err
	}
	if err := writeUint32(out, hdr.certDirOffset+4, dirSize); err != nil {
		return nil, err
	}

	// peChecksum skips the 4-byte checksum field, so its old value does
	// not matter; the security directory entry and the appended table
	// are folded in, so compute the sum only after both are in place
	// above.
	csum := peChecksum(out[:dataSize], hdr, dataSize, certBytes, true)
	if err := writeUint32(out, hdr.checksumOffset, csum); err != nil {
		return nil, err
	}

	return out, nil
}

// writeDetached returns the bare PKCS#7 DER payload of the signature
// at index i -- its WIN_CERTIFICATE header stripped, matching
// image_get_signature followed by image_write_detached's single-entry
// write in the original.
func writeDetached(certs []Certificate, i int) ([]byte, error) {
	if i < 0 || i >= len(certs) {
		return nil, fmt.Errorf("%w: index %d", ErrSignatureOutOfRange, i)
	}
	return certs[i].Data, nil
}
