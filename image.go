// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

// Package sbsign implements the core PE/COFF Authenticode signing
// engine: header parsing, checksum-region construction, the PE
// checksum, the Authenticode SHA-256 hash, SpcIndirectDataContent
// construction, and the WIN_CERTIFICATE table editor and writer.
//
// The package never touches a filesystem or a private key; a caller
// supplies raw bytes and an optional signer.Signer-shaped collaborator
// to turn an Image into a signed one.
package sbsign

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Options controls optional behaviour of LoadBytes. The zero
// value is valid: diagnostics are collected but not printed, and
// logging goes to a default logrus logger at Info level, matching the
// teacher's file.New/NewBytes "inject or default" pattern.
type Options struct {
	// Logger receives ambient debug/info logging. Defaults to
	// logrus.StandardLogger() if nil.
	Logger logrus.FieldLogger

	// Diagnostic, if non-nil, is invoked once per non-fatal parse
	// warning (gaps, overflowing sections, endjunk), in addition to
	// the warning being recorded in Image.Warnings().
	Diagnostic func(string)
}

func (o *Options) logger() logrus.FieldLogger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Image is a parsed PE/COFF file, ready for hashing, signing, and
// certificate-table edits. All internal positions are byte offsets
// into bytes, never pointers or subslices (see SPEC_FULL.md §3): this
// lets regions/header survive the pad-and-reparse loop in parse.
type Image struct {
	bytes    []byte
	sigBytes []byte
	dataSize uint32

	hdr headerInfo

	regions  []Region
	warnings []string

	opts *Options
	log  logrus.FieldLogger
}

// LoadBytes parses buf as a PE/COFF image. buf is copied; the returned
// Image owns its own storage and never aliases the caller's slice.
func LoadBytes(buf []byte, opts *Options) (*Image, error) {
	img := &Image{
		opts: opts,
		log:  opts.logger(),
	}

	owned := make([]byte, len(buf))
	copy(owned, buf)
	img.bytes = owned

	if err := img.parse(); err != nil {
		return nil, err
	}
	return img, nil
}

// parse runs header parsing and region construction, applying the
// pad-and-reparse loop of spec.md §4.2: if the computed data size
// exceeds the current buffer, the buffer is zero-extended and regions
// are rebuilt. Header offsets never move during this loop since
// padding only ever appends trailing zero bytes.
func (img *Image) parse() error {
	hdr, err := parseHeader(img.bytes)
	if err != nil {
		return err
	}
	img.hdr = hdr

	existingCertSize := img.existingCertTableSize()
	img.sigBytes = img.sliceCertTable(existingCertSize)

	for {
		regions, dataSize, err := buildRegions(img.bytes, img.hdr, existingCertSize, img.warn)
		if err != nil {
			return err
		}
		if dataSize <= uint32(len(img.bytes)) {
			img.regions = regions
			img.dataSize = dataSize
			return nil
		}

		img.log.Debugf("sbsign: padding image from %d to %d bytes to satisfy region layout", len(img.bytes), dataSize)
		padded := make([]byte, dataSize)
		copy(padded, img.bytes)
		img.bytes = padded
	}
}

// existingCertTableSize reads the size field of the security data
// directory entry, returning 0 if the image carries no certificate
// table yet.
func (img *Image) existingCertTableSize() uint32 {
	size, err := readUint32(img.bytes, img.hdr.certDirOffset+4)
	if err != nil {
		return 0
	}
	return size
}

// sliceCertTable copies out the existing certificate table bytes, if
// any, so that certtable.go operates on an owned buffer independent of
// img.bytes (see SPEC_FULL.md §9: bytes and sigBytes are disjoint).
//
// It only accepts the existing directory contents as a certificate
// table when the WIN_CERTIFICATE header at its offset declares the
// revision/type this package itself writes and its size is smaller
// than the file -- exactly image_load's
// "cert_table->revision == CERT_TABLE_REVISION && cert_table->type ==
// CERT_TABLE_TYPE_PKCS && cert_table->size < size" guard in the
// original. Anything else (garbage, a foreign certificate format, a
// corrupt directory) is treated as an unsigned image: the stale bytes
// are dropped rather than preserved.
func (img *Image) sliceCertTable(size uint32) []byte {
	if size == 0 || size >= uint32(len(img.bytes)) {
		return nil
	}
	offset, err := readUint32(img.bytes, img.hdr.certDirOffset)
	if err != nil || offset == 0 {
		return nil
	}
	if uint64(offset)+uint64(size) > uint64(len(img.bytes)) {
		return nil
	}
	if uint64(offset)+winCertHeaderSize > uint64(len(img.bytes)) {
		return nil
	}
	revision, err := readUint16(img.bytes, offset+4)
	if err != nil || revision != winCertRevision20 {
		return nil
	}
	certType, err := readUint16(img.bytes, offset+6)
	if err != nil || certType != winCertTypePKCSSignedData {
		return nil
	}

	out := make([]byte, size)
	copy(out, img.bytes[offset:offset+size])
	return out
}

func (img *Image) warn(msg string) {
	img.warnings = append(img.warnings, msg)
	if img.opts != nil && img.opts.Diagnostic != nil {
		img.opts.Diagnostic(msg)
	}
	img.log.Debug(msg)
}

// Warnings returns the non-fatal diagnostics collected while parsing,
// in the order they were produced.
func (img *Image) Warnings() []string {
	out := make([]string, len(img.warnings))
	copy(out, img.warnings)
	return out
}

// Regions returns the checksum regions computed for this image, in
// hash order.
func (img *Image) Regions() []Region {
	out := make([]Region, len(img.regions))
	copy(out, img.regions)
	return out
}

// Authentihash returns the SHA-256 digest of img's checksum regions,
// the value embedded in the Authenticode SpcIndirectDataContent.
func (img *Image) Authentihash() [32]byte {
	return hashRegions(img.bytes[:img.dataSize], img.regions)
}

// IndirectDataContent returns the DER encoding of the
// SpcIndirectDataContent wrapping img's Authentihash, ready to be
// handed to a signer.Signer.
func (img *Image) IndirectDataContent() ([]byte, error) {
	return buildIndirectDataContent(img.Authentihash())
}

// Signatures returns the certificate-table entries currently present
// in the image (spec.md §4.6 List()).
func (img *Image) Signatures() ([]Certificate, error) {
	return listCertificates(img.sigBytes)
}

// AddSignature appends signedData (a detached PKCS#7 SignedData blob)
// to the certificate table as a new WIN_CERTIFICATE entry.
func (img *Image) AddSignature(signedData []byte) error {
	certs, err := listCertificates(img.sigBytes)
	if err != nil {
		return err
	}
	certs = addCertificate(certs, signedData)
	img.sigBytes = encodeCertificates(certs)
	return nil
}

// RemoveSignature deletes the signature at index i.
func (img *Image) RemoveSignature(i int) error {
	certs, err := listCertificates(img.sigBytes)
	if err != nil {
		return err
	}
	certs, err = removeCertificate(certs, i)
	if err != nil {
		return err
	}
	img.sigBytes = encodeCertificates(certs)
	return nil
}

// WriteAttached renders the complete, self-contained signed image.
func (img *Image) WriteAttached() ([]byte, error) {
	certs, err := listCertificates(img.sigBytes)
	if err != nil {
		return nil, err
	}
	return writeAttached(img.bytes, img.hdr, img.dataSize, certs)
}

// WriteDetached returns the bare PKCS#7 DER payload of the signature
// at index i, its WIN_CERTIFICATE header stripped -- the format
// produced by `sbsign --detached` (spec.md §6's write_detached(index)).
func (img *Image) WriteDetached(i int) ([]byte, error) {
	certs, err := listCertificates(img.sigBytes)
	if err != nil {
		return nil, err
	}
	return writeDetached(certs, i)
}

// String implements fmt.Stringer for debugging/logging, summarizing
// the image's layout.
func (img *Image) String() string {
	return fmt.Sprintf("sbsign.Image{size=%d, dataSize=%d, regions=%d, sigBytes=%d}",
		len(img.bytes), img.dataSize, len(img.regions), len(img.sigBytes))
}
