// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import "errors"

// Errors returned while parsing or editing a PE/COFF image.
//
// Every validation failure surfaced by parseHeader is a MalformedHeader
// or UnsupportedVariant error; the image is left untouched in both
// cases. ErrSignatureOutOfRange is returned by RemoveSignature and
// WriteDetached only.
var (
	// ErrTooSmallForDOSHeader is returned when the file is smaller than
	// the DOS header.
	ErrTooSmallForDOSHeader = errors.New("sbsign: file is too small for DOS header")

	// ErrDOSMagicNotFound is returned when the first two bytes of the
	// file are not the 'MZ' DOS magic.
	ErrDOSMagicNotFound = errors.New("sbsign: invalid DOS header magic")

	// ErrElfanewOutOfRange is returned when e_lfanew points outside the
	// file, or leaves no room for the PE signature and file header.
	ErrElfanewOutOfRange = errors.New("sbsign: e_lfanew is beyond the end of file")

	// ErrPESignatureNotFound is returned when the 4 bytes at e_lfanew
	// are not "PE\x00\x00".
	ErrPESignatureNotFound = errors.New("sbsign: PE signature not found")

	// ErrUnsupportedOptionalHeaderMagic is returned when the optional
	// header magic is neither PE32 (0x10b) nor PE32+ (0x20b).
	ErrUnsupportedOptionalHeaderMagic = errors.New("sbsign: unsupported optional header magic")

	// ErrUnsupportedMachine is returned when the machine type in the
	// file header is not one of the supported machines, or doesn't match
	// the optional header variant (e.g. an
	// i386/THUMB machine with a PE32+ optional header, or an
	// AMD64/AArch64 machine with a PE32 optional header).
	ErrUnsupportedMachine = errors.New("sbsign: unsupported or mismatched machine type")

	// ErrOptionalHeaderTooSmall is returned when the declared size of
	// the optional header can't accommodate a security data directory
	// entry.
	ErrOptionalHeaderTooSmall = errors.New("sbsign: optional header too small for a security data directory entry")

	// ErrFileTooSmallForHeaders is returned when the file is shorter
	// than DOS header + PE header + optional header.
	ErrFileTooSmallForHeaders = errors.New("sbsign: file is too small to contain its declared headers")

	// ErrSignatureOutOfRange is returned by RemoveSignature/WriteDetached
	// when the requested index is beyond the number of signatures
	// present.
	ErrSignatureOutOfRange = errors.New("sbsign: signature index out of range")

	// ErrOutsideBoundary is returned by the byte accessors when a read
	// would run past the end of the buffer.
	ErrOutsideBoundary = errors.New("sbsign: read outside buffer boundary")

	// ErrInvalidCertHeader is returned when a WIN_CERTIFICATE header
	// found while walking the certificate table is truncated, declares a
	// length smaller than the 8-byte header, or declares a length that
	// would run past the end of the signature buffer.
	ErrInvalidCertHeader = errors.New("sbsign: invalid WIN_CERTIFICATE header in certificate table")
)
