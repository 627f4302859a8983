// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import "encoding/binary"

// PE/COFF files are always little-endian on disk, regardless of host
// byte order. These accessors read and write multi-byte fields
// byte-by-byte so that the result never depends on host alignment or
// endianness.

// readUint16 reads a little-endian uint16 at offset.
func readUint16(buf []byte, offset uint32) (uint16, error) {
	if uint64(offset)+2 > uint64(len(buf)) {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(buf[offset:]), nil
}

// readUint32 reads a little-endian uint32 at offset.
func readUint32(buf []byte, offset uint32) (uint32, error) {
	if uint64(offset)+4 > uint64(len(buf)) {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(buf[offset:]), nil
}

// writeUint16 writes a little-endian uint16 at offset.
func writeUint16(buf []byte, offset uint32, v uint16) error {
	if uint64(offset)+2 > uint64(len(buf)) {
		return ErrOutsideBoundary
	}
	binary.LittleEndian.PutUint16(buf[offset:], v)
	return nil
}

// writeUint32 writes a little-endian uint32 at offset.
func writeUint32(buf []byte, offset uint32, v uint32) error {
	if uint64(offset)+4 > uint64(len(buf)) {
		return ErrOutsideBoundary
	}
	binary.LittleEndian.PutUint32(buf[offset:], v)
	return nil
}

// align8 rounds size up to the next multiple of 8.
func align8(size uint32) uint32 {
	return (size + 7) &^ 7
}
