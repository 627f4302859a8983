// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import (
	"encoding/binary"
	"fmt"
)

// testPE32Layout records the byte offsets a synthetic PE32 image was
// built with, so tests can assert against them without recomputing the
// header arithmetic independently.
type testPE32Layout struct {
	buf                []byte
	checksumOffset     uint32
	certDirOffset      uint32
	sectionTableOffset uint32
	sizeOfHeaders      uint32
}

const (
	testPEOffset      = 64
	testFileHeaderSz  = 20
	testOptHeaderSz   = 224
	testFileAlignment = 512
)

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// buildTestPE32 constructs a minimal, well-formed PE32 image with the
// given section contents laid out sequentially (each section padded to
// testFileAlignment), followed by endJunk extra trailing bytes.
func buildTestPE32(sections [][]byte, endJunk int) testPE32Layout {
	numSections := len(sections)
	sectionTableOffset := uint32(testPEOffset + 4 + testFileHeaderSz + testOptHeaderSz)
	headersEnd := sectionTableOffset + uint32(numSections)*40
	sizeOfHeaders := alignUp(headersEnd, testFileAlignment)

	offsets := make([]uint32, numSections)
	cur := sizeOfHeaders
	for i, d := range sections {
		offsets[i] = cur
		cur += alignUp(uint32(len(d)), testFileAlignment)
	}
	total := cur + uint32(endJunk)

	buf := make([]byte, total)
	buf[0], buf[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(buf[0x3c:], testPEOffset)
	copy(buf[testPEOffset:], []byte("PE\x00\x00"))

	fh := uint32(testPEOffset + 4)
	binary.LittleEndian.PutUint16(buf[fh:], 0x014c) // IMAGE_FILE_MACHINE_I386
	binary.LittleEndian.PutUint16(buf[fh+2:], uint16(numSections))
	binary.LittleEndian.PutUint16(buf[fh+16:], uint16(testOptHeaderSz))

	oh := fh + testFileHeaderSz
	binary.LittleEndian.PutUint16(buf[oh:], imageNtOptionalHeader32Magic)
	binary.LittleEndian.PutUint32(buf[oh+36:], testFileAlignment)
	binary.LittleEndian.PutUint32(buf[oh+60:], sizeOfHeaders)

	certDirOffset := oh + 96 + 8*4

	for i, d := range sections {
		base := sectionTableOffset + uint32(i)*40
		name := fmt.Sprintf("sec%d", i)
		copy(buf[base:base+8], name)
		binary.LittleEndian.PutUint32(buf[base+16:], alignUp(uint32(len(d)), testFileAlignment))
		binary.LittleEndian.PutUint32(buf[base+20:], offsets[i])
		copy(buf[offsets[i]:offsets[i]+uint32(len(d))], d)
	}

	return testPE32Layout{
		buf:                buf,
		checksumOffset:     oh + 64,
		certDirOffset:      certDirOffset,
		sectionTableOffset: sectionTableOffset,
		sizeOfHeaders:      sizeOfHeaders,
	}
}
