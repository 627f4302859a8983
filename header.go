// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

// Image file machine types. Only the machines listed in spec.md §1 are
// accepted; every other value is ErrUnsupportedMachine.
const (
	imageFileMachineI386  = 0x014c // Intel 386 or later, and compatibles.
	imageFileMachineThumb = 0x01c2 // ARM or Thumb ("interworking").
	imageFileMachineAMD64 = 0x8664 // x64.
	imageFileMachineARM64 = 0xaa64 // ARM64 little endian.
)

// Optional header magic values.
const (
	imageNtOptionalHeader32Magic = 0x10b // PE32.
	imageNtOptionalHeader64Magic = 0x20b // PE32+.
)

// dosHeaderSize is the size, in bytes, of the DOS stub header up to and
// including e_lfanew.
const dosHeaderSize = 64

// dosMagicOffset / elfanewOffset are fixed offsets within the DOS
// header.
const (
	dosMagicOffset  = 0
	elfanewOffset   = 0x3c
	peSignatureSize = 4
	fileHeaderSize  = 20
)

// peSignature is the 4-byte "PE\0\0" signature that follows e_lfanew.
var peSignature = [4]byte{'P', 'E', 0, 0}

// Optional-header field offsets, relative to the start of the optional
// header, for PE32 and PE32+. FileAlignment, SizeOfHeaders and CheckSum
// sit at the same offset in both; NumberOfRvaAndSizes and the
// DataDirectory base differ.
const (
	ohMagicOffset    = 0
	ohFileAlign32    = 36
	ohFileAlign64    = 36
	ohSizeOfHdrs32   = 60
	ohSizeOfHdrs64   = 60
	ohCheckSum32     = 64
	ohCheckSum64     = 64
	ohNumRvaSizes32  = 92
	ohNumRvaSizes64  = 108
	ohDataDirBase32  = 96
	ohDataDirBase64  = 112
	dataDirEntrySize = 8
	// certificateTableIndex is the index of the security (certificate
	// table) entry within the optional header's DataDirectory array.
	certificateTableIndex = 4
)

// minOptionalHeaderSize returns the smallest optional-header size (in
// bytes) that can accommodate a DataDirectory with at least
// certificateTableIndex+1 entries, for the given variant.
func minOptionalHeaderSize(isPE32Plus bool) uint32 {
	base := uint32(ohDataDirBase32)
	if isPE32Plus {
		base = ohDataDirBase64
	}
	return base + dataDirEntrySize*(certificateTableIndex+1)
}

// parseHeader validates the DOS header, PE signature, and optional
// header, and records the byte offsets this package needs to build
// checksum regions, compute the PE checksum, and locate the
// certificate table. It never mutates img.bytes.
func parseHeader(buf []byte) (hdr headerInfo, err error) {
	size := uint32(len(buf))

	if size < dosHeaderSize {
		return hdr, ErrTooSmallForDOSHeader
	}

	if buf[0] != 'M' || buf[1] != 'Z' {
		return hdr, ErrDOSMagicNotFound
	}

	elfanew, err := readUint32(buf, elfanewOffset)
	if err != nil {
		return hdr, ErrElfanewOutOfRange
	}
	if elfanew >= size {
		return hdr, ErrElfanewOutOfRange
	}
	if uint64(elfanew)+peSignatureSize+fileHeaderSize > uint64(size) {
		return hdr, ErrElfanewOutOfRange
	}

	for i := 0; i < peSignatureSize; i++ {
		if buf[int(elfanew)+i] != peSignature[i] {
			return hdr, ErrPESignatureNotFound
		}
	}

	peOffset := elfanew
	fileHeaderOffset := peOffset + peSignatureSize
	machine, err := readUint16(buf, fileHeaderOffset)
	if err != nil {
		return hdr, ErrElfanewOutOfRange
	}
	sizeOfOptionalHeader, err := readUint16(buf, fileHeaderOffset+16)
	if err != nil {
		return hdr, ErrElfanewOutOfRange
	}
	numberOfSections, err := readUint16(buf, fileHeaderOffset+2)
	if err != nil {
		return hdr, ErrElfanewOutOfRange
	}

	optHeaderOffset := fileHeaderOffset + fileHeaderSize
	if uint64(optHeaderOffset) > uint64(size) {
		return hdr, ErrFileTooSmallForHeaders
	}

	magic, err := readUint16(buf, optHeaderOffset)
	if err != nil {
		return hdr, ErrFileTooSmallForHeaders
	}

	var isPE32Plus bool
	switch magic {
	case imageNtOptionalHeader32Magic:
		isPE32Plus = false
	case imageNtOptionalHeader64Magic:
		isPE32Plus = true
	default:
		return hdr, ErrUnsupportedOptionalHeaderMagic
	}

	switch {
	case !isPE32Plus && (machine == imageFileMachineI386 || machine == imageFileMachineThumb):
	case isPE32Plus && (machine == imageFileMachineAMD64 || machine == imageFileMachineARM64):
	default:
		return hdr, ErrUnsupportedMachine
	}

	minSize := minOptionalHeaderSize(isPE32Plus)
	if uint32(sizeOfOptionalHeader) < minSize {
		return hdr, ErrOptionalHeaderTooSmall
	}

	if uint64(optHeaderOffset)+uint64(sizeOfOptionalHeader) > uint64(size) {
		return hdr, ErrFileTooSmallForHeaders
	}

	checkSumOff := ohCheckSum32
	fileAlignOff := ohFileAlign32
	sizeOfHdrsOff := ohSizeOfHdrs32
	dataDirBase := ohDataDirBase32
	if isPE32Plus {
		checkSumOff = ohCheckSum64
		fileAlignOff = ohFileAlign64
		sizeOfHdrsOff = ohSizeOfHdrs64
		dataDirBase = ohDataDirBase64
	}

	fileAlignment, err := readUint32(buf, optHeaderOffset+uint32(fileAlignOff))
	if err != nil {
		return hdr, ErrFileTooSmallForHeaders
	}
	sizeOfHeaders, err := readUint32(buf, optHeaderOffset+uint32(sizeOfHdrsOff))
	if err != nil {
		return hdr, ErrFileTooSmallForHeaders
	}
	if uint64(sizeOfHeaders) > uint64(size) {
		return hdr, ErrFileTooSmallForHeaders
	}

	certDirOffset := optHeaderOffset + uint32(dataDirBase) + dataDirEntrySize*certificateTableIndex

	hdr = headerInfo{
		peOffset:           peOffset,
		optHeaderOffset:    optHeaderOffset,
		isPE32Plus:         isPE32Plus,
		checksumOffset:     optHeaderOffset + uint32(checkSumOff),
		certDirOffset:      certDirOffset,
		sectionTableOffset: optHeaderOffset + uint32(sizeOfOptionalHeader),
		numberOfSections:   numberOfSections,
		fileAlignment:      fileAlignment,
		sizeOfHeaders:      sizeOfHeaders,
	}
	return hdr, nil
}

// headerInfo holds the parsed-view byte offsets described in spec.md
// §3. All fields are offsets into the Image's byte buffer, never
// pointers or subslices, so that growing the buffer during the §4.2
// pad-and-reparse loop never invalidates them.
type headerInfo struct {
	peOffset           uint32
	optHeaderOffset    uint32
	isPE32Plus         bool
	checksumOffset     uint32
	certDirOffset      uint32
	sectionTableOffset uint32
	numberOfSections   uint16
	fileAlignment      uint32
	sizeOfHeaders      uint32
}

// sectionHeaderSize is the fixed size of an IMAGE_SECTION_HEADER entry.
const sectionHeaderSize = 40

// sectionExtent reports the file offset and raw size of section i, as
// declared in the section table.
func sectionExtent(buf []byte, hdr headerInfo, i uint16) (fileOffset, fileSize uint32, err error) {
	base := hdr.sectionTableOffset + uint32(i)*sectionHeaderSize
	fileSize, err = readUint32(buf, base+16) // SizeOfRawData
	if err != nil {
		return 0, 0, err
	}
	fileOffset, err = readUint32(buf, base+20) // PointerToRawData
	if err != nil {
		return 0, 0, err
	}
	return fileOffset, fileSize, nil
}
