// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import (
	"fmt"
	"sort"
)

// Region is a contiguous byte range that contributes to the
// Authenticode digest. Labels are informational only (they
// appear in diagnostics, never in the hash).
type Region struct {
	Offset uint32
	Length uint32
	Label  string
}

func (r Region) end() uint32 { return r.Offset + r.Length }

// buildRegions computes the sequence of checksum regions for buf,
// following spec.md §4.2: three fixed regions around the checksum field
// and security data directory entry, one region per non-empty section
// (sorted by file offset), and an optional trailing "endjunk" region
// appended after the sort. The endjunk region starts at the number of
// bytes the other regions cover and makes that count plus the
// certificate table equal len(buf); when sections leave gaps it
// therefore starts before the last section ends and overlaps it.
//
// It never fails on gaps, overflowing sections, or leftover/overrun
// trailing data: those conditions are reported through warn and folded
// into the region list on a best-effort basis, exactly as
// image_find_regions does in the original implementation. The returned
// dataSize is 8-byte aligned and may exceed len(buf), in which case the
// caller must zero-pad buf and re-parse (spec.md §4.2, "re-parse on
// underflow").
func buildRegions(buf []byte, hdr headerInfo, certTableSize uint32, warn func(string)) (regions []Region, dataSize uint32, err error) {
	size := uint32(len(buf))

	regions = make([]Region, 0, hdr.numberOfSections+4)
	regions = append(regions, Region{Offset: 0, Length: hdr.checksumOffset, Label: "begin->cksum"})
	regions = append(regions, Region{
		Offset: hdr.checksumOffset + 4,
		Length: hdr.certDirOffset - (hdr.checksumOffset + 4),
		Label:  "cksum->datadir[CERT]",
	})
	regions = append(regions, Region{
		Offset: hdr.certDirOffset + 8,
		Length: hdr.sizeOfHeaders - (hdr.certDirOffset + 8),
		Label:  "datadir[CERT]->headers",
	})

	bytesCovered := regions[0].Length + 4 + regions[1].Length + 8 + regions[2].Length

	// Seeded with R2 ("datadir[CERT]->headers") so the boundary between
	// the end of the headers and the first declared section is gap
	// checked too, matching image_find_regions's comparison against
	// regions[n-1] (never nil there, since the three fixed regions are
	// already in place).
	prev := &regions[2]
	gapWarn := false
	for i := uint16(0); i < hdr.numberOfSections; i++ {
		fileOffset, fileSize, serr := sectionExtent(buf, hdr, i)
		if serr != nil {
			return nil, 0, fmt.Errorf("%w: section header %d", ErrFileTooSmallForHeaders, i)
		}
		if fileSize == 0 {
			continue
		}

		name := sectionName(buf, hdr, i)
		region := Region{Offset: fileOffset, Length: fileSize, Label: name}
		regions = append(regions, region)
		bytesCovered += fileSize

		if uint64(fileOffset)+uint64(fileSize) > uint64(size) {
			warn(fmt.Sprintf("warning: file-aligned section %s extends beyond end of file", name))
		}

		if prev.end() != region.Offset {
			warn(fmt.Sprintf("warning: gap in section table:\n    %-8s: 0x%08x - 0x%08x,\n    %-8s: 0x%08x - 0x%08x,",
				prev.Label, prev.Offset, prev.end(), region.Label, region.Offset, region.end()))
			gapWarn = true
		}
		prev = &regions[len(regions)-1]
	}
	if gapWarn {
		warn("gaps in the section table may result in different checksums")
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].Offset < regions[j].Offset })

	if bytesCovered+certTableSize < size {
		endjunk := Region{
			Offset: bytesCovered,
			Length: size - bytesCovered - certTableSize,
			Label:  "endjunk",
		}
		regions = append(regions, endjunk)
		warn(fmt.Sprintf("warning: data remaining[%d vs %d]: gaps between PE/COFF sections?", bytesCovered+certTableSize, size))
	} else if bytesCovered+certTableSize > size {
		warn("warning: checksum areas are greater than image size. Invalid section table?")
	}

	last := regions[len(regions)-1]
	dataSize = align8(last.end())
	return regions, dataSize, nil
}

// sectionName reads the 8-byte, NUL-padded section name at index i and
// returns it trimmed of trailing NULs.
func sectionName(buf []byte, hdr headerInfo, i uint16) string {
	base := hdr.sectionTableOffset + uint32(i)*sectionHeaderSize
	if uint64(base)+8 > uint64(len(buf)) {
		return fmt.Sprintf("section%d", i)
	}
	raw := buf[base : base+8]
	n := 8
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return string(raw[:n])
}
