// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package sbsign

import "crypto/sha256"

// hashRegions computes the SHA-256 digest over buf's regions, in list
// order: the hash is just the concatenation of each region's bytes.
// Ordering and overlap are whatever the caller's list holds (see
// buildRegions).
func hashRegions(buf []byte, regions []Region) [32]byte {
	h := sha256.New()
	for _, r := range regions {
		h.Write(buf[r.Offset:r.end()])
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}
