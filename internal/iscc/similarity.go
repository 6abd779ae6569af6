package iscc

import (
	"errors"
	"fmt"
)

var ErrNoDigests = errors.New("no digests")

// SimilarityHash returns the bitwise majority of equal-length digests.
// A bit is set when at least half of the digests set it, so ties resolve to 1.
// Changing this rule changes every identifier derived from it.
func SimilarityHash(digests [][]byte) ([]byte, error) {
	if len(digests) == 0 {
		return nil, ErrNoDigests
	}
	size := len(digests[0])
	for _, digest := range digests[1:] {
		if len(digest) != size {
			return nil, fmt.Errorf("%w: %d != %d", ErrInvalidDigestLength, len(digest), size)
		}
	}

	counts := make([]int, size*8)
	for _, digest := range digests {
		for i, b := range digest {
			for bit := 0; bit < 8; bit++ {
				if b&(1<<bit) != 0 {
					counts[i*8+bit]++
				}
			}
		}
	}

	out := make([]byte, size)
	for i := range out {
		for bit := 0; bit < 8; bit++ {
			if 2*counts[i*8+bit] >= len(digests) {
				out[i] |= 1 << bit
			}
		}
	}
	return out, nil
}
