package observer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// NextWindow returns the first window of at most size blocks starting at from
// and ending no later than head.
func NextWindow(from, head, size uint64) (BlockRange, error) {
	if size == 0 {
		return BlockRange{}, fmt.Errorf("block window must be greater than zero")
	}
	if head < from {
		return BlockRange{}, fmt.Errorf("head block %d is behind cursor %d", head, from)
	}

	end := head
	if head-from >= size {
		end = from + size - 1
	}
	return BlockRange{From: from, To: end}, nil
}
