package indexer

import (
	"fmt"
	"strings"
)

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// Halve splits the range into two adjacent halves. A single-block range cannot
// be split.
func (r BlockRange) Halve() (BlockRange, BlockRange, bool) {
	if r.From >= r.To {
		return r, BlockRange{}, false
	}
	mid := r.From + (r.To-r.From)/2
	return BlockRange{From: r.From, To: mid}, BlockRange{From: mid + 1, To: r.To}, true
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// tooManyResults matches the provider errors returned when an eth_getLogs
// window holds more logs than the node will serve.
func tooManyResults(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"query returned more than",
		"too many results",
		"log response size exceeded",
		"block range is too wide",
		"limit exceeded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
