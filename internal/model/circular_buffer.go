package model

import "github.com/shopspring/decimal"

// CircularBufferID is the id of the single block-rate buffer per deployment.
const CircularBufferID = "CIRCULAR_BUFFER"

// CircularBuffer is the persisted state of the block-rate estimator. Samples
// holds interleaved (timestamp, blockNumber) pairs.
type CircularBuffer struct {
	ID                     string          `json:"id"`
	Samples                []int64         `json:"samples"`
	Stored                 int             `json:"stored"`
	WindowStartIndex       int             `json:"window_start_index"`
	NextIndex              int             `json:"next_index"`
	StorageIntervalSeconds int64           `json:"storage_interval_seconds"`
	WindowSeconds          int64           `json:"window_seconds"`
	BlocksPerDay           decimal.Decimal `json:"blocks_per_day"`
}

// Capacity is the number of (timestamp, block) pairs the buffer can hold.
func (b *CircularBuffer) Capacity() int {
	return len(b.Samples) / 2
}
