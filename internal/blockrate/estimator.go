// Package blockrate projects per-block emission speeds onto calendar time using
// a moving average of observed (timestamp, block) samples.
package blockrate

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/model"
)

const (
	DefaultWindowSeconds          int64 = model.SecondsPerDay
	DefaultStorageIntervalSeconds int64 = 600

	secondsPerYear int64 = 365 * model.SecondsPerDay
)

var secondsPerDay = decimal.NewFromInt(model.SecondsPerDay)

// Unit is the calendar unit a projection is expressed in.
type Unit int

const (
	PerDay Unit = iota
	PerYear
)

// Seconds returns the unit length.
func (u Unit) Seconds() int64 {
	if u == PerYear {
		return secondsPerYear
	}
	return model.SecondsPerDay
}

// NewBuffer allocates an empty buffer sized to hold a full window of samples
// at the given spacing, plus headroom.
func NewBuffer(windowSeconds, storageIntervalSeconds int64) *model.CircularBuffer {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	if storageIntervalSeconds <= 0 {
		storageIntervalSeconds = DefaultStorageIntervalSeconds
	}
	pairs := windowSeconds/storageIntervalSeconds + 2
	return &model.CircularBuffer{
		ID:                     model.CircularBufferID,
		Samples:                make([]int64, 2*pairs),
		StorageIntervalSeconds: storageIntervalSeconds,
		WindowSeconds:          windowSeconds,
		BlocksPerDay:           decimal.Zero,
	}
}

// Estimator derives blocks-per-day from a buffer. It holds no sample state
// itself; the buffer is passed in on every call.
type Estimator struct {
	initialBlocksPerDay decimal.Decimal
	logger              *zap.Logger
}

// NewEstimator builds an estimator whose seed rate comes from a per-network
// seconds-per-block guess.
func NewEstimator(secondsPerBlock decimal.Decimal, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	initial := decimal.Zero
	if secondsPerBlock.IsPositive() {
		initial = secondsPerDay.Div(secondsPerBlock)
	}
	return &Estimator{initialBlocksPerDay: initial, logger: logger}
}

// InitialBlocksPerDay returns the seed rate.
func (e *Estimator) InitialBlocksPerDay() decimal.Decimal {
	return e.initialBlocksPerDay
}

// Project converts a per-unit emission speed into an amount per calendar unit.
// Timestamp-based speeds are already per second and never touch the buffer.
func (e *Estimator) Project(buf *model.CircularBuffer, timestamp, block uint64, speed decimal.Decimal, basis model.RateBasis, unit Unit) decimal.Decimal {
	if basis == model.RateBasisTimestamp {
		return speed.Mul(decimal.NewFromInt(unit.Seconds()))
	}
	blocksPerDay := e.Observe(buf, timestamp, block)
	perUnit := blocksPerDay.Mul(decimal.NewFromInt(unit.Seconds())).Div(secondsPerDay)
	return speed.Mul(perUnit)
}

// PerDay projects a speed onto one day.
func (e *Estimator) PerDay(buf *model.CircularBuffer, timestamp, block uint64, speed decimal.Decimal, basis model.RateBasis) decimal.Decimal {
	return e.Project(buf, timestamp, block, speed, basis, PerDay)
}

// PerYear projects a speed onto one year.
func (e *Estimator) PerYear(buf *model.CircularBuffer, timestamp, block uint64, speed decimal.Decimal, basis model.RateBasis) decimal.Decimal {
	return e.Project(buf, timestamp, block, speed, basis, PerYear)
}

// Observe offers a sample to the buffer and returns the current blocks-per-day
// estimate. The buffer is mutated in place.
func (e *Estimator) Observe(buf *model.CircularBuffer, timestamp, block uint64) decimal.Decimal {
	if buf == nil || buf.Capacity() < 2 || buf.WindowSeconds <= 0 {
		e.logger.Error("block-rate buffer is not initialised, using seed rate")
		return e.initialBlocksPerDay
	}
	ts := int64(timestamp)
	n := int64(block)
	capacity := buf.Capacity()

	if buf.Stored == 0 {
		e.store(buf, ts, n)
		buf.BlocksPerDay = e.initialBlocksPerDay
		return buf.BlocksPerDay
	}

	newest := (buf.NextIndex - 1 + capacity) % capacity
	if ts-timestampAt(buf, newest) < buf.StorageIntervalSeconds {
		return e.current(buf)
	}

	written := e.store(buf, ts, n)
	if buf.Stored < 3 {
		// Two samples say too little about the chain's pace.
		buf.BlocksPerDay = e.initialBlocksPerDay
		return buf.BlocksPerDay
	}

	inWindow := (written-buf.WindowStartIndex+capacity)%capacity + 1
	cutoff := ts - buf.WindowSeconds
	for inWindow > 2 && timestampAt(buf, buf.WindowStartIndex) < cutoff {
		buf.WindowStartIndex = (buf.WindowStartIndex + 1) % capacity
		inWindow--
	}

	elapsedSeconds := ts - timestampAt(buf, buf.WindowStartIndex)
	elapsedBlocks := n - blockAt(buf, buf.WindowStartIndex)
	if elapsedSeconds <= 0 || elapsedBlocks <= 0 {
		e.logger.Warn("non-increasing block-rate sample, keeping previous rate",
			zap.Uint64("block", block),
			zap.Uint64("timestamp", timestamp),
		)
		return e.current(buf)
	}

	window := decimal.NewFromInt(buf.WindowSeconds)
	perWindow := window.Div(decimal.NewFromInt(elapsedSeconds)).Mul(decimal.NewFromInt(elapsedBlocks))
	buf.BlocksPerDay = perWindow.Mul(secondsPerDay).Div(window)
	return buf.BlocksPerDay
}

func (e *Estimator) current(buf *model.CircularBuffer) decimal.Decimal {
	if buf.BlocksPerDay.IsPositive() {
		return buf.BlocksPerDay
	}
	return e.initialBlocksPerDay
}

// store writes a sample at NextIndex and returns the slot used. When the
// buffer is full and the write lands on the window start, the window start
// moves to the next-oldest sample.
func (e *Estimator) store(buf *model.CircularBuffer, ts, block int64) int {
	capacity := buf.Capacity()
	slot := buf.NextIndex
	if buf.Stored == capacity && slot == buf.WindowStartIndex {
		buf.WindowStartIndex = (buf.WindowStartIndex + 1) % capacity
	}
	buf.Samples[2*slot] = ts
	buf.Samples[2*slot+1] = block
	buf.NextIndex = (slot + 1) % capacity
	if buf.Stored < capacity {
		buf.Stored++
	}
	return slot
}

func timestampAt(buf *model.CircularBuffer, slot int) int64 {
	return buf.Samples[2*slot]
}

func blockAt(buf *model.CircularBuffer, slot int) int64 {
	return buf.Samples[2*slot+1]
}
