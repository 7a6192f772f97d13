package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lendingScope/internal/model"
	"lendingScope/internal/snapshot"
	"lendingScope/internal/store"
)

const (
	protocolID = "0xcomptroller"
	// Midnight UTC so that the first hours share a daily bucket.
	dayStart = uint64(19675 * model.SecondsPerDay)
)

func newTracker(t *testing.T) (*store.Store, *Tracker, *model.Protocol) {
	t.Helper()
	s := store.New()
	protocol := &model.Protocol{ID: protocolID}
	s.Protocols.Put(protocolID, protocol)
	logger := zaptest.NewLogger(t)
	return s, New(s, snapshot.New(s, logger), logger), protocol
}

func usage(t *testing.T, s *store.Store, g model.Granularity, ts uint64) *model.UsageSnapshot {
	t.Helper()
	snap, ok := s.UsageSnapshots.Get(model.SnapshotID(g, protocolID, g.Bucket(ts)))
	require.True(t, ok)
	return snap
}

func TestFirstActivityCounters(t *testing.T) {
	s, tracker, protocol := newTracker(t)

	tracker.Record(protocol, "0xAlice", model.EventDeposit, 1, dayStart+10)
	assert.Equal(t, uint64(1), protocol.CumulativeUniqueUsers)
	assert.Equal(t, uint64(1), usage(t, s, model.Hourly, dayStart).ActiveUsers)
	assert.Equal(t, uint64(1), usage(t, s, model.Daily, dayStart).ActiveUsers)

	// Same hour, same day: only per-type and transaction counters move.
	tracker.Record(protocol, "0xalice", model.EventBorrow, 2, dayStart+20)
	assert.Equal(t, uint64(1), protocol.CumulativeUniqueUsers)
	hourly := usage(t, s, model.Hourly, dayStart)
	assert.Equal(t, uint64(1), hourly.ActiveUsers)
	assert.Equal(t, uint64(1), hourly.DepositCount)
	assert.Equal(t, uint64(1), hourly.BorrowCount)
	assert.Equal(t, uint64(2), hourly.TransactionCount)

	// New hour, same day: hourly active moves, daily does not.
	tracker.Record(protocol, "0xalice", model.EventRepay, 3, dayStart+3600)
	assert.Equal(t, uint64(1), usage(t, s, model.Hourly, dayStart+3600).ActiveUsers)
	daily := usage(t, s, model.Daily, dayStart)
	assert.Equal(t, uint64(1), daily.ActiveUsers)
	assert.Equal(t, uint64(3), daily.TransactionCount)
	assert.Equal(t, uint64(1), protocol.CumulativeUniqueUsers)
}

func TestSecondAccountCountsSeparately(t *testing.T) {
	s, tracker, protocol := newTracker(t)

	tracker.Record(protocol, "0xalice", model.EventDeposit, 1, dayStart)
	tracker.Record(protocol, "0xbob", model.EventLiquidate, 2, dayStart+1)

	assert.Equal(t, uint64(2), protocol.CumulativeUniqueUsers)
	daily := usage(t, s, model.Daily, dayStart)
	assert.Equal(t, uint64(2), daily.ActiveUsers)
	assert.Equal(t, uint64(1), daily.LiquidateCount)
	assert.Equal(t, uint64(2), daily.CumulativeUniqueUsers)
	assert.Equal(t, 2, s.Accounts.Len())
	assert.Equal(t, 4, s.ActiveAccounts.Len())
}

func TestEmptyAccountIgnored(t *testing.T) {
	s, tracker, protocol := newTracker(t)
	tracker.Record(protocol, "", model.EventDeposit, 1, dayStart)
	assert.Equal(t, uint64(0), protocol.CumulativeUniqueUsers)
	assert.Equal(t, 0, s.UsageSnapshots.Len())
}
