// Package usage counts unique and active accounts per protocol.
package usage

import (
	"go.uber.org/zap"

	"lendingScope/internal/model"
	"lendingScope/internal/snapshot"
	"lendingScope/internal/store"
)

// Tracker records account activity.
type Tracker struct {
	store      *store.Store
	aggregator *snapshot.Aggregator
	logger     *zap.Logger
}

// New builds a tracker.
func New(s *store.Store, aggregator *snapshot.Aggregator, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: s, aggregator: aggregator, logger: logger}
}

// Record registers one action by an account. The unique-user counter moves
// once per address ever; active users once per address and bucket; the
// per-type and transaction counters on every call.
func (t *Tracker) Record(protocol *model.Protocol, account string, eventType model.EventType, block, ts uint64) {
	id := model.ID(account)
	if id == "" {
		t.logger.Warn("usage event without account", zap.String("type", string(eventType)), zap.Uint64("block", block))
		return
	}

	if _, created := t.store.Accounts.Create(id, func() *model.Account {
		return &model.Account{ID: id, FirstBlockNumber: block, FirstTimestamp: ts}
	}); created {
		protocol.CumulativeUniqueUsers++
		t.store.Protocols.Put(protocol.ID, protocol)
	}

	for _, g := range snapshot.Granularities {
		snap := t.aggregator.UsageSnapshot(g, protocol.ID, block, ts)
		activeID := model.ActiveAccountID(g, id, snap.Bucket)
		if _, created := t.store.ActiveAccounts.Create(activeID, func() *model.ActiveAccount {
			return &model.ActiveAccount{ID: activeID, Account: id, Granularity: g, Bucket: snap.Bucket}
		}); created {
			snap.ActiveUsers++
		}

		switch eventType {
		case model.EventDeposit:
			snap.DepositCount++
		case model.EventWithdraw:
			snap.WithdrawCount++
		case model.EventBorrow:
			snap.BorrowCount++
		case model.EventRepay:
			snap.RepayCount++
		case model.EventLiquidate:
			snap.LiquidateCount++
		}
		snap.TransactionCount++
		snap.CumulativeUniqueUsers = protocol.CumulativeUniqueUsers
		t.store.UsageSnapshots.Put(snap.ID, snap)
	}
}
