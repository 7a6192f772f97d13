// Package store is the keyed entity store the ledger writes into. Entities are
// kept in memory, marked dirty on write and flushed by the caller.
package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"lendingScope/internal/model"
)

// Entity kinds as persisted.
const (
	KindProtocol           = "protocol"
	KindToken              = "token"
	KindMarket             = "market"
	KindInterestRate       = "interest_rate"
	KindRewardToken        = "reward_token"
	KindAccount            = "account"
	KindActiveAccount      = "active_account"
	KindFlow               = "flow"
	KindLiquidate          = "liquidate"
	KindMarketSnapshot     = "market_snapshot"
	KindFinancialsSnapshot = "financials_snapshot"
	KindUsageSnapshot      = "usage_snapshot"
	KindCircularBuffer     = "circular_buffer"
)

// IsAppendOnly reports whether rows of a kind are immutable once written.
func IsAppendOnly(kind string) bool {
	return kind == KindFlow || kind == KindLiquidate
}

// Row is the serialized form of one entity.
type Row struct {
	Kind string
	ID   string
	Data []byte
}

// Table holds entities of one kind by id.
type Table[T any] struct {
	kind  string
	rows  map[string]*T
	dirty map[string]struct{}
}

func newTable[T any](kind string) *Table[T] {
	return &Table[T]{
		kind:  kind,
		rows:  make(map[string]*T),
		dirty: make(map[string]struct{}),
	}
}

// Get returns the entity with the id.
func (t *Table[T]) Get(id string) (*T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

// Has reports whether the id exists.
func (t *Table[T]) Has(id string) bool {
	_, ok := t.rows[id]
	return ok
}

// Put stores or replaces an entity and marks it dirty.
func (t *Table[T]) Put(id string, v *T) {
	t.rows[id] = v
	t.dirty[id] = struct{}{}
}

// Create stores the entity built by fn unless the id already exists. It returns
// the stored entity and whether it was created.
func (t *Table[T]) Create(id string, fn func() *T) (*T, bool) {
	if v, ok := t.rows[id]; ok {
		return v, false
	}
	v := fn()
	t.Put(id, v)
	return v, true
}

// Len returns the number of entities.
func (t *Table[T]) Len() int {
	return len(t.rows)
}

// IDs returns all ids in sorted order.
func (t *Table[T]) IDs() []string {
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Table[T]) dirtyRows() ([]Row, error) {
	ids := make([]string, 0, len(t.dirty))
	for id := range t.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		data, err := json.Marshal(t.rows[id])
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", t.kind, id, err)
		}
		rows = append(rows, Row{Kind: t.kind, ID: id, Data: data})
	}
	return rows, nil
}

func (t *Table[T]) clearDirty() {
	t.dirty = make(map[string]struct{})
}

func (t *Table[T]) load(row Row) error {
	v := new(T)
	if err := json.Unmarshal(row.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s %s: %w", t.kind, row.ID, err)
	}
	t.rows[row.ID] = v
	return nil
}

type table interface {
	dirtyRows() ([]Row, error)
	clearDirty()
	load(Row) error
}

// Store groups every entity table of one deployment.
type Store struct {
	Protocols           *Table[model.Protocol]
	Tokens              *Table[model.Token]
	Markets             *Table[model.Market]
	InterestRates       *Table[model.InterestRate]
	RewardTokens        *Table[model.RewardToken]
	Accounts            *Table[model.Account]
	ActiveAccounts      *Table[model.ActiveAccount]
	Flows               *Table[model.Flow]
	Liquidates          *Table[model.Liquidate]
	MarketSnapshots     *Table[model.MarketSnapshot]
	FinancialsSnapshots *Table[model.FinancialsSnapshot]
	UsageSnapshots      *Table[model.UsageSnapshot]
	Buffers             *Table[model.CircularBuffer]

	tables map[string]table
	order  []string
}

// New returns an empty store.
func New() *Store {
	s := &Store{
		Protocols:           newTable[model.Protocol](KindProtocol),
		Tokens:              newTable[model.Token](KindToken),
		Markets:             newTable[model.Market](KindMarket),
		InterestRates:       newTable[model.InterestRate](KindInterestRate),
		RewardTokens:        newTable[model.RewardToken](KindRewardToken),
		Accounts:            newTable[model.Account](KindAccount),
		ActiveAccounts:      newTable[model.ActiveAccount](KindActiveAccount),
		Flows:               newTable[model.Flow](KindFlow),
		Liquidates:          newTable[model.Liquidate](KindLiquidate),
		MarketSnapshots:     newTable[model.MarketSnapshot](KindMarketSnapshot),
		FinancialsSnapshots: newTable[model.FinancialsSnapshot](KindFinancialsSnapshot),
		UsageSnapshots:      newTable[model.UsageSnapshot](KindUsageSnapshot),
		Buffers:             newTable[model.CircularBuffer](KindCircularBuffer),
	}
	s.tables = map[string]table{
		KindProtocol:           s.Protocols,
		KindToken:              s.Tokens,
		KindMarket:             s.Markets,
		KindInterestRate:       s.InterestRates,
		KindRewardToken:        s.RewardTokens,
		KindAccount:            s.Accounts,
		KindActiveAccount:      s.ActiveAccounts,
		KindFlow:               s.Flows,
		KindLiquidate:          s.Liquidates,
		KindMarketSnapshot:     s.MarketSnapshots,
		KindFinancialsSnapshot: s.FinancialsSnapshots,
		KindUsageSnapshot:      s.UsageSnapshots,
		KindCircularBuffer:     s.Buffers,
	}
	s.order = []string{
		KindProtocol, KindToken, KindMarket, KindInterestRate, KindRewardToken,
		KindAccount, KindActiveAccount, KindFlow, KindLiquidate,
		KindMarketSnapshot, KindFinancialsSnapshot, KindUsageSnapshot, KindCircularBuffer,
	}
	return s
}

// Dirty serializes every entity written since the last ClearDirty.
func (s *Store) Dirty() ([]Row, error) {
	var rows []Row
	for _, kind := range s.order {
		tableRows, err := s.tables[kind].dirtyRows()
		if err != nil {
			return nil, err
		}
		rows = append(rows, tableRows...)
	}
	return rows, nil
}

// ClearDirty forgets pending writes, typically after a successful flush.
func (s *Store) ClearDirty() {
	for _, t := range s.tables {
		t.clearDirty()
	}
}

// Load hydrates the store from persisted rows. Loaded rows are not dirty.
func (s *Store) Load(rows []Row) error {
	for _, row := range rows {
		t, ok := s.tables[row.Kind]
		if !ok {
			return fmt.Errorf("unknown entity kind: %s", row.Kind)
		}
		if err := t.load(row); err != nil {
			return err
		}
	}
	return nil
}
