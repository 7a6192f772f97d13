package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"lendingScope/internal/config"
	"lendingScope/internal/model"
	"lendingScope/internal/store"
)

const (
	comptroller = "0x3d9819210a31b4961b30ef54be2aed79b9c9cd3b"
	cUSDC       = "0x39aa39c021dfbae8fac545936693ac917d5e7563"
	usdc        = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	cETH        = "0x4ddc2d193948926d02f9b1fe9e1daa0718270ed5"
	comp        = "0xc00e94cb662c3520282e6f5717214004a7f26888"
	cCOMP       = "0x70e36f6bf80a52b3b46b3af8e106cc0ed743e8e4"
	alice       = "0x00000000000000000000000000000000000a11ce"
	bob         = "0x0000000000000000000000000000000000000b0b"

	// Midnight UTC.
	day0 = uint64(19675 * model.SecondsPerDay)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testDeployment() config.Deployment {
	return config.Deployment{
		Network:         model.NetworkMainnet,
		Name:            "Compound v2",
		Slug:            "compound-v2",
		Comptroller:     comptroller,
		UnitsPerYear:    2102400,
		RateBasis:       model.RateBasisBlock,
		RewardBasis:     model.RateBasisBlock,
		SecondsPerBlock: decimal.NewFromInt(12),
		NativeToken: config.TokenMeta{
			Address:  "0x0000000000000000000000000000000000000000",
			Name:     "Ether",
			Symbol:   "ETH",
			Decimals: 18,
		},
		NativeMarket:      cETH,
		RewardToken:       &config.TokenMeta{Address: comp, Name: "Compound", Symbol: "COMP", Decimals: 18},
		RewardPriceMarket: cCOMP,
		Pricing:           config.PricingOracleUSD,
		FeeComponents:     []config.FeeComponent{{Name: "treasury", Fraction: dec("0.05")}},
	}
}

type harness struct {
	t      *testing.T
	engine *Engine
	store  *store.Store
	logs   *observer.ObservedLogs
	block  uint64
	ts     uint64
	logIdx uint64
}

func newHarness(t *testing.T, d config.Deployment) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(zapcore.NewTee(core, zaptest.NewLogger(t).Core()))
	s := store.New()
	return &harness{
		t:      t,
		engine: New(d, s, logger),
		store:  s,
		logs:   logs,
		block:  15_000_000,
		ts:     day0,
	}
}

// event builds the next event, advancing the block by one and the clock by 12s.
func (h *harness) event(address, name string, data interface{}, calls model.CallResults) model.Event {
	h.block++
	h.ts += 12
	h.logIdx++
	if calls == nil {
		calls = model.CallResults{}
	}
	return model.Event{
		Block: model.BlockMeta{
			Number:    h.block,
			Timestamp: h.ts,
			TxHash:    fmt.Sprintf("0x%064x", h.block),
			LogIndex:  h.logIdx,
		},
		Address: address,
		Name:    name,
		Data:    data,
		Calls:   calls,
	}
}

func (h *harness) apply(ev model.Event) error {
	return h.engine.Apply(ev)
}

func (h *harness) mustApply(ev model.Event) {
	h.t.Helper()
	require.NoError(h.t, h.apply(ev))
}

func (h *harness) listUSDC() {
	h.t.Helper()
	h.mustApply(h.event(comptroller, model.EventNameMarketListed, &model.MarketListedData{Market: cUSDC}, model.CallResults{
		model.CallUnderlying:           usdc,
		model.CallUnderlyingName:       "USD Coin",
		model.CallUnderlyingSymbol:     "USDC",
		model.CallUnderlyingDecimals:   "6",
		model.CallName:                 "Compound USD Coin",
		model.CallSymbol:               "cUSDC",
		model.CallDecimals:             "8",
		model.CallReserveFactor:        "100000000000000000",
		model.CallOracle:               "0xDDc46a3B076aec7ab3Fc37420A8eDd2959764Ec4",
		model.CallLiquidationIncentive: "1080000000000000000",
	}))
}

func (h *harness) listCETH() {
	h.t.Helper()
	h.mustApply(h.event(comptroller, model.EventNameMarketListed, &model.MarketListedData{Market: cETH}, model.CallResults{
		model.CallName:          "Compound Ether",
		model.CallSymbol:        "cETH",
		model.CallDecimals:      "8",
		model.CallReserveFactor: "200000000000000000",
	}))
}

// usdcAccrual prices USDC at $1 with a 0.02 exchange rate and 1,000,000 cUSDC.
func usdcAccrualCalls() model.CallResults {
	return model.CallResults{
		model.CallUnderlyingPrice:    "1000000000000000000000000000000",
		model.CallExchangeRateStored: "200000000000000",
		model.CallTotalSupply:        "100000000000000",
		model.CallSupplyRate:         "10000000000",
		model.CallBorrowRate:         "20000000000",
		model.CallReserveFactor:      "100000000000000000",
	}
}

func (h *harness) accrue(market string, interest, totalBorrows string, calls model.CallResults) error {
	return h.apply(h.event(market, model.EventNameAccrueInterest, &model.AccrueInterestData{
		InterestAccumulated: interest,
		BorrowIndex:         "1000000000000000000",
		TotalBorrows:        totalBorrows,
	}, calls))
}

func (h *harness) market(id string) *model.Market {
	h.t.Helper()
	m, ok := h.store.Markets.Get(id)
	require.True(h.t, ok, "market %s", id)
	return m
}

func (h *harness) protocol() *model.Protocol {
	h.t.Helper()
	p, ok := h.store.Protocols.Get(comptroller)
	require.True(h.t, ok)
	return p
}

// assertProtocolMatchesMarkets checks every protocol aggregate against the
// sum over its markets.
func (h *harness) assertProtocolMatchesMarkets() {
	h.t.Helper()
	p := h.protocol()
	var tvl, deposit, borrow decimal.Decimal
	var cum model.Cumulative
	for _, id := range p.MarketIDs {
		m := h.market(id)
		tvl = tvl.Add(m.TotalValueLockedUSD)
		deposit = deposit.Add(m.TotalDepositBalanceUSD)
		borrow = borrow.Add(m.TotalBorrowBalanceUSD)
		cum = cum.Add(m.Cumulative())
	}
	assert.True(h.t, p.TotalValueLockedUSD.Equal(tvl), "tvl %s != %s", p.TotalValueLockedUSD, tvl)
	assert.True(h.t, p.TotalDepositBalanceUSD.Equal(deposit))
	assert.True(h.t, p.TotalBorrowBalanceUSD.Equal(borrow))
	got := p.Cumulative()
	assert.True(h.t, got.DepositUSD.Equal(cum.DepositUSD))
	assert.True(h.t, got.BorrowUSD.Equal(cum.BorrowUSD))
	assert.True(h.t, got.LiquidateUSD.Equal(cum.LiquidateUSD))
	assert.True(h.t, got.TotalRevenueUSD.Equal(cum.TotalRevenueUSD))
	assert.True(h.t, got.ProtocolSideRevenueUSD.Equal(cum.ProtocolSideRevenueUSD))
	assert.True(h.t, got.SupplySideRevenueUSD.Equal(cum.SupplySideRevenueUSD))
}

func TestMarketListedCreatesMarketOnce(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listUSDC()

	m := h.market(cUSDC)
	assert.Equal(t, usdc, m.InputToken)
	assert.Equal(t, cUSDC, m.OutputToken)
	assert.Equal(t, uint8(6), m.InputTokenDecimals)
	assert.Equal(t, uint8(8), m.OutputTokenDecimals)
	assert.Equal(t, "Compound USD Coin", m.Name)
	assert.True(t, m.IsActive)
	assert.True(t, m.CanBorrowFrom)
	assert.False(t, m.CanUseAsCollateral)
	assert.True(t, m.ReserveFactor.Equal(dec("0.1")))
	assert.True(t, m.LiquidationPenalty.Equal(dec("8")))
	assert.Equal(t, []string{
		model.InterestRateID(model.SideLender, model.RateTypeVariable, cUSDC),
		model.InterestRateID(model.SideBorrower, model.RateTypeVariable, cUSDC),
	}, m.Rates)
	assert.Equal(t, []string{"BORROW-" + comp, "DEPOSIT-" + comp}, m.RewardTokens)
	assert.Len(t, m.RewardTokenEmissionsAmount, 2)

	p := h.protocol()
	assert.Equal(t, []string{cUSDC}, p.MarketIDs)
	assert.Equal(t, "0xddc46a3b076aec7ab3fc37420a8edd2959764ec4", p.PriceOracle)
	require.True(t, p.LiquidationIncentive.Valid)
	assert.True(t, p.LiquidationIncentive.Decimal.Equal(dec("8")))

	token, ok := h.store.Tokens.Get(usdc)
	require.True(t, ok)
	assert.Equal(t, "USDC", token.Symbol)
	assert.True(t, h.store.RewardTokens.Has("DEPOSIT-"+comp))

	// A second listing of the same market changes nothing.
	h.mustApply(h.event(comptroller, model.EventNameMarketListed, &model.MarketListedData{Market: cUSDC}, model.CallResults{
		model.CallUnderlying:         "0x0000000000000000000000000000000000000bad",
		model.CallUnderlyingDecimals: "18",
		model.CallDecimals:           "18",
	}))
	m = h.market(cUSDC)
	assert.Equal(t, usdc, m.InputToken)
	assert.Equal(t, uint8(6), m.InputTokenDecimals)
	assert.Len(t, h.protocol().MarketIDs, 1)
}

func TestProtocolReadsStayUnsetWhenUnavailable(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listCETH()

	p := h.protocol()
	assert.Empty(t, p.PriceOracle)
	assert.False(t, p.LiquidationIncentive.Valid)
}

func TestNativeMarketUsesDescriptorToken(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listCETH()

	m := h.market(cETH)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", m.InputToken)
	assert.Equal(t, uint8(18), m.InputTokenDecimals)
	token, ok := h.store.Tokens.Get(m.InputToken)
	require.True(t, ok)
	assert.Equal(t, "ETH", token.Symbol)
}

func TestListingWithoutUnderlyingIsRejected(t *testing.T) {
	h := newHarness(t, testDeployment())
	err := h.apply(h.event(comptroller, model.EventNameMarketListed, &model.MarketListedData{Market: cUSDC}, model.CallResults{
		model.CallDecimals: "8",
	}))
	require.ErrorIs(t, err, ErrIncompleteListing)
	assert.Equal(t, 0, h.store.Markets.Len())
	assert.Equal(t, 1, h.logs.FilterMessage("underlying token unavailable, market not listed").Len())
}

func TestListingFromForeignComptrollerIgnored(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.mustApply(h.event("0x0000000000000000000000000000000000000001", model.EventNameMarketListed, &model.MarketListedData{Market: cUSDC}, nil))
	assert.Equal(t, 0, h.store.Markets.Len())
}

func TestListingOrderSuspectWarnsWithoutSwapping(t *testing.T) {
	d := testDeployment()
	d.ListingOrderSuspect = true
	h := newHarness(t, d)
	h.listUSDC()

	assert.Equal(t, 1, h.logs.FilterMessage("listing metadata order is unverified for this deployment").Len())
	m := h.market(cUSDC)
	assert.Equal(t, usdc, m.InputToken)
	assert.Equal(t, cUSDC, m.OutputToken)
}

func TestAccrualUpdatesMarket(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listUSDC()
	require.NoError(t, h.accrue(cUSDC, "1000000", "5000000000", usdcAccrualCalls()))

	m := h.market(cUSDC)
	assert.True(t, m.InputTokenPriceUSD.Equal(dec("1")))
	assert.True(t, m.ExchangeRate.Equal(dec("0.02")), "rate %s", m.ExchangeRate)
	assert.True(t, m.OutputTokenPriceUSD.Equal(dec("0.02")))
	assert.Equal(t, "20000000000", m.InputTokenBalance.String())
	assert.Equal(t, "100000000000000", m.OutputTokenSupply.String())
	assert.Equal(t, "5000000000", m.BorrowBalance.String())
	assert.True(t, m.TotalValueLockedUSD.Equal(dec("20000")))
	assert.True(t, m.TotalDepositBalanceUSD.Equal(dec("20000")))
	assert.True(t, m.TotalBorrowBalanceUSD.Equal(dec("5000")))
	assert.Equal(t, h.block, m.LastAccrualBlock)

	supply, ok := h.store.InterestRates.Get(model.InterestRateID(model.SideLender, model.RateTypeVariable, cUSDC))
	require.True(t, ok)
	assert.True(t, supply.Rate.Equal(dec("2.1024")), "supply apy %s", supply.Rate)
	borrow, ok := h.store.InterestRates.Get(model.InterestRateID(model.SideBorrower, model.RateTypeVariable, cUSDC))
	require.True(t, ok)
	assert.True(t, borrow.Rate.Equal(dec("4.2048")))

	// 1 USDC of interest: 10% reserve factor plus a 5% fee component.
	assert.True(t, m.CumulativeTotalRevenueUSD.Equal(dec("1")))
	assert.True(t, m.CumulativeProtocolSideRevenueUSD.Equal(dec("0.15")))
	assert.True(t, m.CumulativeSupplySideRevenueUSD.Equal(dec("0.85")))

	token, ok := h.store.Tokens.Get(usdc)
	require.True(t, ok)
	assert.True(t, token.LastPriceUSD.Equal(dec("1")))
	assert.Equal(t, h.block, token.LastPriceBlockNumber)

	snap, ok := h.store.MarketSnapshots.Get(model.SnapshotID(model.Daily, cUSDC, model.Daily.Bucket(h.ts)))
	require.True(t, ok)
	assert.True(t, snap.Delta.TotalRevenueUSD.Equal(dec("1")))
	assert.True(t, snap.SupplyRate.Equal(dec("2.1024")))
	h.assertProtocolMatchesMarkets()
}

func TestExchangeRateRoundTrip(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listUSDC()

	calls := usdcAccrualCalls()
	calls[model.CallTotalSupply] = "123456789012345"
	calls[model.CallExchangeRateStored] = "204719183917419"
	require.NoError(t, h.accrue(cUSDC, "0", "0", calls))

	s, _ := new(big.Int).SetString("123456789012345", 10)
	r, _ := new(big.Int).SetString("204719183917419", 10)
	human := decimal.NewFromBigInt(s, -8).Mul(decimal.NewFromBigInt(r, -(18 + 6 - 8)))
	want := human.Shift(6).Truncate(0)

	got := decimal.NewFromBigInt(h.market(cUSDC).InputTokenBalance, 0)
	assert.True(t, got.Sub(want).Abs().LessThanOrEqual(decimal.NewFromInt(1)), "got %s want %s", got, want)
}

func TestRevenueSplitIsExact(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listUSDC()

	calls := usdcAccrualCalls()
	calls[model.CallUnderlyingPrice] = "999712345678901234567890123456"
	calls[model.CallReserveFactor] = "73333333333333333"
	for _, interest := range []string{"1", "7", "333333", "98765432101", "1000000000003"} {
		require.NoError(t, h.accrue(cUSDC, interest, "0", calls))
		m := h.market(cUSDC)
		sum := m.CumulativeProtocolSideRevenueUSD.Add(m.CumulativeSupplySideRevenueUSD)
		require.True(t, sum.Equal(m.CumulativeTotalRevenueUSD), "after %s: %s != %s", interest, sum, m.CumulativeTotalRevenueUSD)

		snap, ok := h.store.MarketSnapshots.Get(model.SnapshotID(model.Hourly, cUSDC, model.Hourly.Bucket(h.ts)))
		require.True(t, ok)
		d := snap.Delta
		require.True(t, d.ProtocolSideRevenueUSD.Add(d.SupplySideRevenueUSD).Equal(d.TotalRevenueUSD))
		h.assertProtocolMatchesMarkets()
	}
}

func TestUnavailablePriceIsPreserved(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listUSDC()
	calls := usdcAccrualCalls()
	calls[model.CallUnderlyingPrice] = "1000100000000000000000000000000"
	require.NoError(t, h.accrue(cUSDC, "1000000", "5000000000", calls))
	before := h.market(cUSDC).InputTokenPriceUSD
	require.True(t, before.Equal(dec("1.0001")))

	calls = usdcAccrualCalls()
	delete(calls, model.CallUnderlyingPrice)
	calls[model.CallExchangeRateStored] = "210000000000000"
	require.NoError(t, h.accrue(cUSDC, "1000000", "5000000000", calls))

	m := h.market(cUSDC)
	assert.True(t, m.InputTokenPriceUSD.Equal(before), "price %s", m.InputTokenPriceUSD)
	assert.True(t, m.ExchangeRate.Equal(dec("0.021")))
	assert.GreaterOrEqual(t, h.logs.FilterMessage("underlying price unavailable, keeping previous").Len(), 1)
	token, _ := h.store.Tokens.Get(usdc)
	assert.True(t, token.LastPriceUSD.Equal(before))
}

func TestUnavailableRatesKeepPreviousAPY(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listUSDC()
	require.NoError(t, h.accrue(cUSDC, "0", "0", usdcAccrualCalls()))

	calls := usdcAccrualCalls()
	delete(calls, model.CallSupplyRate)
	delete(calls, model.CallTotalSupply)
	require.NoError(t, h.accrue(cUSDC, "0", "0", calls))

	supply, _ := h.store.InterestRates.Get(model.InterestRateID(model.SideLender, model.RateTypeVariable, cUSDC))
	assert.True(t, supply.Rate.Equal(dec("2.1024")))
	assert.Equal(t, "100000000000000", h.market(cUSDC).OutputTokenSupply.String())
}

func TestAccrualForUnknownMarket(t *testing.T) {
	h := newHarness(t, testDeployment())
	err := h.accrue(cUSDC, "1", "0", usdcAccrualCalls())
	require.True(t, errors.Is(err, ErrMissingEntity))
	assert.Equal(t, 0, h.store.Markets.Len())
	assert.Equal(t, 1, h.logs.FilterMessage("event for unknown market, skipping").Len())
}

func TestZeroDeploymentIsNoop(t *testing.T) {
	h := newHarness(t, config.Deployment{})
	h.listUSDC()
	require.NoError(t, h.accrue(cUSDC, "1", "0", usdcAccrualCalls()))
	assert.Equal(t, 0, h.store.Markets.Len())
	assert.Equal(t, 0, h.store.Protocols.Len())
}

type fixedUpdater struct {
	calls int
}

func (f *fixedUpdater) Update(market *model.Market, _ model.Event, _ *model.AccrueInterestData) MarketUpdate {
	f.calls++
	market.InputTokenPriceUSD = dec("2")
	return MarketUpdate{
		SupplyAPY: model.Unavailable[decimal.Decimal](),
		BorrowAPY: model.Available(dec("9")),
	}
}

func TestInjectedMarketUpdater(t *testing.T) {
	s := store.New()
	updater := &fixedUpdater{}
	e := New(testDeployment(), s, zaptest.NewLogger(t), WithMarketUpdater(updater))
	h := &harness{t: t, engine: e, store: s, logs: &observer.ObservedLogs{}, block: 1, ts: day0}
	h.listUSDC()
	require.NoError(t, h.accrue(cUSDC, "1000000", "0", nil))

	assert.Equal(t, 1, updater.calls)
	m := h.market(cUSDC)
	assert.True(t, m.CumulativeTotalRevenueUSD.Equal(dec("2")))
	borrow, _ := s.InterestRates.Get(model.InterestRateID(model.SideBorrower, model.RateTypeVariable, cUSDC))
	assert.True(t, borrow.Rate.Equal(dec("9")))
}

type namedIdentity struct{}

func (namedIdentity) Identity(d config.Deployment) ProtocolInfo {
	return ProtocolInfo{ID: "compound", Name: "Compound", Slug: d.Slug, Network: d.Network}
}

func TestInjectedProtocolIdentity(t *testing.T) {
	s := store.New()
	e := New(testDeployment(), s, nil, WithProtocolIdentity(namedIdentity{}))
	h := &harness{t: t, engine: e, store: s, logs: &observer.ObservedLogs{}, block: 1, ts: day0}
	h.listUSDC()

	p, ok := s.Protocols.Get("compound")
	require.True(t, ok)
	assert.Equal(t, []string{cUSDC}, p.MarketIDs)
	assert.Equal(t, "compound", h.market(cUSDC).ProtocolID)
}

func TestPanicDoesNotEscapeApply(t *testing.T) {
	h := newHarness(t, testDeployment())
	h.listUSDC()
	e := New(testDeployment(), h.store, nil, WithMarketUpdater(panickingUpdater{}))
	err := e.Apply(h.event(cUSDC, model.EventNameAccrueInterest, &model.AccrueInterestData{}, nil))
	require.ErrorIs(t, err, ErrTransitionPanic)
}

type panickingUpdater struct{}

func (panickingUpdater) Update(*model.Market, model.Event, *model.AccrueInterestData) MarketUpdate {
	panic("boom")
}
