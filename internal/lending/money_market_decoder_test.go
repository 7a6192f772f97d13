package lending

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"lendingScope/internal/config"
	"lendingScope/internal/model"
)

var (
	cUSDC   = common.HexToAddress("0x39aa39c021dfbae8fac545936693ac917d5e7563")
	usdc    = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	oracle  = common.HexToAddress("0x50ce56a3239671ab62f185704caedf626352741e")
	alice   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ethFeed = common.HexToAddress("0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419")
)

type fakeReader struct {
	responses map[string][]byte
	calls     int
	blocks    map[uint64]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{responses: make(map[string][]byte), blocks: make(map[uint64]int)}
}

func (f *fakeReader) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	if block != nil {
		f.blocks[block.Uint64()]++
	}
	resp, ok := f.responses[callKey(*msg.To, msg.Data)]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return resp, nil
}

func (f *fakeReader) set(t *testing.T, to common.Address, parsed abi.ABI, method string, args []interface{}, outputs ...interface{}) {
	t.Helper()
	input, err := parsed.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	output, err := parsed.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	f.responses[callKey(to, input)] = output
}

func callKey(to common.Address, data []byte) string {
	return strings.ToLower(to.Hex()) + "/" + hexutil.Encode(data)
}

func compoundDeployment(t *testing.T) config.Deployment {
	t.Helper()
	d, err := config.NewRegistry().Lookup(model.NetworkMainnet, "compound-v2")
	if err != nil {
		t.Fatalf("lookup deployment: %v", err)
	}
	return d
}

func mustABI(t *testing.T, l *lazyABI) abi.ABI {
	t.Helper()
	parsed, err := l.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return parsed
}

func mustDecoder(t *testing.T, cfg DecoderConfig) *MoneyMarketDecoder {
	t.Helper()
	decoder, err := NewMoneyMarketDecoder(cfg)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder
}

func TestMoneyMarketDecoderMint(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	decoder := mustDecoder(t, DecoderConfig{})

	data, err := mm.Events["Mint"].Inputs.NonIndexed().Pack(alice, big.NewInt(1_000_000), big.NewInt(4_900_000_000))
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}
	event, err := decoder.Decode(buildLogRecord(cUSDC, mm.Events["Mint"].ID, data, nil), DecodeContext{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}

	mint, ok := event.Decoded.(model.MintData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if mint.Minter != alice.Hex() || mint.MintAmount != "1000000" || mint.MintTokens != "4900000000" {
		t.Fatalf("mint mismatch: %+v", mint)
	}
	if event.EventName != model.EventNameMint || event.BlockNumber != 12345 {
		t.Fatalf("event meta mismatch: %+v", event)
	}
	if len(event.Calls) != 0 {
		t.Fatalf("no reads expected without a chain reader: %v", event.Calls)
	}
}

func TestMoneyMarketDecoderAccrueInterestAttachesReads(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	d := compoundDeployment(t)
	decoder := mustDecoder(t, DecoderConfig{})

	reader := newFakeReader()
	comptroller := common.HexToAddress(d.Comptroller)
	reader.set(t, cUSDC, mm, "totalSupply", nil, big.NewInt(5_000_000_000_000))
	reader.set(t, cUSDC, mm, "exchangeRateStored", nil, big.NewInt(200_000_000_000_000))
	reader.set(t, cUSDC, mm, "supplyRatePerBlock", nil, big.NewInt(10_000_000_000))
	reader.set(t, cUSDC, mm, "reserveFactorMantissa", nil, big.NewInt(75_000_000_000_000_000))
	reader.set(t, comptroller, mm, "oracle", nil, oracle)
	reader.set(t, oracle, mm, "getUnderlyingPrice", []interface{}{cUSDC}, new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil))
	reader.set(t, oracle, mm, "getUnderlyingPrice", []interface{}{common.HexToAddress(d.RewardPriceMarket)}, big.NewInt(50))

	data, err := mm.Events["AccrueInterest"].Inputs.NonIndexed().Pack(
		big.NewInt(9), big.NewInt(1000), big.NewInt(1_000_000_000_000_000_000), big.NewInt(777),
	)
	if err != nil {
		t.Fatalf("pack accrue: %v", err)
	}

	ctx := DecodeContext{Chain: reader, Deployment: d, Logger: zap.NewNop()}
	event, err := decoder.Decode(buildLogRecord(cUSDC, mm.Events["AccrueInterest"].ID, data, nil), ctx)
	if err != nil {
		t.Fatalf("decode accrue: %v", err)
	}

	accrue, ok := event.Decoded.(model.AccrueInterestData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if accrue.CashPrior != "9" || accrue.InterestAccumulated != "1000" || accrue.TotalBorrows != "777" {
		t.Fatalf("accrue mismatch: %+v", accrue)
	}

	want := map[string]string{
		model.CallTotalSupply:        "5000000000000",
		model.CallExchangeRateStored: "200000000000000",
		model.CallSupplyRate:         "10000000000",
		model.CallReserveFactor:      "75000000000000000",
		model.CallOracle:             strings.ToLower(oracle.Hex()),
		model.CallUnderlyingPrice:    "1000000000000000000000000000000",
		model.CallRewardPrice:        "50",
	}
	for key, value := range want {
		if got := event.Calls[key]; got != value {
			t.Fatalf("call %s: got %q want %q", key, got, value)
		}
	}
	if _, ok := event.Calls[model.CallBorrowRate]; ok {
		t.Fatalf("reverted borrow rate read must be absent")
	}
	if event.Calls.BigInt(model.CallBorrowRate).IsAvailable() {
		t.Fatalf("reverted borrow rate read must be unavailable")
	}
	if len(reader.blocks) != 1 || reader.blocks[12345] == 0 {
		t.Fatalf("reads must be pinned to the event block: %v", reader.blocks)
	}
}

func TestMoneyMarketDecoderTimestampRates(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	d := compoundDeployment(t)
	d.RateBasis = model.RateBasisTimestamp
	decoder := mustDecoder(t, DecoderConfig{})

	reader := newFakeReader()
	reader.set(t, cUSDC, mm, "supplyRatePerTimestamp", nil, big.NewInt(3))
	reader.set(t, cUSDC, mm, "borrowRatePerTimestamp", nil, big.NewInt(4))

	data, _ := mm.Events["AccrueInterest"].Inputs.NonIndexed().Pack(big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	event, err := decoder.Decode(buildLogRecord(cUSDC, mm.Events["AccrueInterest"].ID, data, nil), DecodeContext{Chain: reader, Deployment: d})
	if err != nil {
		t.Fatalf("decode accrue: %v", err)
	}
	if event.Calls[model.CallSupplyRate] != "3" || event.Calls[model.CallBorrowRate] != "4" {
		t.Fatalf("timestamp rates mismatch: %v", event.Calls)
	}
	if _, ok := event.Calls[model.CallUnderlyingPrice]; ok {
		t.Fatalf("price must be absent when the oracle read reverts")
	}
}

func TestMoneyMarketDecoderLegacyAccrueInterest(t *testing.T) {
	legacy := mustABI(t, legacyAccrueABI)
	decoder := mustDecoder(t, DecoderConfig{})

	data, err := legacy.Events["AccrueInterest"].Inputs.NonIndexed().Pack(big.NewInt(5), big.NewInt(6), big.NewInt(7))
	if err != nil {
		t.Fatalf("pack legacy accrue: %v", err)
	}
	event, err := decoder.Decode(buildLogRecord(cUSDC, legacy.Events["AccrueInterest"].ID, data, nil), DecodeContext{})
	if err != nil {
		t.Fatalf("decode legacy accrue: %v", err)
	}
	accrue := event.Decoded.(model.AccrueInterestData)
	if accrue.CashPrior != "" || accrue.InterestAccumulated != "5" || accrue.BorrowIndex != "6" || accrue.TotalBorrows != "7" {
		t.Fatalf("legacy accrue mismatch: %+v", accrue)
	}
	if event.EventName != model.EventNameAccrueInterest {
		t.Fatalf("legacy event name mismatch: %s", event.EventName)
	}
}

func TestMoneyMarketDecoderMarketListed(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	erc20 := mustABI(t, erc20StringABI)
	erc20Bytes := mustABI(t, erc20Bytes32ABI)
	d := compoundDeployment(t)
	comptroller := common.HexToAddress(d.Comptroller)
	decoder := mustDecoder(t, DecoderConfig{})

	reader := newFakeReader()
	reader.set(t, cUSDC, erc20, "decimals", nil, uint8(8))
	reader.set(t, cUSDC, erc20, "symbol", nil, "cUSDC")
	reader.set(t, cUSDC, erc20, "name", nil, "Compound USD Coin")
	reader.set(t, cUSDC, mm, "underlying", nil, usdc)
	reader.set(t, cUSDC, mm, "reserveFactorMantissa", nil, big.NewInt(0))
	reader.set(t, usdc, erc20, "decimals", nil, uint8(6))
	var symbol [32]byte
	copy(symbol[:], "USDC")
	reader.set(t, usdc, erc20Bytes, "symbol", nil, symbol)
	reader.set(t, comptroller, mm, "liquidationIncentiveMantissa", nil, big.NewInt(1_080_000_000_000_000_000))

	data, err := mm.Events["MarketListed"].Inputs.NonIndexed().Pack(cUSDC)
	if err != nil {
		t.Fatalf("pack listed: %v", err)
	}
	log := buildLogRecord(comptroller, mm.Events["MarketListed"].ID, data, nil)
	cache := NewTokenMetaCache()
	ctx := DecodeContext{Chain: reader, Deployment: d, TokenMetaCache: cache}

	event, err := decoder.Decode(log, ctx)
	if err != nil {
		t.Fatalf("decode listed: %v", err)
	}
	listed := event.Decoded.(model.MarketListedData)
	if listed.Market != cUSDC.Hex() {
		t.Fatalf("listed market mismatch: %s", listed.Market)
	}

	calls := event.Calls
	if calls[model.CallDecimals] != "8" || calls[model.CallSymbol] != "cUSDC" || calls[model.CallName] != "Compound USD Coin" {
		t.Fatalf("share token reads mismatch: %v", calls)
	}
	if calls[model.CallUnderlying] != strings.ToLower(usdc.Hex()) {
		t.Fatalf("underlying mismatch: %v", calls)
	}
	if calls[model.CallUnderlyingDecimals] != "6" || calls[model.CallUnderlyingSymbol] != "USDC" {
		t.Fatalf("underlying reads mismatch: %v", calls)
	}
	if _, ok := calls[model.CallUnderlyingName]; ok {
		t.Fatalf("unreadable name must be absent")
	}
	if calls[model.CallReserveFactor] != "0" || calls[model.CallLiquidationIncentive] != "1080000000000000000" {
		t.Fatalf("parameter reads mismatch: %v", calls)
	}
	if _, ok := cache.Get(usdc); !ok {
		t.Fatalf("underlying metadata should be cached")
	}

	before := reader.calls
	if _, err := decoder.Decode(log, ctx); err != nil {
		t.Fatalf("decode listed again: %v", err)
	}
	// reserve factor, underlying, oracle and incentive; token metadata is cached
	if got := reader.calls - before; got != 4 {
		t.Fatalf("expected 4 reads with a warm cache, got %d", got)
	}
}

func TestMoneyMarketDecoderNativeMarketListing(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	erc20 := mustABI(t, erc20StringABI)
	d := compoundDeployment(t)
	native := common.HexToAddress(d.NativeMarket)
	decoder := mustDecoder(t, DecoderConfig{})

	reader := newFakeReader()
	reader.set(t, native, erc20, "decimals", nil, uint8(8))
	reader.set(t, native, mm, "underlying", nil, usdc)

	data, _ := mm.Events["MarketListed"].Inputs.NonIndexed().Pack(native)
	event, err := decoder.Decode(buildLogRecord(common.HexToAddress(d.Comptroller), mm.Events["MarketListed"].ID, data, nil), DecodeContext{Chain: reader, Deployment: d})
	if err != nil {
		t.Fatalf("decode listed: %v", err)
	}
	if _, ok := event.Calls[model.CallUnderlying]; ok {
		t.Fatalf("native market must not read an underlying token")
	}
	if event.Calls[model.CallDecimals] != "8" {
		t.Fatalf("share decimals mismatch: %v", event.Calls)
	}
}

func TestMoneyMarketDecoderRewardSpeedSides(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	decoder := mustDecoder(t, DecoderConfig{})

	cases := map[string]string{
		"CompSpeedUpdated":        model.RewardSideBoth,
		"CompSupplySpeedUpdated":  model.RewardSideSupply,
		"CompBorrowSpeedUpdated":  model.RewardSideBorrow,
		"VenusSupplySpeedUpdated": model.RewardSideSupply,
	}
	for abiName, side := range cases {
		event := mm.Events[abiName]
		data, err := event.Inputs.NonIndexed().Pack(big.NewInt(6_500_000_000_000_000))
		if err != nil {
			t.Fatalf("pack %s: %v", abiName, err)
		}
		decoded, err := decoder.Decode(buildLogRecord(alice, event.ID, data, []common.Hash{topicFromAddress(cUSDC)}), DecodeContext{})
		if err != nil {
			t.Fatalf("decode %s: %v", abiName, err)
		}
		speed := decoded.Decoded.(model.RewardSpeedUpdatedData)
		if decoded.EventName != model.EventNameRewardSpeedUpdated {
			t.Fatalf("%s: event name %s", abiName, decoded.EventName)
		}
		if speed.Side != side || speed.Market != cUSDC.Hex() || speed.NewSpeed != "6500000000000000" {
			t.Fatalf("%s: payload mismatch %+v", abiName, speed)
		}
	}
}

func TestMoneyMarketDecoderNativeUSDFeed(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	feedABI := mustABI(t, priceFeedABI)
	d := compoundDeployment(t)
	d.Pricing = config.PricingOracleNative
	d.NativeUSDFeed = strings.ToLower(ethFeed.Hex())
	decoder := mustDecoder(t, DecoderConfig{})

	reader := newFakeReader()
	reader.set(t, ethFeed, feedABI, "latestAnswer", nil, big.NewInt(2_000_00000000))
	reader.set(t, ethFeed, feedABI, "decimals", nil, uint8(8))

	data, _ := mm.Events["CompSpeedUpdated"].Inputs.NonIndexed().Pack(big.NewInt(1))
	event, err := decoder.Decode(buildLogRecord(alice, mm.Events["CompSpeedUpdated"].ID, data, []common.Hash{topicFromAddress(cUSDC)}), DecodeContext{Chain: reader, Deployment: d})
	if err != nil {
		t.Fatalf("decode speed: %v", err)
	}
	if got := event.Calls[model.CallNativePrice]; got != "2000000000000000000000" {
		t.Fatalf("native price mismatch: %q", got)
	}
}

func TestMoneyMarketDecoderActionPaused(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	decoder := mustDecoder(t, DecoderConfig{})

	data, err := mm.Events["ActionPaused"].Inputs.NonIndexed().Pack(cUSDC, "Borrow", true)
	if err != nil {
		t.Fatalf("pack paused: %v", err)
	}
	event, err := decoder.Decode(buildLogRecord(alice, mm.Events["ActionPaused"].ID, data, nil), DecodeContext{})
	if err != nil {
		t.Fatalf("decode paused: %v", err)
	}
	paused := event.Decoded.(model.ActionPausedData)
	if paused.Market != cUSDC.Hex() || paused.Action != "Borrow" || !paused.PauseState {
		t.Fatalf("paused mismatch: %+v", paused)
	}
}

func TestMoneyMarketDecoderRejectsMalformedLogs(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	decoder := mustDecoder(t, DecoderConfig{})

	data, _ := mm.Events["CompSpeedUpdated"].Inputs.NonIndexed().Pack(big.NewInt(1))
	if _, err := decoder.Decode(buildLogRecord(alice, mm.Events["CompSpeedUpdated"].ID, data, nil), DecodeContext{}); err == nil {
		t.Fatalf("expected error for missing indexed topic")
	}
	unknown := common.HexToHash("0x1234")
	if decoder.CanDecode(unknown.Hex()) {
		t.Fatalf("unknown topic must not be decodable")
	}
	if _, err := decoder.Decode(buildLogRecord(alice, unknown, data, nil), DecodeContext{}); err == nil {
		t.Fatalf("expected error for unknown topic")
	}
	if _, err := decoder.Decode(buildLogRecord(cUSDC, mm.Events["Mint"].ID, []byte{1, 2}, nil), DecodeContext{}); err == nil {
		t.Fatalf("expected error for truncated data")
	}
}

func TestMoneyMarketDecoderTopic0Map(t *testing.T) {
	mm := mustABI(t, moneyMarketABI)
	renamed := common.HexToHash("0xfeed")
	decoder := mustDecoder(t, DecoderConfig{Topic0Map: map[string]string{renamed.Hex(): "CompSupplySpeedUpdated"}})

	data, _ := mm.Events["CompSupplySpeedUpdated"].Inputs.NonIndexed().Pack(big.NewInt(2))
	event, err := decoder.Decode(buildLogRecord(alice, renamed, data, []common.Hash{topicFromAddress(cUSDC)}), DecodeContext{})
	if err != nil {
		t.Fatalf("decode renamed: %v", err)
	}
	if event.Decoded.(model.RewardSpeedUpdatedData).Side != model.RewardSideSupply {
		t.Fatalf("renamed event side mismatch")
	}

	if _, err := NewMoneyMarketDecoder(DecoderConfig{Topic0Map: map[string]string{renamed.Hex(): "Swap"}}); err == nil {
		t.Fatalf("expected error for unknown event name")
	}
	if len(decoder.Topics()) != len(mm.Events)+2 {
		t.Fatalf("topic list mismatch: %d", len(decoder.Topics()))
	}
}

func buildLogRecord(contract common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     1,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     contract.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
