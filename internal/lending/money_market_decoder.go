package lending

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"lendingScope/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map maps extra topic0 hashes to an event name of the money-market
	// ABI, for forks that rename an event but keep its layout.
	Topic0Map map[string]string
}

type topicSpec struct {
	event abi.Event
	name  string
	side  string
}

// MoneyMarketDecoder decodes market token and comptroller events.
type MoneyMarketDecoder struct {
	mm     abi.ABI
	topics map[string]topicSpec
}

// rewardSides maps reward speed event names to the side they update.
var rewardSides = map[string]string{
	"CompSpeedUpdated":        model.RewardSideBoth,
	"CompSupplySpeedUpdated":  model.RewardSideSupply,
	"CompBorrowSpeedUpdated":  model.RewardSideBorrow,
	"VenusSpeedUpdated":       model.RewardSideBoth,
	"VenusSupplySpeedUpdated": model.RewardSideSupply,
	"VenusBorrowSpeedUpdated": model.RewardSideBorrow,
}

// NewMoneyMarketDecoder builds a decoder for every event in the money-market ABI.
func NewMoneyMarketDecoder(cfg DecoderConfig) (*MoneyMarketDecoder, error) {
	mm, err := MoneyMarketABI()
	if err != nil {
		return nil, fmt.Errorf("parse money market abi: %w", err)
	}
	legacy, err := LegacyAccrueABI()
	if err != nil {
		return nil, fmt.Errorf("parse legacy accrue abi: %w", err)
	}

	topics := make(map[string]topicSpec)
	for abiName, event := range mm.Events {
		topics[strings.ToLower(event.ID.Hex())] = specFor(abiName, event)
	}
	legacyEvent := legacy.Events[model.EventNameAccrueInterest]
	topics[strings.ToLower(legacyEvent.ID.Hex())] = specFor(model.EventNameAccrueInterest, legacyEvent)

	for topic0, abiName := range cfg.Topic0Map {
		event, ok := mm.Events[strings.TrimSpace(abiName)]
		if !ok {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", abiName)
		}
		if topic0 == "" {
			continue
		}
		topics[strings.ToLower(topic0)] = specFor(event.Name, event)
	}

	return &MoneyMarketDecoder{mm: mm, topics: topics}, nil
}

func specFor(abiName string, event abi.Event) topicSpec {
	if side, ok := rewardSides[abiName]; ok {
		return topicSpec{event: event, name: model.EventNameRewardSpeedUpdated, side: side}
	}
	return topicSpec{event: event, name: abiName}
}

// CanDecode checks if the topic0 is supported.
func (d *MoneyMarketDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topics[strings.ToLower(topic0)]
	return ok
}

// Topics returns every supported topic0, sorted, for log filters.
func (d *MoneyMarketDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topics))
	for topic0 := range d.topics {
		out = append(out, common.HexToHash(topic0))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// Decode converts a LogRecord into a TypedEvent and attaches the contract reads
// its transition needs, resolved at the log's block.
func (d *MoneyMarketDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	spec, ok := d.topics[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid contract address: %s", log.Address)
	}

	f, err := decodeFields(spec.event, log)
	if err != nil {
		return nil, err
	}
	decoded, err := buildPayload(spec, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.event.Name, err)
	}

	event := buildTypedEvent(log, spec.name, decoded)
	if ctx.Chain != nil && !ctx.SkipCalls {
		event.Calls = attachCalls(ctx, d.mm, log, spec.name, decoded)
	}
	return event, nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         raw,
	}
}

func buildPayload(spec topicSpec, f fields) (interface{}, error) {
	switch spec.name {
	case model.EventNameMarketListed:
		market, err := f.address("cToken")
		return model.MarketListedData{Market: market}, err
	case model.EventNameAccrueInterest:
		var data model.AccrueInterestData
		var err error
		if _, ok := f["cashPrior"]; ok {
			if data.CashPrior, err = f.uint("cashPrior"); err != nil {
				return nil, err
			}
		}
		if data.InterestAccumulated, err = f.uint("interestAccumulated"); err != nil {
			return nil, err
		}
		if data.BorrowIndex, err = f.uint("borrowIndex"); err != nil {
			return nil, err
		}
		data.TotalBorrows, err = f.uint("totalBorrows")
		return data, err
	case model.EventNameMint:
		return collect(func(data *model.MintData) []error {
			return []error{
				f.into(&data.Minter, "minter", f.address),
				f.into(&data.MintAmount, "mintAmount", f.uint),
				f.into(&data.MintTokens, "mintTokens", f.uint),
			}
		})
	case model.EventNameRedeem:
		return collect(func(data *model.RedeemData) []error {
			return []error{
				f.into(&data.Redeemer, "redeemer", f.address),
				f.into(&data.RedeemAmount, "redeemAmount", f.uint),
				f.into(&data.RedeemTokens, "redeemTokens", f.uint),
			}
		})
	case model.EventNameBorrow:
		return collect(func(data *model.BorrowData) []error {
			return []error{
				f.into(&data.Borrower, "borrower", f.address),
				f.into(&data.BorrowAmount, "borrowAmount", f.uint),
				f.into(&data.AccountBorrows, "accountBorrows", f.uint),
				f.into(&data.TotalBorrows, "totalBorrows", f.uint),
			}
		})
	case model.EventNameRepayBorrow:
		return collect(func(data *model.RepayBorrowData) []error {
			return []error{
				f.into(&data.Payer, "payer", f.address),
				f.into(&data.Borrower, "borrower", f.address),
				f.into(&data.RepayAmount, "repayAmount", f.uint),
				f.into(&data.AccountBorrows, "accountBorrows", f.uint),
				f.into(&data.TotalBorrows, "totalBorrows", f.uint),
			}
		})
	case model.EventNameLiquidateBorrow:
		return collect(func(data *model.LiquidateBorrowData) []error {
			return []error{
				f.into(&data.Liquidator, "liquidator", f.address),
				f.into(&data.Borrower, "borrower", f.address),
				f.into(&data.RepayAmount, "repayAmount", f.uint),
				f.into(&data.CollateralMarket, "cTokenCollateral", f.address),
				f.into(&data.SeizeTokens, "seizeTokens", f.uint),
			}
		})
	case model.EventNameNewReserveFactor:
		return collect(func(data *model.NewReserveFactorData) []error {
			return []error{
				f.into(&data.OldReserveFactorMantissa, "oldReserveFactorMantissa", f.uint),
				f.into(&data.NewReserveFactorMantissa, "newReserveFactorMantissa", f.uint),
			}
		})
	case model.EventNameNewCollateralFactor:
		return collect(func(data *model.NewCollateralFactorData) []error {
			return []error{
				f.into(&data.Market, "cToken", f.address),
				f.into(&data.OldCollateralFactorMantissa, "oldCollateralFactorMantissa", f.uint),
				f.into(&data.NewCollateralFactorMantissa, "newCollateralFactorMantissa", f.uint),
			}
		})
	case model.EventNameNewLiquidationIncentive:
		return collect(func(data *model.NewLiquidationIncentiveData) []error {
			return []error{
				f.into(&data.OldLiquidationIncentiveMantissa, "oldLiquidationIncentiveMantissa", f.uint),
				f.into(&data.NewLiquidationIncentiveMantissa, "newLiquidationIncentiveMantissa", f.uint),
			}
		})
	case model.EventNameNewPriceOracle:
		return collect(func(data *model.NewPriceOracleData) []error {
			return []error{
				f.into(&data.OldPriceOracle, "oldPriceOracle", f.address),
				f.into(&data.NewPriceOracle, "newPriceOracle", f.address),
			}
		})
	case model.EventNameActionPaused:
		var data model.ActionPausedData
		var err error
		if data.Market, err = f.address("cToken"); err != nil {
			return nil, err
		}
		if data.Action, err = f.text("action"); err != nil {
			return nil, err
		}
		data.PauseState, err = f.boolean("pauseState")
		return data, err
	case model.EventNameRewardSpeedUpdated:
		data := model.RewardSpeedUpdatedData{Side: spec.side}
		var err error
		key := "cToken"
		if _, ok := f[key]; !ok {
			key = "vToken"
		}
		if data.Market, err = f.address(key); err != nil {
			return nil, err
		}
		data.NewSpeed, err = f.uint("newSpeed")
		return data, err
	default:
		return nil, fmt.Errorf("unsupported event name: %s", spec.name)
	}
}

// fields holds an event's indexed and non-indexed arguments by ABI name.
type fields map[string]interface{}

func decodeFields(event abi.Event, log model.LogRecord) (fields, error) {
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	f := make(fields)
	if len(indexedTopics) > 0 {
		if err := abi.ParseTopicsIntoMap(f, indexedArguments(event.Inputs), indexedTopics); err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
	}
	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) == 0 {
		return f, nil
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := nonIndexed.UnpackIntoMap(f, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return f, nil
}

func (f fields) address(key string) (string, error) {
	value, ok := f[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	addr, err := asAddress(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return addr.Hex(), nil
}

func (f fields) uint(key string) (string, error) {
	value, ok := f[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	n, err := asBigInt(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return n.String(), nil
}

func (f fields) text(key string) (string, error) {
	value, ok := f[key].(string)
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	return value, nil
}

func (f fields) boolean(key string) (bool, error) {
	value, ok := f[key].(bool)
	if !ok {
		return false, fmt.Errorf("missing field %s", key)
	}
	return value, nil
}

func (f fields) into(dst *string, key string, get func(string) (string, error)) error {
	value, err := get(key)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

// collect fills a payload and returns it by value, or the first field error.
func collect[T any](fill func(*T) []error) (interface{}, error) {
	var data T
	if err := firstError(fill(&data)); err != nil {
		return nil, err
	}
	return data, nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
