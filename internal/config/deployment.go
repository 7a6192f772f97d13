package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"lendingScope/internal/model"
)

// ErrUnknownDeployment is returned when no descriptor matches a network/slug pair.
var ErrUnknownDeployment = errors.New("unknown deployment")

// PricingMode selects how oracle reads become USD prices.
type PricingMode string

const (
	// PricingOracleUSD treats oracle prices as USD scaled by 10^(36-decimals).
	PricingOracleUSD PricingMode = "oracle-usd"
	// PricingOracleNative treats oracle prices as native-asset denominated and
	// multiplies by the native market's USD price.
	PricingOracleNative PricingMode = "oracle-native"
)

// TokenMeta describes a token whose metadata is fixed by the deployment.
type TokenMeta struct {
	Address  string
	Name     string
	Symbol   string
	Decimals uint8
}

// FeeComponent is an extra protocol-side share of accrued interest on top of
// the reserve factor, as a fraction (0.05 == 5%).
type FeeComponent struct {
	Name     string
	Fraction decimal.Decimal
}

// OracleOverride pins a market's price over an inclusive block range where the
// oracle is known to have reported a wrong value.
type OracleOverride struct {
	Market    string
	FromBlock uint64
	ToBlock   uint64
	PriceUSD  decimal.Decimal
}

// Deployment is the per-fork descriptor driving the accounting core.
type Deployment struct {
	Network     model.Network
	Name        string
	Slug        string
	Comptroller string

	// UnitsPerYear is blocks per year for block-based rates or seconds per year
	// for timestamp-based rates.
	UnitsPerYear uint64
	RateBasis    model.RateBasis

	// RewardBasis is the unit reward speeds are quoted in.
	RewardBasis     model.RateBasis
	SecondsPerBlock decimal.Decimal

	NativeToken       TokenMeta
	NativeMarket      string
	RewardToken       *TokenMeta
	RewardPriceMarket string

	Pricing PricingMode
	// NativeUSDFeed is a Chainlink-style aggregator quoting the native asset in
	// USD. Required for oracle-native pricing.
	NativeUSDFeed string

	FeeComponents   []FeeComponent
	OracleOverrides []OracleOverride

	// ListingOrderSuspect flags forks whose listing step may pass underlying and
	// share token metadata in swapped order. The order is never corrected.
	ListingOrderSuspect bool
}

// IsZero reports whether this is the sentinel descriptor.
func (d Deployment) IsZero() bool {
	return d.Network == model.NetworkUnknown || d.Comptroller == ""
}

// ProtocolShare returns the fraction of accrued interest kept by the protocol
// on top of the market's reserve factor.
func (d Deployment) ProtocolShare() decimal.Decimal {
	share := decimal.Zero
	for _, fee := range d.FeeComponents {
		share = share.Add(fee.Fraction)
	}
	return share
}

// IsNativeMarket reports whether the market's underlying is the native asset.
func (d Deployment) IsNativeMarket(market string) bool {
	return d.NativeMarket != "" && model.ID(d.NativeMarket) == model.ID(market)
}

// Registry resolves deployment descriptors by network and slug.
type Registry struct {
	entries map[string]Deployment
}

// NewRegistry returns a registry seeded with the built-in deployments.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]Deployment)}
	for _, d := range builtinDeployments() {
		r.Add(d)
	}
	return r
}

// Add registers or replaces a descriptor.
func (r *Registry) Add(d Deployment) {
	r.entries[registryKey(d.Network, d.Slug)] = d
}

// Lookup returns the descriptor for a network/slug pair.
func (r *Registry) Lookup(network model.Network, slug string) (Deployment, error) {
	d, ok := r.entries[registryKey(network, slug)]
	if !ok {
		return Deployment{}, fmt.Errorf("%w: %s/%s", ErrUnknownDeployment, network, slug)
	}
	return d, nil
}

// Resolve returns the descriptor for the requested network and slug. Unknown
// requests resolve to the zero-value sentinel and are logged at error level, so
// an engine built on it degrades to a no-op instead of failing the pipeline.
func (r *Registry) Resolve(network, slug string, logger *zap.Logger) Deployment {
	if logger == nil {
		logger = zap.NewNop()
	}
	n, err := model.ParseNetwork(network)
	if err != nil {
		logger.Error("unsupported network, using empty deployment", zap.String("network", network), zap.Error(err))
		return Deployment{}
	}
	d, err := r.Lookup(n, slug)
	if err != nil {
		logger.Error("unsupported deployment, using empty deployment",
			zap.String("network", string(n)),
			zap.String("protocol", slug),
			zap.Error(err),
		)
		return Deployment{}
	}
	return d
}

func registryKey(network model.Network, slug string) string {
	return string(network) + "/" + strings.ToLower(strings.TrimSpace(slug))
}

func builtinDeployments() []Deployment {
	return []Deployment{
		{
			Network:         model.NetworkMainnet,
			Name:            "Compound v2",
			Slug:            "compound-v2",
			Comptroller:     "0x3d9819210a31b4961b30ef54be2aed79b9c9cd3b",
			UnitsPerYear:    2102400,
			RateBasis:       model.RateBasisBlock,
			RewardBasis:     model.RateBasisBlock,
			SecondsPerBlock: decimal.NewFromInt(12),
			NativeToken: TokenMeta{
				Address:  "0x0000000000000000000000000000000000000000",
				Name:     "Ether",
				Symbol:   "ETH",
				Decimals: 18,
			},
			NativeMarket: "0x4ddc2d193948926d02f9b1fe9e1daa0718270ed5",
			RewardToken: &TokenMeta{
				Address:  "0xc00e94cb662c3520282e6f5717214004a7f26888",
				Name:     "Compound",
				Symbol:   "COMP",
				Decimals: 18,
			},
			RewardPriceMarket: "0x70e36f6bf80a52b3b46b3af8e106cc0ed743e8e4",
			Pricing:           PricingOracleUSD,
		},
		{
			Network:         model.NetworkBSC,
			Name:            "Venus",
			Slug:            "venus",
			Comptroller:     "0xfd36e2c2a6789db23113685031d7f16329158384",
			UnitsPerYear:    10512000,
			RateBasis:       model.RateBasisBlock,
			RewardBasis:     model.RateBasisBlock,
			SecondsPerBlock: decimal.NewFromInt(3),
			NativeToken: TokenMeta{
				Address:  "0x0000000000000000000000000000000000000000",
				Name:     "BNB",
				Symbol:   "BNB",
				Decimals: 18,
			},
			NativeMarket: "0xa07c5b74c9b40447a954e1466938b865b6bbea36",
			RewardToken: &TokenMeta{
				Address:  "0xcf6bb5389c92bdda8a3747ddb454cb7a64626c63",
				Name:     "Venus",
				Symbol:   "XVS",
				Decimals: 18,
			},
			RewardPriceMarket: "0x151b1e2635a717bcdc836ecd6fbb62b674fe3e1d",
			Pricing:           PricingOracleUSD,
		},
	}
}

type deploymentFile struct {
	Deployments []deploymentEntry `yaml:"deployments"`
}

type deploymentEntry struct {
	Network             string          `yaml:"network"`
	Name                string          `yaml:"name"`
	Slug                string          `yaml:"slug"`
	Comptroller         string          `yaml:"comptroller"`
	UnitsPerYear        uint64          `yaml:"units_per_year"`
	RateBasis           string          `yaml:"rate_basis"`
	RewardBasis         string          `yaml:"reward_basis"`
	SecondsPerBlock     string          `yaml:"seconds_per_block"`
	NativeToken         tokenEntry      `yaml:"native_token"`
	NativeMarket        string          `yaml:"native_market"`
	RewardToken         *tokenEntry     `yaml:"reward_token"`
	RewardPriceMarket   string          `yaml:"reward_price_market"`
	Pricing             string          `yaml:"pricing"`
	NativeUSDFeed       string          `yaml:"native_usd_feed"`
	FeeComponents       []feeEntry      `yaml:"fee_components"`
	OracleOverrides     []overrideEntry `yaml:"oracle_overrides"`
	ListingOrderSuspect bool            `yaml:"listing_order_suspect"`
}

type tokenEntry struct {
	Address  string `yaml:"address"`
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

type feeEntry struct {
	Name     string `yaml:"name"`
	Fraction string `yaml:"fraction"`
}

type overrideEntry struct {
	Market    string `yaml:"market"`
	FromBlock uint64 `yaml:"from_block"`
	ToBlock   uint64 `yaml:"to_block"`
	PriceUSD  string `yaml:"price_usd"`
}

// LoadDeployments reads descriptors from a YAML file and adds them to the registry.
func (r *Registry) LoadDeployments(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read deployments: %w", err)
	}
	return r.ParseDeployments(data)
}

// ParseDeployments parses YAML descriptors and adds them to the registry.
func (r *Registry) ParseDeployments(data []byte) error {
	var file deploymentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse deployments: %w", err)
	}
	for i, entry := range file.Deployments {
		d, err := entry.deployment()
		if err != nil {
			return fmt.Errorf("deployment %d (%s): %w", i, entry.Slug, err)
		}
		r.Add(d)
	}
	return nil
}

func (e deploymentEntry) deployment() (Deployment, error) {
	network, err := model.ParseNetwork(e.Network)
	if err != nil {
		return Deployment{}, err
	}
	if e.Slug == "" {
		return Deployment{}, fmt.Errorf("slug is required")
	}
	if e.Comptroller == "" {
		return Deployment{}, fmt.Errorf("comptroller is required")
	}
	if e.UnitsPerYear == 0 {
		return Deployment{}, fmt.Errorf("units_per_year must be > 0")
	}
	rateBasis, err := model.ParseRateBasis(e.RateBasis)
	if err != nil {
		return Deployment{}, err
	}
	rewardBasis, err := model.ParseRateBasis(e.RewardBasis)
	if err != nil {
		return Deployment{}, err
	}

	secondsPerBlock := decimal.Zero
	if e.SecondsPerBlock != "" {
		secondsPerBlock, err = decimal.NewFromString(e.SecondsPerBlock)
		if err != nil {
			return Deployment{}, fmt.Errorf("seconds_per_block: %w", err)
		}
	}

	pricing := PricingMode(strings.ToLower(e.Pricing))
	switch pricing {
	case "":
		pricing = PricingOracleUSD
	case PricingOracleUSD:
	case PricingOracleNative:
		if e.NativeUSDFeed == "" {
			return Deployment{}, fmt.Errorf("native_usd_feed is required for %s pricing", pricing)
		}
	default:
		return Deployment{}, fmt.Errorf("unknown pricing mode: %s", e.Pricing)
	}

	d := Deployment{
		Network:             network,
		Name:                e.Name,
		Slug:                strings.ToLower(e.Slug),
		Comptroller:         model.ID(e.Comptroller),
		UnitsPerYear:        e.UnitsPerYear,
		RateBasis:           rateBasis,
		RewardBasis:         rewardBasis,
		SecondsPerBlock:     secondsPerBlock,
		NativeToken:         e.NativeToken.meta(),
		NativeMarket:        model.ID(e.NativeMarket),
		RewardPriceMarket:   model.ID(e.RewardPriceMarket),
		Pricing:             pricing,
		NativeUSDFeed:       model.ID(e.NativeUSDFeed),
		ListingOrderSuspect: e.ListingOrderSuspect,
	}
	if e.RewardToken != nil {
		meta := e.RewardToken.meta()
		d.RewardToken = &meta
	}

	for _, fee := range e.FeeComponents {
		fraction, err := decimal.NewFromString(fee.Fraction)
		if err != nil {
			return Deployment{}, fmt.Errorf("fee component %s: %w", fee.Name, err)
		}
		if fraction.IsNegative() || fraction.GreaterThan(decimal.NewFromInt(1)) {
			return Deployment{}, fmt.Errorf("fee component %s out of range: %s", fee.Name, fee.Fraction)
		}
		d.FeeComponents = append(d.FeeComponents, FeeComponent{Name: fee.Name, Fraction: fraction})
	}

	for _, o := range e.OracleOverrides {
		price, err := decimal.NewFromString(o.PriceUSD)
		if err != nil {
			return Deployment{}, fmt.Errorf("oracle override %s: %w", o.Market, err)
		}
		if o.ToBlock < o.FromBlock {
			return Deployment{}, fmt.Errorf("oracle override %s: to_block < from_block", o.Market)
		}
		d.OracleOverrides = append(d.OracleOverrides, OracleOverride{
			Market:    model.ID(o.Market),
			FromBlock: o.FromBlock,
			ToBlock:   o.ToBlock,
			PriceUSD:  price,
		})
	}

	return d, nil
}

func (t tokenEntry) meta() TokenMeta {
	return TokenMeta{
		Address:  model.ID(t.Address),
		Name:     t.Name,
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
	}
}
