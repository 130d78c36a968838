package pricing

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/metrics"
	"github.com/shopspring/decimal"
)

// platforms maps chains to CoinGecko asset platform ids.
var platforms = map[ledger.Chain]string{
	ledger.Ethereum:  "ethereum",
	ledger.Arbitrum:  "arbitrum-one",
	ledger.Polygon:   "polygon-pos",
	ledger.BSC:       "binance-smart-chain",
	ledger.Avalanche: "avalanche",
	ledger.Solana:    "solana",
}

// NativeSOLCoinID is the CoinGecko id used for the SOL sentinel.
const NativeSOLCoinID = "solana"

// Platform returns the pricing platform id for chain. Unmapped chains pass
// through their own name.
func Platform(c ledger.Chain) string {
	if p, ok := platforms[c]; ok {
		return p
	}
	return string(c)
}

// PriceSource is the pricing API the resolver consumes.
type PriceSource interface {
	TokenPrices(ctx context.Context, platform string, addresses []string) (map[string]decimal.Decimal, error)
	CoinPrice(ctx context.Context, id string) (decimal.Decimal, error)
}

// Lookup records how one pricing request ended.
type Lookup struct {
	Chain      ledger.Chain
	Platform   string // platform id, or the coin id for native lookups
	Requested  int
	Unresolved int
	Outcome    ledger.Outcome
}

// Resolution is the price index plus a record of every lookup made.
type Resolution struct {
	Prices  ledger.PriceIndex
	Lookups []Lookup
}

// Resolver turns observed token addresses into a PriceIndex.
type Resolver struct {
	source  PriceSource
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResolver creates a Resolver. If m is nil, no metrics are recorded.
func NewResolver(source PriceSource, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	return &Resolver{source: source, metrics: m, logger: logger}
}

// Resolve prices every address in addrs. It never fails: an address the API
// does not price, or whose whole chain lookup failed, gets price zero. The
// NativeSOL sentinel is priced by its own lookup, so a failure there leaves
// SPL prices intact and vice versa.
func (r *Resolver) Resolve(ctx context.Context, addrs ledger.AddressSet) Resolution {
	res := Resolution{Prices: make(ledger.PriceIndex)}

	chains := make([]ledger.Chain, 0, len(addrs))
	for c := range addrs {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	for _, chain := range chains {
		tokens := make([]string, 0, len(addrs[chain]))
		native := false
		for addr := range addrs[chain] {
			if chain == ledger.Solana && addr == ledger.NativeSOL {
				native = true
				continue
			}
			tokens = append(tokens, addr)
		}
		sort.Strings(tokens)

		if len(tokens) > 0 {
			res.Lookups = append(res.Lookups, r.resolveTokens(ctx, chain, tokens, res.Prices))
		}
		if native {
			res.Lookups = append(res.Lookups, r.resolveNativeSOL(ctx, res.Prices))
		}
	}
	return res
}

func (r *Resolver) resolveTokens(ctx context.Context, chain ledger.Chain, tokens []string, prices ledger.PriceIndex) Lookup {
	platform := Platform(chain)
	lookup := Lookup{Chain: chain, Platform: platform, Requested: len(tokens)}

	quoted, err := r.source.TokenPrices(ctx, platform, tokens)
	if r.metrics != nil {
		r.metrics.RecordPriceLookup(platform, err)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "price lookup failed, chain left unpriced",
			"chain", chain,
			"platform", platform,
			"tokens", len(tokens),
			"error", err,
		)
		quoted = nil
		lookup.Outcome = ledger.Outcome{Status: ledger.StatusFailed, Err: err}
	}

	// EVM responses are keyed by lower-case address. Mints are case
	// sensitive, but fall back to a folded match in case the API folds them.
	folded := make(map[string]decimal.Decimal, len(quoted))
	for key, price := range quoted {
		folded[strings.ToLower(key)] = price
	}

	for _, token := range tokens {
		price, ok := quoted[token]
		if !ok {
			price, ok = folded[strings.ToLower(token)]
		}
		if !ok || price.IsNegative() {
			price = decimal.Zero
		}
		if price.IsZero() {
			lookup.Unresolved++
		}
		prices[ledger.NewPriceKey(chain, token)] = price
	}

	if err == nil {
		lookup.Outcome = ledger.Outcome{Status: ledger.StatusOK}
		if lookup.Unresolved == len(tokens) {
			lookup.Outcome.Status = ledger.StatusEmpty
		}
	}
	if r.metrics != nil && lookup.Unresolved > 0 {
		r.metrics.RecordUnresolvedPrices(string(chain), lookup.Unresolved)
	}

	r.logger.DebugContext(ctx, "resolved token prices",
		"chain", chain,
		"platform", platform,
		"requested", len(tokens),
		"unresolved", lookup.Unresolved,
	)
	return lookup
}

func (r *Resolver) resolveNativeSOL(ctx context.Context, prices ledger.PriceIndex) Lookup {
	lookup := Lookup{Chain: ledger.Solana, Platform: NativeSOLCoinID, Requested: 1}

	price, err := r.source.CoinPrice(ctx, NativeSOLCoinID)
	if r.metrics != nil {
		r.metrics.RecordPriceLookup(NativeSOLCoinID, err)
	}
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "SOL price lookup failed, native SOL left unpriced", "error", err)
		price = decimal.Zero
		lookup.Outcome = ledger.Outcome{Status: ledger.StatusFailed, Err: err}
	case price.IsPositive():
		lookup.Outcome = ledger.Outcome{Status: ledger.StatusOK}
	default:
		price = decimal.Zero
		lookup.Outcome = ledger.Outcome{Status: ledger.StatusEmpty}
	}
	if price.IsZero() {
		lookup.Unresolved = 1
		if r.metrics != nil {
			r.metrics.RecordUnresolvedPrices(string(ledger.Solana), 1)
		}
	}

	prices[ledger.NewPriceKey(ledger.Solana, ledger.NativeSOL)] = price
	return lookup
}
