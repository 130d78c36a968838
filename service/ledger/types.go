package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// NativeSOL is the contract-address sentinel for native Solana value.
const NativeSOL = "SOL"

// Direction is the balance impact of a transfer from the wallet's point of view.
type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// Transaction is the chain-independent transfer record every adapter produces.
// Value is always non-negative; the sign of the balance impact lives in Direction.
type Transaction struct {
	Chain           Chain
	Timestamp       *time.Time // nil when the source omitted the block time
	Hash            string
	From            string
	To              string
	TokenName       string
	TokenSymbol     string
	ContractAddress string
	Value           decimal.Decimal
	Direction       Direction
}

// Signed returns Value with the sign implied by Direction.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == Out {
		return t.Value.Neg()
	}
	return t.Value
}

// BalanceKey identifies one balance summary row.
type BalanceKey struct {
	Chain           Chain
	ContractAddress string
	TokenSymbol     string
}

// Key returns the balance key the transaction contributes to.
func (t Transaction) Key() BalanceKey {
	return BalanceKey{Chain: t.Chain, ContractAddress: t.ContractAddress, TokenSymbol: t.TokenSymbol}
}

// PriceKey identifies a priced token. ContractAddress is stored normalized
// (see NormalizeAddress).
type PriceKey struct {
	Chain           Chain
	ContractAddress string
}

// NewPriceKey builds a PriceKey with the address normalized for the chain.
func NewPriceKey(c Chain, address string) PriceKey {
	return PriceKey{Chain: c, ContractAddress: NormalizeAddress(c, address)}
}

// PriceIndex maps tokens to USD unit prices. A missing entry and a zero entry
// both mean "unresolved".
type PriceIndex map[PriceKey]decimal.Decimal

// Price returns the USD unit price for address on chain, or zero.
func (p PriceIndex) Price(c Chain, address string) decimal.Decimal {
	if price, ok := p[NewPriceKey(c, address)]; ok {
		return price
	}
	return decimal.Zero
}

// AddressSet collects the token identifiers observed per chain.
type AddressSet map[Chain]map[string]struct{}

// Add records address under chain, normalized.
func (s AddressSet) Add(c Chain, address string) {
	if address == "" {
		return
	}
	if s[c] == nil {
		s[c] = make(map[string]struct{})
	}
	s[c][NormalizeAddress(c, address)] = struct{}{}
}

// FetchStatus classifies the outcome of one unit of network work.
type FetchStatus string

const (
	StatusOK     FetchStatus = "ok"     // data returned
	StatusEmpty  FetchStatus = "empty"  // source answered with no activity
	StatusFailed FetchStatus = "failed" // lookup failed, treated as no data
)

// Outcome describes how a degraded-tolerant fetch ended. Err carries the
// reason for StatusFailed, a source-provided reason for StatusEmpty, or the
// failed sub-queries of an otherwise usable fetch.
type Outcome struct {
	Status FetchStatus
	Err    error
}

// OK reports whether data was returned.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// Snapshot is an authoritative point-in-time balance per token identifier
// (mint address or NativeSOL), in token-native units.
type Snapshot map[string]decimal.Decimal
