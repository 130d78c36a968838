package ledger

import (
	"fmt"
	"strings"
)

// Chain identifies a source network.
type Chain string

const (
	Ethereum  Chain = "ethereum"
	Arbitrum  Chain = "arbitrum"
	Polygon   Chain = "polygon"
	BSC       Chain = "bsc"
	Avalanche Chain = "avalanche"
	Solana    Chain = "solana"
)

// EVMChains lists the EVM networks in processing order.
var EVMChains = []Chain{Ethereum, Arbitrum, Polygon, BSC, Avalanche}

// chainIDs maps EVM chains to the ids used by the Etherscan v2 API.
var chainIDs = map[Chain]int64{
	Ethereum:  1,
	Arbitrum:  42161,
	Polygon:   137,
	BSC:       56,
	Avalanche: 43114,
}

// ChainID returns the Etherscan v2 chain id. ok is false for non-EVM chains.
func (c Chain) ChainID() (id int64, ok bool) {
	id, ok = chainIDs[c]
	return id, ok
}

// IsEVM reports whether c is one of the supported EVM chains.
func (c Chain) IsEVM() bool {
	_, ok := chainIDs[c]
	return ok
}

func (c Chain) String() string {
	return string(c)
}

// ParseChain parses a chain name, case-insensitively.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	if c == Solana || c.IsEVM() {
		return c, nil
	}
	return "", fmt.Errorf("unsupported chain %q", s)
}

// NormalizeAddress returns the canonical form of a token identifier on chain c.
// EVM contract addresses are case-insensitive hex and are lower-cased; Solana
// mints are base58 and case-sensitive, so they are returned unchanged.
func NormalizeAddress(c Chain, address string) string {
	if c.IsEVM() {
		return strings.ToLower(address)
	}
	return address
}

// Scope selects which chain families a run covers.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeEVM    Scope = "evm"
	ScopeSolana Scope = "solana"
)

// ParseScope parses a scope name; the empty string means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeAll, nil
	case ScopeAll, ScopeEVM, ScopeSolana:
		return sc, nil
	default:
		return "", fmt.Errorf("unsupported scope %q (want all, evm or solana)", s)
	}
}

// IncludesEVM reports whether the scope covers the EVM chains.
func (s Scope) IncludesEVM() bool { return s == ScopeAll || s == ScopeEVM }

// IncludesSolana reports whether the scope covers Solana.
func (s Scope) IncludesSolana() bool { return s == ScopeAll || s == ScopeSolana }
