// Package balance folds normalized transactions into per-token net balances.
package balance

import (
	"sort"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/shopspring/decimal"
)

// Balances maps a (chain, contract, symbol) key to a signed net amount.
type Balances map[ledger.BalanceKey]decimal.Decimal

// Fold sums every transaction's signed value into its key. Decimal addition
// is exact, so the result does not depend on input order.
func Fold(txs []ledger.Transaction) Balances {
	out := make(Balances)
	for _, tx := range txs {
		key := tx.Key()
		out[key] = out[key].Add(tx.Signed())
	}
	return out
}

// Merge combines partial folds into a new Balances.
func Merge(parts ...Balances) Balances {
	out := make(Balances)
	for _, part := range parts {
		for key, amount := range part {
			out[key] = out[key].Add(amount)
		}
	}
	return out
}

// Drift compares a fold-derived balance with the authoritative one.
type Drift struct {
	Key           ledger.BalanceKey
	Derived       decimal.Decimal
	Authoritative decimal.Decimal
}

// ApplySnapshot returns a copy of b in which every entry for chain is
// replaced by the snapshot. Fold-derived entries for chain never survive;
// those that disagree with the snapshot are reported as drift.
func ApplySnapshot(b Balances, chain ledger.Chain, snapshot ledger.Snapshot) (Balances, []Drift) {
	out := make(Balances, len(b)+len(snapshot))
	derived := make(map[string]decimal.Decimal)
	for key, amount := range b {
		if key.Chain == chain {
			derived[key.ContractAddress] = derived[key.ContractAddress].Add(amount)
			continue
		}
		out[key] = amount
	}

	for token, amount := range snapshot {
		key := ledger.BalanceKey{Chain: chain, ContractAddress: token, TokenSymbol: token}
		out[key] = amount
	}

	var drift []Drift
	for token, amount := range derived {
		authoritative := snapshot[token]
		if amount.Equal(authoritative) {
			continue
		}
		drift = append(drift, Drift{
			Key:           ledger.BalanceKey{Chain: chain, ContractAddress: token, TokenSymbol: token},
			Derived:       amount,
			Authoritative: authoritative,
		})
	}
	sort.Slice(drift, func(i, j int) bool {
		return drift[i].Key.ContractAddress < drift[j].Key.ContractAddress
	})
	return out, drift
}
