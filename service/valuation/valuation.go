// Package valuation prices ledger rows and balances in USD and drops dust.
package valuation

import (
	"sort"

	"github.com/brojonat/walletexport/service/balance"
	"github.com/brojonat/walletexport/service/ledger"
	"github.com/shopspring/decimal"
)

// MaterialityFloor is the USD value below which a row is dropped.
var MaterialityFloor = decimal.NewFromInt(1)

// ValuedTransaction is a ledger row with its USD valuation.
type ValuedTransaction struct {
	ledger.Transaction
	USDPrice decimal.Decimal
	USDValue decimal.Decimal
}

// ValuedBalance is a balance summary row.
type ValuedBalance struct {
	Chain    ledger.Chain
	Token    string
	Contract string
	Amount   decimal.Decimal
	USDPrice decimal.Decimal
	USDValue decimal.Decimal
}

// material reports whether a USD value clears the floor.
func material(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(MaterialityFloor)
}

// Transactions values every transaction and keeps those worth at least the
// materiality floor, preserving input order. dropped counts the rest.
func Transactions(txs []ledger.Transaction, prices ledger.PriceIndex) (kept []ValuedTransaction, dropped int) {
	kept = make([]ValuedTransaction, 0, len(txs))
	for _, tx := range txs {
		price := prices.Price(tx.Chain, tx.ContractAddress)
		value := tx.Value.Mul(price)
		if !material(value) {
			dropped++
			continue
		}
		kept = append(kept, ValuedTransaction{Transaction: tx, USDPrice: price, USDValue: value})
	}
	return kept, dropped
}

// Balances values every balance entry and keeps those worth at least the
// materiality floor. Rows come out in (chain, contract, symbol) order so that
// later stable sorts are deterministic. Negative balances never clear the
// floor.
func Balances(b balance.Balances, prices ledger.PriceIndex) (kept []ValuedBalance, dropped int) {
	keys := make([]ledger.BalanceKey, 0, len(b))
	for key := range b {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, c := keys[i], keys[j]
		if a.Chain != c.Chain {
			return a.Chain < c.Chain
		}
		if a.ContractAddress != c.ContractAddress {
			return a.ContractAddress < c.ContractAddress
		}
		return a.TokenSymbol < c.TokenSymbol
	})

	kept = make([]ValuedBalance, 0, len(keys))
	for _, key := range keys {
		amount := b[key]
		price := prices.Price(key.Chain, key.ContractAddress)
		value := amount.Mul(price)
		if !material(value) {
			dropped++
			continue
		}
		kept = append(kept, ValuedBalance{
			Chain:    key.Chain,
			Token:    key.TokenSymbol,
			Contract: key.ContractAddress,
			Amount:   amount,
			USDPrice: price,
			USDValue: value,
		})
	}
	return kept, dropped
}
