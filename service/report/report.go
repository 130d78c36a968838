// Package report orders and serializes the transaction ledger and the balance
// summary.
package report

import (
	"sort"
	"time"

	"github.com/brojonat/walletexport/service/valuation"
	"github.com/shopspring/decimal"
)

// LedgerHeader is the column order of the transaction ledger.
var LedgerHeader = []string{
	"chain", "timestamp", "hash", "from", "to", "token_name", "token_symbol",
	"contract_address", "value", "direction", "usd_price", "usd_value",
}

// SummaryHeader is the column order of the balance summary.
var SummaryHeader = []string{"chain", "token", "contract", "amount", "usd_price", "usd_value"}

// Report holds both output tables.
type Report struct {
	Transactions []valuation.ValuedTransaction
	Summary      []valuation.ValuedBalance
}

// Sort orders both tables in place: the ledger ascending by timestamp and the
// summary descending by USD value.
func (r *Report) Sort() {
	SortLedger(r.Transactions)
	SortSummary(r.Summary)
}

// TotalUSD is the USD value of every summary row.
func (r Report) TotalUSD() decimal.Decimal {
	total := decimal.Zero
	for _, row := range r.Summary {
		total = total.Add(row.USDValue)
	}
	return total
}

// SortLedger sorts rows ascending by timestamp. The sort is stable, so rows
// sharing a timestamp keep their input order. Rows without a timestamp go
// after every dated row, also in input order.
func SortLedger(rows []valuation.ValuedTransaction) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Timestamp, rows[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

// SortSummary sorts rows descending by USD value. Ties keep their input order.
func SortSummary(rows []valuation.ValuedBalance) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].USDValue.GreaterThan(rows[j].USDValue)
	})
}

func formatTimestamp(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func ledgerRecord(row valuation.ValuedTransaction) []string {
	return []string{
		string(row.Chain),
		formatTimestamp(row.Timestamp),
		row.Hash,
		row.From,
		row.To,
		row.TokenName,
		row.TokenSymbol,
		row.ContractAddress,
		row.Value.String(),
		string(row.Direction),
		row.USDPrice.String(),
		row.USDValue.String(),
	}
}

func summaryRecord(row valuation.ValuedBalance) []string {
	return []string{
		string(row.Chain),
		row.Token,
		row.Contract,
		row.Amount.String(),
		row.USDPrice.String(),
		row.USDValue.String(),
	}
}
