package report

import (
	"fmt"

	"github.com/brojonat/walletexport/service/valuation"
	"github.com/itchyny/gojq"
)

// Filter is a set of compiled jq predicates over ledger rows. A row passes
// when every predicate yields a truthy first result.
type Filter struct {
	codes []*gojq.Code
}

// CompileFilter parses and compiles jq expressions. Each expression sees one
// ledger row as an object keyed by the ledger column names, with value,
// usd_price and usd_value as numbers.
func CompileFilter(exprs ...string) (*Filter, error) {
	f := &Filter{}
	for _, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
		f.codes = append(f.codes, code)
	}
	return f, nil
}

// Empty reports whether the filter has no predicates.
func (f *Filter) Empty() bool {
	return f == nil || len(f.codes) == 0
}

// Apply returns the rows matching every predicate, in order. A predicate
// that errors on a row rejects the row.
func (f *Filter) Apply(rows []valuation.ValuedTransaction) []valuation.ValuedTransaction {
	if f.Empty() {
		return rows
	}
	out := make([]valuation.ValuedTransaction, 0, len(rows))
	for _, row := range rows {
		if f.match(ledgerObject(row)) {
			out = append(out, row)
		}
	}
	return out
}

func (f *Filter) match(obj map[string]any) bool {
	for _, code := range f.codes {
		iter := code.Run(obj)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy follows jq semantics: only false and null are falsy.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

// ledgerObject renders a row as a jq input value.
func ledgerObject(row valuation.ValuedTransaction) map[string]any {
	obj := make(map[string]any, len(LedgerHeader))
	for i, field := range ledgerRecord(row) {
		obj[LedgerHeader[i]] = field
	}
	obj["value"] = row.Value.InexactFloat64()
	obj["usd_price"] = row.USDPrice.InexactFloat64()
	obj["usd_value"] = row.USDValue.InexactFloat64()
	if row.Timestamp == nil {
		obj["timestamp"] = nil
	}
	return obj
}
