package report

import (
	"encoding/json"
	"io"
)

type jsonReport struct {
	Transactions []map[string]string `json:"transactions"`
	Summary      []map[string]string `json:"summary"`
}

// RenderJSON writes both tables to w as one indented JSON document. Amounts
// are rendered as decimal strings so no precision is lost.
func RenderJSON(w io.Writer, r Report) error {
	out := jsonReport{
		Transactions: make([]map[string]string, 0, len(r.Transactions)),
		Summary:      make([]map[string]string, 0, len(r.Summary)),
	}
	for _, row := range r.Transactions {
		out.Transactions = append(out.Transactions, zip(LedgerHeader, ledgerRecord(row)))
	}
	for _, row := range r.Summary {
		out.Summary = append(out.Summary, zip(SummaryHeader, summaryRecord(row)))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func zip(keys, values []string) map[string]string {
	m := make(map[string]string, len(keys))
	for i, k := range keys {
		m[k] = values[i]
	}
	return m
}
