package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/brojonat/walletexport/service/valuation"
)

// WriteLedger writes the transaction ledger to path, replacing any existing
// file. An empty ledger produces a header-only file.
func WriteLedger(path string, rows []valuation.ValuedTransaction) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeLedger(w, rows)
	})
}

// WriteSummary writes the balance summary to path, replacing any existing
// file. An empty summary produces a header-only file.
func WriteSummary(path string, rows []valuation.ValuedBalance) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeSummary(w, rows)
	})
}

// EncodeLedger writes the ledger as CSV to w.
func EncodeLedger(w io.Writer, rows []valuation.ValuedTransaction) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, LedgerHeader)
	for _, row := range rows {
		records = append(records, ledgerRecord(row))
	}
	return csv.NewWriter(w).WriteAll(records)
}

// EncodeSummary writes the summary as CSV to w.
func EncodeSummary(w io.Writer, rows []valuation.ValuedBalance) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, SummaryHeader)
	for _, row := range rows {
		records = append(records, summaryRecord(row))
	}
	return csv.NewWriter(w).WriteAll(records)
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
