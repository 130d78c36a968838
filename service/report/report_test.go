package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/valuation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(unix int64) *time.Time {
	t := time.Unix(unix, 0).UTC()
	return &t
}

func row(hash string, ts *time.Time, usd string) valuation.ValuedTransaction {
	return valuation.ValuedTransaction{
		Transaction: ledger.Transaction{
			Chain:           ledger.Ethereum,
			Timestamp:       ts,
			Hash:            hash,
			From:            "0xfrom",
			To:              "0xto",
			TokenName:       "USD Coin",
			TokenSymbol:     "USDC",
			ContractAddress: "0xusdc",
			Value:           decimal.RequireFromString(usd),
			Direction:       ledger.In,
		},
		USDPrice: decimal.NewFromInt(1),
		USDValue: decimal.RequireFromString(usd),
	}
}

func summary(token, usd string) valuation.ValuedBalance {
	return valuation.ValuedBalance{
		Chain:    ledger.Polygon,
		Token:    token,
		Contract: "0x" + token,
		Amount:   decimal.RequireFromString(usd),
		USDPrice: decimal.NewFromInt(1),
		USDValue: decimal.RequireFromString(usd),
	}
}

func hashes(rows []valuation.ValuedTransaction) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Hash
	}
	return out
}

func TestSortLedger_AscendingUndatedLast(t *testing.T) {
	rows := []valuation.ValuedTransaction{
		row("undated-1", nil, "5"),
		row("late", at(300), "5"),
		row("early", at(100), "5"),
		row("undated-2", nil, "5"),
		row("tie-a", at(200), "5"),
		row("tie-b", at(200), "5"),
	}

	SortLedger(rows)
	assert.Equal(t, []string{"early", "tie-a", "tie-b", "late", "undated-1", "undated-2"}, hashes(rows))
}

func TestSortSummary_Descending(t *testing.T) {
	rows := []valuation.ValuedBalance{
		summary("a", "10"),
		summary("b", "1000.5"),
		summary("c", "10"),
		summary("d", "99.99"),
	}

	SortSummary(rows)

	tokens := make([]string, len(rows))
	for i, r := range rows {
		tokens[i] = r.Token
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, tokens)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].USDValue.GreaterThanOrEqual(rows[i].USDValue))
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")
	rows := []valuation.ValuedTransaction{row("0xabc", at(1700000000), "12.5"), row("0xdef", nil, "3")}

	require.NoError(t, WriteLedger(path, rows))

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, LedgerHeader, records[0])
	assert.Equal(t, []string{
		"ethereum", "2023-11-14T22:13:20Z", "0xabc", "0xfrom", "0xto", "USD Coin", "USDC",
		"0xusdc", "12.5", "IN", "1", "12.5",
	}, records[1])
	assert.Equal(t, "", records[2][1], "undated rows have an empty timestamp")
}

func TestWriteFiles_EmptyIsHeaderOnlyAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "transactions.csv")
	summaryPath := filepath.Join(dir, "balances.csv")

	require.NoError(t, WriteLedger(ledgerPath, []valuation.ValuedTransaction{row("old", nil, "9")}))
	require.NoError(t, WriteSummary(summaryPath, []valuation.ValuedBalance{summary("old", "9")}))

	require.NoError(t, WriteLedger(ledgerPath, nil))
	require.NoError(t, WriteSummary(summaryPath, nil))

	assert.Equal(t, [][]string{LedgerHeader}, readCSV(t, ledgerPath))
	assert.Equal(t, [][]string{SummaryHeader}, readCSV(t, summaryPath))
}

func TestWriteLedger_BadPath(t *testing.T) {
	err := WriteLedger(filepath.Join(t.TempDir(), "missing", "out.csv"), nil)
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	rows := []valuation.ValuedTransaction{
		row("small", at(100), "5"),
		row("big", at(200), "500"),
		row("undated", nil, "50"),
	}

	tests := []struct {
		name  string
		exprs []string
		want  []string
	}{
		{"no predicates", nil, []string{"small", "big", "undated"}},
		{"numeric comparison", []string{".usd_value > 10"}, []string{"big", "undated"}},
		{"string match", []string{`.hash | startswith("b")`}, []string{"big"}},
		{"all predicates must hold", []string{".usd_value > 10", ".timestamp != null"}, []string{"big"}},
		{"erroring predicate rejects", []string{".hash + 1"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileFilter(tt.exprs...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hashes(f.Apply(rows)))
		})
	}
}

func TestCompileFilter_Invalid(t *testing.T) {
	_, err := CompileFilter(".usd_value >")
	assert.Error(t, err)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	err := RenderJSON(&buf, Report{
		Transactions: []valuation.ValuedTransaction{row("0xabc", at(1700000000), "0.1")},
	})
	require.NoError(t, err)

	var decoded struct {
		Transactions []map[string]string `json:"transactions"`
		Summary      []map[string]string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Transactions, 1)
	assert.Equal(t, "0.1", decoded.Transactions[0]["usd_value"])
	assert.NotNil(t, decoded.Summary)
	assert.Empty(t, decoded.Summary)
}

func TestTotalUSD(t *testing.T) {
	r := Report{Summary: []valuation.ValuedBalance{summary("a", "10.25"), summary("b", "1.5")}}
	assert.Equal(t, "11.75", r.TotalUSD().String())
	assert.True(t, Report{}.TotalUSD().IsZero())
}
