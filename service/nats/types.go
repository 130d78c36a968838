package nats

import (
	"time"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/pipeline"
)

// ReportEvent summarizes one export run. It is published to the subject
// "reports.{scope}" in JetStream.
type ReportEvent struct {
	Scope        ledger.Scope `json:"scope"`
	EVMWallet    string       `json:"evm_wallet,omitempty"`
	SolanaWallet string       `json:"solana_wallet,omitempty"`

	Chains []ChainSummary `json:"chains"`

	// Row counts after the materiality floor
	Transactions        int    `json:"transactions"`
	TransactionsDropped int    `json:"transactions_dropped"`
	Balances            int    `json:"balances"`
	BalancesDropped     int    `json:"balances_dropped"`
	TotalUSD            string `json:"total_usd"`

	Diagnostics []pipeline.Diagnostic `json:"diagnostics,omitempty"`

	DurationMillis int64     `json:"duration_ms"`
	PublishedAt    time.Time `json:"published_at"`
}

// ChainSummary is the per-chain part of a ReportEvent.
type ChainSummary struct {
	Chain        ledger.Chain       `json:"chain"`
	Status       ledger.FetchStatus `json:"status"`
	Transactions int                `json:"transactions"`
	Skipped      int                `json:"skipped,omitempty"`
}

// FromResult converts a finished run into a ReportEvent for publishing.
func FromResult(cfg pipeline.Config, res *pipeline.Result) *ReportEvent {
	event := &ReportEvent{
		Scope:               cfg.Scope,
		Transactions:        len(res.Report.Transactions),
		TransactionsDropped: res.Dropped.Transactions,
		Balances:            len(res.Report.Summary),
		BalancesDropped:     res.Dropped.Balances,
		TotalUSD:            res.Report.TotalUSD().StringFixed(2),
		Diagnostics:         res.Diagnostics,
		DurationMillis:      res.Duration.Milliseconds(),
		PublishedAt:         time.Now().UTC(),
	}
	if cfg.Scope.IncludesEVM() {
		event.EVMWallet = cfg.EVMWallet
	}
	if cfg.Scope.IncludesSolana() {
		event.SolanaWallet = cfg.SolanaWallet
	}

	event.Chains = make([]ChainSummary, 0, len(res.Chains))
	for _, c := range res.Chains {
		event.Chains = append(event.Chains, ChainSummary{
			Chain:        c.Chain,
			Status:       c.Outcome.Status,
			Transactions: c.Transactions,
			Skipped:      c.Skipped,
		})
	}
	return event
}
