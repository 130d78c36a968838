package pipeline

import (
	"fmt"

	"github.com/brojonat/walletexport/service/ledger"
)

// Stage names the part of a run a diagnostic belongs to.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageSnapshot Stage = "snapshot"
	StagePricing  Stage = "pricing"
	StageBalance  Stage = "balance"
)

// Diagnostic is a non-fatal condition observed during a run.
type Diagnostic struct {
	Stage   Stage              `json:"stage"`
	Chain   ledger.Chain       `json:"chain"`
	Status  ledger.FetchStatus `json:"status,omitempty"`
	Message string             `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Stage, d.Chain, d.Message)
}

func collectDiagnostics(res *Result) []Diagnostic {
	var out []Diagnostic

	for _, c := range res.Chains {
		if c.Outcome.Status != ledger.StatusOK {
			out = append(out, Diagnostic{
				Stage:   StageFetch,
				Chain:   c.Chain,
				Status:  c.Outcome.Status,
				Message: outcomeMessage(c.Outcome, "no transfers"),
			})
		}
		if c.Skipped > 0 {
			out = append(out, Diagnostic{
				Stage:   StageFetch,
				Chain:   c.Chain,
				Status:  c.Outcome.Status,
				Message: fmt.Sprintf("%d transactions had no resolvable detail and were skipped", c.Skipped),
			})
		}
	}

	if res.Snapshot != nil && (res.Snapshot.Status != ledger.StatusOK || res.Snapshot.Err != nil) {
		out = append(out, Diagnostic{
			Stage:   StageSnapshot,
			Chain:   ledger.Solana,
			Status:  res.Snapshot.Status,
			Message: outcomeMessage(*res.Snapshot, "no balances"),
		})
	}

	for _, l := range res.Prices {
		switch {
		case l.Outcome.Status == ledger.StatusFailed:
			out = append(out, Diagnostic{
				Stage:   StagePricing,
				Chain:   l.Chain,
				Status:  l.Outcome.Status,
				Message: outcomeMessage(l.Outcome, "lookup failed") + fmt.Sprintf(" (%s, %d tokens unpriced)", l.Platform, l.Requested),
			})
		case l.Unresolved > 0:
			out = append(out, Diagnostic{
				Stage:   StagePricing,
				Chain:   l.Chain,
				Status:  l.Outcome.Status,
				Message: fmt.Sprintf("%d of %d tokens unpriced on %s", l.Unresolved, l.Requested, l.Platform),
			})
		}
	}

	if n := len(res.Drift); n > 0 {
		out = append(out, Diagnostic{
			Stage:   StageBalance,
			Chain:   ledger.Solana,
			Message: fmt.Sprintf("%d transaction-derived balances differ from the on-chain snapshot", n),
		})
	}
	return out
}

func outcomeMessage(o ledger.Outcome, fallback string) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return fallback
}
