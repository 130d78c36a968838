// Package pipeline runs one export: fetch every chain in scope, normalize,
// fold balances, price, value and order the two output tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletexport/service/balance"
	"github.com/brojonat/walletexport/service/evm"
	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/metrics"
	"github.com/brojonat/walletexport/service/pricing"
	"github.com/brojonat/walletexport/service/report"
	"github.com/brojonat/walletexport/service/solana"
	"github.com/brojonat/walletexport/service/valuation"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/sourcegraph/conc/pool"
)

// Config is everything a run needs to know. It is passed explicitly so the
// pipeline can be driven with injected wallets and fake collaborators.
type Config struct {
	Scope          ledger.Scope
	EVMWallet      string
	SolanaWallet   string
	EVMChains      []ledger.Chain // defaults to ledger.EVMChains
	SignatureLimit int            // defaults to solana.DefaultSignatureLimit
	Concurrency    int            // chains fetched at once; <= 1 is sequential
}

// TransferSource lists raw ERC-20 transfers per chain.
type TransferSource interface {
	TokenTransfers(ctx context.Context, chain ledger.Chain, wallet string) ([]evm.RawTransfer, ledger.Outcome, error)
}

// SolanaSource fetches Solana deltas and the balance snapshot.
type SolanaSource interface {
	FetchTransfers(ctx context.Context, params solana.FetchTransfersParams) (solana.TransferResult, error)
	FetchBalances(ctx context.Context, wallet solanago.PublicKey) (solana.BalanceResult, error)
}

// PriceResolver prices observed tokens.
type PriceResolver interface {
	Resolve(ctx context.Context, addrs ledger.AddressSet) pricing.Resolution
}

// Deps are the run's collaborators. Explorer is required for EVM scopes and
// Solana for Solana scopes. Metrics may be nil.
type Deps struct {
	Explorer TransferSource
	Solana   SolanaSource
	Prices   PriceResolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// ChainResult summarizes one chain's fetch.
type ChainResult struct {
	Chain        ledger.Chain
	Outcome      ledger.Outcome
	Transactions int
	Skipped      int // Solana signatures without resolvable detail
}

// Result is the outcome of a run.
type Result struct {
	Report      report.Report
	Chains      []ChainResult
	Snapshot    *ledger.Outcome // nil when Solana is out of scope
	Prices      []pricing.Lookup
	Drift       []balance.Drift
	Dropped     DroppedRows
	Diagnostics []Diagnostic
	Duration    time.Duration
}

// DroppedRows counts rows under the materiality floor.
type DroppedRows struct {
	Transactions int
	Balances     int
}

// chainSlot holds one chain's fetch results until assembly.
type chainSlot struct {
	result   ChainResult
	txs      []ledger.Transaction
	folded   balance.Balances
	snapshot *solana.BalanceResult
}

// Run performs one export. It returns an error only for fatal conditions:
// an invalid config, a malformed source record or cancellation. Everything
// degraded is reported in Result.Diagnostics.
func Run(ctx context.Context, cfg Config, deps Deps) (*Result, error) {
	start := time.Now()
	if err := cfg.validate(deps); err != nil {
		return nil, err
	}
	logger := deps.Logger

	chains := cfg.chains()
	slots := make([]chainSlot, len(chains))

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	p := pool.New().WithMaxGoroutines(concurrency).WithContext(ctx).WithCancelOnError()
	for i, chain := range chains {
		p.Go(func(ctx context.Context) error {
			slot, err := fetchChain(ctx, cfg, deps, chain)
			if err != nil {
				return err
			}
			slots[i] = slot
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	var txs []ledger.Transaction
	partials := make([]balance.Balances, 0, len(slots))
	var snapshot *solana.BalanceResult
	for _, slot := range slots {
		res.Chains = append(res.Chains, slot.result)
		txs = append(txs, slot.txs...)
		partials = append(partials, slot.folded)
		if slot.snapshot != nil {
			snapshot = slot.snapshot
		}
		logger.InfoContext(ctx, "chain loaded",
			"chain", slot.result.Chain,
			"status", slot.result.Outcome.Status,
			"transactions", slot.result.Transactions,
			"skipped", slot.result.Skipped,
		)
		if deps.Metrics != nil {
			deps.Metrics.RecordChainFetch(string(slot.result.Chain), string(slot.result.Outcome.Status))
			deps.Metrics.RecordTransactionsNormalized(string(slot.result.Chain), slot.result.Transactions)
		}
	}

	balances := balance.Merge(partials...)
	if snapshot != nil {
		outcome := snapshot.Outcome
		res.Snapshot = &outcome
		balances, res.Drift = balance.ApplySnapshot(balances, ledger.Solana, snapshot.Snapshot)
		for _, d := range res.Drift {
			logger.DebugContext(ctx, "transaction-derived balance differs from snapshot",
				"token", d.Key.ContractAddress,
				"derived", d.Derived.String(),
				"snapshot", d.Authoritative.String(),
			)
		}
	}

	addrs := make(ledger.AddressSet)
	for _, tx := range txs {
		addrs.Add(tx.Chain, tx.ContractAddress)
	}
	for key := range balances {
		addrs.Add(key.Chain, key.ContractAddress)
	}
	resolution := deps.Prices.Resolve(ctx, addrs)
	res.Prices = resolution.Lookups

	valuedTxs, droppedTxs := valuation.Transactions(txs, resolution.Prices)
	valuedBalances, droppedBalances := valuation.Balances(balances, resolution.Prices)
	res.Dropped = DroppedRows{Transactions: droppedTxs, Balances: droppedBalances}
	res.Report = report.Report{Transactions: valuedTxs, Summary: valuedBalances}
	res.Report.Sort()

	res.Diagnostics = collectDiagnostics(res)
	res.Duration = time.Since(start)

	if deps.Metrics != nil {
		deps.Metrics.RecordReportRows("transactions", "kept", len(valuedTxs))
		deps.Metrics.RecordReportRows("transactions", "dropped", droppedTxs)
		deps.Metrics.RecordReportRows("balances", "kept", len(valuedBalances))
		deps.Metrics.RecordReportRows("balances", "dropped", droppedBalances)
		deps.Metrics.RecordRunDuration(res.Duration.Seconds())
	}

	logger.InfoContext(ctx, "export complete",
		"scope", cfg.Scope,
		"chains", len(res.Chains),
		"transactions", len(valuedTxs),
		"transactions_dropped", droppedTxs,
		"balances", len(valuedBalances),
		"balances_dropped", droppedBalances,
		"diagnostics", len(res.Diagnostics),
		"duration", res.Duration,
	)
	return res, nil
}

func (cfg Config) validate(deps Deps) error {
	var errs []error
	if deps.Prices == nil {
		errs = append(errs, errors.New("price resolver is required"))
	}
	if deps.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}
	switch cfg.Scope {
	case ledger.ScopeAll, ledger.ScopeEVM, ledger.ScopeSolana:
	default:
		errs = append(errs, fmt.Errorf("unsupported scope %q", cfg.Scope))
	}
	if cfg.Scope.IncludesEVM() {
		if cfg.EVMWallet == "" {
			errs = append(errs, errors.New("EVM wallet address is required"))
		}
		if deps.Explorer == nil {
			errs = append(errs, errors.New("explorer client is required"))
		}
		for _, c := range cfg.EVMChains {
			if !c.IsEVM() {
				errs = append(errs, fmt.Errorf("%s is not an EVM chain", c))
			}
		}
	}
	if cfg.Scope.IncludesSolana() {
		if _, err := solanago.PublicKeyFromBase58(cfg.SolanaWallet); err != nil {
			errs = append(errs, fmt.Errorf("invalid Solana wallet address %q: %w", cfg.SolanaWallet, err))
		}
		if deps.Solana == nil {
			errs = append(errs, errors.New("solana client is required"))
		}
	}
	return errors.Join(errs...)
}

func (cfg Config) chains() []ledger.Chain {
	var out []ledger.Chain
	if cfg.Scope.IncludesEVM() {
		if len(cfg.EVMChains) > 0 {
			out = append(out, cfg.EVMChains...)
		} else {
			out = append(out, ledger.EVMChains...)
		}
	}
	if cfg.Scope.IncludesSolana() {
		out = append(out, ledger.Solana)
	}
	return out
}

func fetchChain(ctx context.Context, cfg Config, deps Deps, chain ledger.Chain) (chainSlot, error) {
	if chain == ledger.Solana {
		return fetchSolana(ctx, cfg, deps)
	}
	return fetchEVM(ctx, cfg, deps, chain)
}

func fetchEVM(ctx context.Context, cfg Config, deps Deps, chain ledger.Chain) (chainSlot, error) {
	deps.Logger.InfoContext(ctx, "loading chain", "chain", chain)

	records, outcome, err := deps.Explorer.TokenTransfers(ctx, chain, cfg.EVMWallet)
	if err != nil {
		return chainSlot{}, fmt.Errorf("fetch %s transfers: %w", chain, err)
	}
	if err := ctx.Err(); err != nil {
		return chainSlot{}, err
	}

	txs, err := evm.Normalize(chain, cfg.EVMWallet, records)
	if err != nil {
		return chainSlot{}, fmt.Errorf("normalize %s transfers: %w", chain, err)
	}

	return chainSlot{
		result: ChainResult{Chain: chain, Outcome: outcome, Transactions: len(txs)},
		txs:    txs,
		folded: balance.Fold(txs),
	}, nil
}

func fetchSolana(ctx context.Context, cfg Config, deps Deps) (chainSlot, error) {
	deps.Logger.InfoContext(ctx, "loading chain", "chain", ledger.Solana)

	wallet := solanago.MustPublicKeyFromBase58(cfg.SolanaWallet)
	transfers, err := deps.Solana.FetchTransfers(ctx, solana.FetchTransfersParams{
		Wallet: wallet,
		Limit:  cfg.SignatureLimit,
	})
	if err != nil {
		return chainSlot{}, fmt.Errorf("fetch solana transfers: %w", err)
	}

	balances, err := deps.Solana.FetchBalances(ctx, wallet)
	if err != nil {
		return chainSlot{}, fmt.Errorf("fetch solana balances: %w", err)
	}

	return chainSlot{
		result: ChainResult{
			Chain:        ledger.Solana,
			Outcome:      transfers.Outcome,
			Transactions: len(transfers.Transactions),
			Skipped:      transfers.Skipped,
		},
		txs:      transfers.Transactions,
		folded:   balance.Fold(transfers.Transactions),
		snapshot: &balances,
	}, nil
}
