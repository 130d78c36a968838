package main

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/brojonat/walletexport/service/config"
	"github.com/brojonat/walletexport/service/evm"
	"github.com/brojonat/walletexport/service/httpclient"
	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/metrics"
	"github.com/brojonat/walletexport/service/nats"
	"github.com/brojonat/walletexport/service/pipeline"
	"github.com/brojonat/walletexport/service/pricing"
	"github.com/brojonat/walletexport/service/report"
	"github.com/brojonat/walletexport/service/solana"
	"github.com/urfave/cli/v2"
)

const userAgent = "walletexport"

// publisherFactory opens a publisher for the run summary.
type publisherFactory func(ctx context.Context, url string, logger *slog.Logger) (nats.Publisher, error)

func connectNATS(ctx context.Context, url string, logger *slog.Logger) (nats.Publisher, error) {
	publisher, err := nats.NewPublisher(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func exportCommand(connect publisherFactory) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Fetch, value and write the transaction ledger and balance summary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scope",
				Aliases: []string{"s"},
				Usage:   "Chains to export (all, evm, solana)",
				Value:   string(ledger.ScopeAll),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file to read (default .env, optional)",
			},
			&cli.StringFlag{
				Name:  "transactions-out",
				Usage: "Ledger CSV path (default depends on scope)",
			},
			&cli.StringFlag{
				Name:  "balances-out",
				Usage: "Balance summary CSV path (default depends on scope)",
			},
			&cli.StringSliceFlag{
				Name:    "where",
				Aliases: []string{"w"},
				Usage:   "jq predicate a ledger row must satisfy (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Also print the full report as JSON to stdout",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write run metrics in Prometheus text format to this path",
			},
			&cli.StringFlag{
				Name:  "nats-url",
				Usage: "Publish a run summary to this NATS server",
			},
		},
		Action: func(c *cli.Context) error {
			return runExport(c, connect)
		},
	}
}

func runExport(c *cli.Context, connect publisherFactory) error {
	scope, err := ledger.ParseScope(c.String("scope"))
	if err != nil {
		return err
	}

	cfg, err := config.Load(scope, c.String("env-file"))
	if err != nil {
		return err
	}

	// Compile filters before touching the network.
	filter, err := report.CompileFilter(c.StringSlice("where")...)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if flagLevel := c.String("log-level"); flagLevel != "" {
		level = flagLevel
	}
	logger, closeLog := setupLogger(level, c.String("log-file"))
	defer closeLog()

	m := metrics.NewMetrics()
	deps, closeDeps := buildDeps(cfg, m, logger)
	defer closeDeps()

	runCfg := pipeline.Config{
		Scope:          cfg.Scope,
		EVMWallet:      cfg.EVMWallet,
		SolanaWallet:   cfg.SolanaWallet,
		EVMChains:      cfg.EVMChains,
		SignatureLimit: cfg.SolanaSignatureLimit,
		Concurrency:    cfg.FetchConcurrency,
	}
	res, err := pipeline.Run(c.Context, runCfg, deps)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	for _, d := range res.Diagnostics {
		logger.WarnContext(c.Context, "export diagnostic",
			"stage", d.Stage,
			"chain", d.Chain,
			"status", d.Status,
			"message", d.Message,
		)
	}

	out := report.Report{
		Transactions: filter.Apply(res.Report.Transactions),
		Summary:      res.Report.Summary,
	}
	if filtered := len(res.Report.Transactions) - len(out.Transactions); filtered > 0 {
		m.RecordReportRows("transactions", "filtered", filtered)
	}
	txPath, balPath := outputPaths(scope, c.String("transactions-out"), c.String("balances-out"))
	if err := report.WriteLedger(txPath, out.Transactions); err != nil {
		return err
	}
	if err := report.WriteSummary(balPath, out.Summary); err != nil {
		return err
	}
	logger.InfoContext(c.Context, "wrote report",
		"transactions_file", txPath,
		"transactions", len(out.Transactions),
		"balances_file", balPath,
		"balances", len(out.Summary),
	)

	if c.Bool("json") {
		if err := report.RenderJSON(c.App.Writer, out); err != nil {
			return fmt.Errorf("failed to render JSON: %w", err)
		}
	} else {
		printSummary(c, out)
	}

	metricsFile := firstNonEmpty(c.String("metrics-file"), cfg.MetricsFile)
	if metricsFile != "" {
		if err := m.WriteTextfile(metricsFile); err != nil {
			logger.WarnContext(c.Context, "failed to write metrics file", "path", metricsFile, "error", err)
		}
	}

	natsURL := firstNonEmpty(c.String("nats-url"), cfg.NATSURL)
	if natsURL != "" {
		if err := publishReport(c.Context, connect, natsURL, nats.FromResult(runCfg, res), logger); err != nil {
			logger.WarnContext(c.Context, "failed to publish report", "url", natsURL, "error", err)
		}
	}
	return nil
}

// buildDeps wires the HTTP transports and chain clients needed for cfg.Scope.
func buildDeps(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (pipeline.Deps, func()) {
	var closers []func() error

	cgHeaders := map[string]string{}
	if cfg.CoinGeckoAPIKey != "" {
		cgHeaders[pricing.APIKeyHeader] = cfg.CoinGeckoAPIKey
	}
	coingecko := httpclient.New(httpclient.Config{
		API:       "coingecko",
		Timeout:   cfg.HTTPTimeout,
		Headers:   cgHeaders,
		UserAgent: userAgent,
	}, m, logger)
	closers = append(closers, coingecko.Close)

	deps := pipeline.Deps{
		Prices:  pricing.NewResolver(pricing.NewCoinGecko(coingecko, cfg.CoinGeckoAPIURL), m, logger),
		Metrics: m,
		Logger:  logger,
	}

	if cfg.Scope.IncludesEVM() {
		etherscan := httpclient.New(httpclient.Config{
			API:           "etherscan",
			Timeout:       cfg.HTTPTimeout,
			RatePerSecond: cfg.EtherscanRateLimit,
			UserAgent:     userAgent,
		}, m, logger)
		closers = append(closers, etherscan.Close)
		deps.Explorer = evm.NewExplorerClient(etherscan, cfg.EtherscanAPIURL, cfg.EtherscanAPIKey, logger)
	}

	if cfg.Scope.IncludesSolana() {
		deps.Solana = solana.NewClient(solana.NewRPCClient(cfg.SolanaRPCURL), cfg.SolanaRPCURL, m, logger)
	}

	return deps, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Debug("failed to close HTTP client", "error", err)
			}
		}
	}
}

// outputPaths returns the ledger and summary paths. A full export uses the
// multi-chain file names; a single-family export uses the short ones.
func outputPaths(scope ledger.Scope, txOut, balOut string) (string, string) {
	txDefault, balDefault := "transactions.csv", "token_balances.csv"
	if scope == ledger.ScopeAll {
		txDefault, balDefault = "transactions_all_chains.csv", "token_balances_summary.csv"
	}
	return firstNonEmpty(txOut, txDefault), firstNonEmpty(balOut, balDefault)
}

func publishReport(ctx context.Context, connect publisherFactory, url string, event *nats.ReportEvent, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	publisher, err := connect(ctx, url, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	return publisher.PublishReport(ctx, event)
}

func printSummary(c *cli.Context, r report.Report) {
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tTOKEN\tAMOUNT\tUSD VALUE")
	for _, row := range r.Summary {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			row.Chain,
			row.Token,
			row.Amount.String(),
			row.USDValue.StringFixed(2),
		)
	}
	w.Flush()

	fmt.Fprintf(c.App.ErrWriter, "\nTotal: %s USD across %d balances, %d transactions\n",
		r.TotalUSD().StringFixed(2), len(r.Summary), len(r.Transactions))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
