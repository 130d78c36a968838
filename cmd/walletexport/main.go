package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return buildApp(connectNATS)
}

// buildApp assembles the CLI. connect opens the NATS publisher used by
// export when a NATS URL is configured.
func buildApp(connect publisherFactory) *cli.App {
	return &cli.App{
		Name:  "walletexport",
		Usage: "Export multi-chain wallet activity and balances to CSV",
		Description: `Fetches ERC-20 transfers from Etherscan for every supported EVM chain and
SPL and native transfers from a Solana RPC node, values them in USD with
CoinGecko, and writes a transaction ledger and a balance summary.

Configuration is read from the environment and an optional .env file.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			exportCommand(connect),
			chainsCommand(),
			versionCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write logs to this file, rotated by size",
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "walletexport %s\n", version)
			fmt.Fprintf(c.App.Writer, "commit: %s\n", commit)
			fmt.Fprintf(c.App.Writer, "built:  %s\n", date)
			return nil
		},
	}
}

// setupLogger creates a structured logger with the given log level. Logs go
// to stderr and, when logFile is set, to a size-rotated file as well. The
// returned closer releases the file.
func setupLogger(levelStr, logFile string) (*slog.Logger, func() error) {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if logFile == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() error { return nil }
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	w := io.MultiWriter(os.Stderr, rotator)
	return slog.New(slog.NewJSONHandler(w, opts)), rotator.Close
}
