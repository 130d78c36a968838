package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)

	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)
}

// Client provides the wallet-level Solana operations the exporter needs.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// observe records the duration and status of one RPC call.
func (c *Client) observe(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

func (c *Client) skipped(reason string) {
	if c.metrics != nil {
		c.metrics.RecordTransactionSkipped(reason)
	}
}

// FetchTransfers lists the most recent signatures for the wallet (newest
// first, bounded by Limit), resolves each one and extracts the wallet's SPL
// and native SOL deltas.
//
// Degraded conditions never produce an error: a failed signature listing
// yields StatusFailed, and signatures without resolvable detail are skipped
// and counted. The error return is reserved for malformed token amounts and
// context cancellation.
func (c *Client) FetchTransfers(ctx context.Context, params FetchTransfersParams) (TransferResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSignatureLimit
	}
	wallet := params.Wallet.String()

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", wallet,
		"limit", limit,
	)

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, params.Wallet, &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	})
	c.observe("GetSignaturesForAddress", start, err)
	if err != nil {
		if ctx.Err() != nil {
			return TransferResult{}, ctx.Err()
		}
		c.logger.WarnContext(ctx, "failed to get signatures, treating chain as empty",
			"wallet", wallet,
			"error", err,
		)
		return TransferResult{Outcome: ledger.Outcome{Status: ledger.StatusFailed, Err: err}}, nil
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"wallet", wallet,
		"count", len(signatures),
	)

	result := TransferResult{Signatures: len(signatures)}
	maxVersion := uint64(0)
	for _, sig := range signatures {
		if err := ctx.Err(); err != nil {
			return TransferResult{}, err
		}

		start := time.Now()
		txResult, err := c.rpc.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		c.observe("GetTransaction", start, err)

		switch {
		case errors.Is(err, rpc.ErrNotFound) || (err == nil && txResult == nil):
			c.logger.DebugContext(ctx, "transaction not available, skipping",
				"signature", sig.Signature.String(),
			)
			c.skipped("not_found")
			result.Skipped++
			continue
		case err != nil:
			if ctx.Err() != nil {
				return TransferResult{}, ctx.Err()
			}
			c.logger.WarnContext(ctx, "failed to get transaction details, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			c.skipped("rpc_error")
			result.Skipped++
			continue
		}

		detail, err := detailFromResult(sig.Signature.String(), txResult)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to decode transaction, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			c.skipped("decode_error")
			result.Skipped++
			continue
		}
		if detail.BlockTime == nil {
			detail.BlockTime = sig.BlockTime
		}

		txs, err := extractTransfers(params.Wallet, detail)
		if err != nil {
			return TransferResult{}, err
		}
		result.Transactions = append(result.Transactions, txs...)
	}

	result.Outcome = ledger.Outcome{Status: ledger.StatusOK}
	if len(result.Transactions) == 0 {
		result.Outcome.Status = ledger.StatusEmpty
	}

	c.logger.InfoContext(ctx, "fetched and parsed solana transfers",
		"wallet", wallet,
		"signatures", result.Signatures,
		"skipped", result.Skipped,
		"transfers", len(result.Transactions),
	)
	return result, nil
}

// FetchBalances queries the wallet's current token accounts under both token
// programs and its lamport balance. Amounts of several accounts holding the
// same mint are summed. Each failed query contributes nothing; the outcome is
// StatusFailed only when every query failed.
func (c *Client) FetchBalances(ctx context.Context, wallet solana.PublicKey) (BalanceResult, error) {
	snapshot := make(ledger.Snapshot)
	var failures []error
	queries := 0

	for _, programID := range []solana.PublicKey{TokenProgramID, Token2022ProgramID} {
		queries++
		pid := programID
		start := time.Now()
		accounts, err := c.rpc.GetTokenAccountsByOwner(ctx, wallet,
			&rpc.GetTokenAccountsConfig{ProgramId: &pid},
			&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed},
		)
		c.observe("GetTokenAccountsByOwner", start, err)
		if err != nil {
			if ctx.Err() != nil {
				return BalanceResult{}, ctx.Err()
			}
			c.logger.WarnContext(ctx, "failed to get token accounts",
				"wallet", wallet.String(),
				"program", programID.String(),
				"error", err,
			)
			failures = append(failures, fmt.Errorf("token accounts for program %s: %w", programID, err))
			continue
		}
		if accounts == nil {
			continue
		}

		for _, acct := range accounts.Value {
			if acct == nil || acct.Account.Data == nil {
				continue
			}
			mint, amount, err := parseTokenAccount(acct.Account.Data.GetRawJSON())
			if err != nil {
				var malformed *MalformedAmountError
				if errors.As(err, &malformed) {
					return BalanceResult{}, err
				}
				c.logger.WarnContext(ctx, "skipping unreadable token account",
					"account", acct.Pubkey.String(),
					"error", err,
				)
				continue
			}
			snapshot[mint] = snapshot[mint].Add(amount)
		}
	}

	queries++
	start := time.Now()
	balance, err := c.rpc.GetBalance(ctx, wallet, rpc.CommitmentFinalized)
	c.observe("GetBalance", start, err)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return BalanceResult{}, ctx.Err()
		}
		c.logger.WarnContext(ctx, "failed to get SOL balance",
			"wallet", wallet.String(),
			"error", err,
		)
		failures = append(failures, fmt.Errorf("lamport balance: %w", err))
	case balance != nil:
		snapshot[ledger.NativeSOL] = decimal.NewFromUint64(balance.Value).Shift(-solDecimals)
	}

	outcome := ledger.Outcome{Status: ledger.StatusOK, Err: errors.Join(failures...)}
	switch {
	case len(failures) == queries:
		outcome.Status = ledger.StatusFailed
	case len(snapshot) == 0:
		outcome.Status = ledger.StatusEmpty
	}

	c.logger.InfoContext(ctx, "fetched solana balance snapshot",
		"wallet", wallet.String(),
		"entries", len(snapshot),
		"failed_queries", len(failures),
	)
	return BalanceResult{Snapshot: snapshot, Outcome: outcome}, nil
}
