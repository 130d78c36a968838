package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/brojonat/walletexport/service/ledger"
)

// DefaultExplorerURL is the Etherscan v2 multichain endpoint.
const DefaultExplorerURL = "https://api.etherscan.io/v2/api"

// HTTPGetter is the transport the explorer client needs. It is satisfied by
// *httpclient.Client and lets tests substitute a fake.
type HTTPGetter interface {
	GetJSON(ctx context.Context, url string, query map[string]string, out any) error
}

// ExplorerClient fetches ERC-20 transfer history from a block explorer.
type ExplorerClient struct {
	http    HTTPGetter
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewExplorerClient creates an explorer client. An empty baseURL selects
// DefaultExplorerURL.
func NewExplorerClient(http HTTPGetter, baseURL, apiKey string, logger *slog.Logger) *ExplorerClient {
	if baseURL == "" {
		baseURL = DefaultExplorerURL
	}
	return &ExplorerClient{
		http:    http,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// TokenTransfers returns the wallet's raw ERC-20 transfers on chain, oldest
// first. It never returns an error for degraded conditions: a non-success
// explorer status yields StatusEmpty and a transport failure yields
// StatusFailed, both with no records. The error return is reserved for
// programming errors such as an unsupported chain.
func (c *ExplorerClient) TokenTransfers(ctx context.Context, chain ledger.Chain, wallet string) ([]RawTransfer, ledger.Outcome, error) {
	chainID, ok := chain.ChainID()
	if !ok {
		return nil, ledger.Outcome{}, fmt.Errorf("chain %s has no explorer chain id", chain)
	}

	query := map[string]string{
		"chainid":    strconv.FormatInt(chainID, 10),
		"module":     "account",
		"action":     "tokentx",
		"address":    wallet,
		"startblock": "0",
		"endblock":   "latest",
		"sort":       "asc",
		"apikey":     c.apiKey,
	}

	var envelope explorerEnvelope
	if err := c.http.GetJSON(ctx, c.baseURL, query, &envelope); err != nil {
		c.logger.WarnContext(ctx, "explorer request failed, marking chain as failed",
			"chain", chain,
			"error", err,
		)
		return nil, ledger.Outcome{Status: ledger.StatusFailed, Err: err}, nil
	}

	if envelope.Status != "1" {
		reason := envelope.Message
		var detail string
		if json.Unmarshal(envelope.Result, &detail) == nil && detail != "" {
			reason = fmt.Sprintf("%s: %s", reason, detail)
		}
		c.logger.WarnContext(ctx, "no explorer data for chain",
			"chain", chain,
			"status", envelope.Status,
			"message", reason,
		)
		return nil, ledger.Outcome{Status: ledger.StatusEmpty, Err: errors.New(reason)}, nil
	}

	var records []RawTransfer
	if err := json.Unmarshal(envelope.Result, &records); err != nil {
		c.logger.WarnContext(ctx, "explorer result is not a transfer list",
			"chain", chain,
			"error", err,
		)
		return nil, ledger.Outcome{Status: ledger.StatusFailed, Err: fmt.Errorf("decode explorer result: %w", err)}, nil
	}

	c.logger.DebugContext(ctx, "fetched token transfers",
		"chain", chain,
		"count", len(records),
	)

	status := ledger.StatusOK
	if len(records) == 0 {
		status = ledger.StatusEmpty
	}
	return records, ledger.Outcome{Status: status}, nil
}
