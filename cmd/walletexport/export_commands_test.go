package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/nats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "0x52908400098527886e0f7030069857d2e4169ee7"
	usdc       = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

// clearEnv unsets every variable the export reads and moves into an empty
// directory so no .env file is picked up.
func clearEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"WALLET_ADDRESS", "ETH_ADDRESS", "SOLANA_ADDRESS", "SOL_ADDRESS",
		"ETHERSCAN_API_KEY", "ETHERSCAN_API_URL", "ETHERSCAN_RATE_LIMIT", "EVM_CHAINS",
		"COINGECKO_API_KEY", "COINGECKO_API_URL", "SOLANA_RPC_URL", "SOLANA_SIGNATURE_LIMIT",
		"FETCH_CONCURRENCY", "HTTP_TIMEOUT", "LOG_LEVEL", "NATS_URL", "METRICS_FILE",
	} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func etherscanServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("chainid") != "1" {
			io.WriteString(w, `{"status":"0","message":"No transactions found","result":[]}`)
			return
		}
		io.WriteString(w, `{"status":"1","message":"OK","result":[
			{"blockNumber":"2","timeStamp":"1700000100","hash":"0xaaa","from":"0xsender","to":"`+testWallet+`",
			 "value":"5000000","contractAddress":"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","tokenName":"USD Coin","tokenSymbol":"USDC","tokenDecimal":"6"},
			{"blockNumber":"1","timeStamp":"1700000000","hash":"0xbbb","from":"0xsender","to":"`+testWallet+`",
			 "value":"500000","contractAddress":"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","tokenName":"USD Coin","tokenSymbol":"USDC","tokenDecimal":"6"}
		]}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func coingeckoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/simple/token_price/ethereum" {
			io.WriteString(w, `{}`)
			return
		}
		io.WriteString(w, `{"`+usdc+`":{"usd":1}}`)
	}))
	t.Cleanup(server.Close)
	return server
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

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runAppWith(t, connectNATS, args...)
}

func runAppWith(t *testing.T, connect publisherFactory, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := buildApp(connect)
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"walletexport"}, args...))
	return stdout.String(), err
}

func setupEVMExport(t *testing.T) string {
	t.Helper()
	dir := clearEnv(t)
	t.Setenv("WALLET_ADDRESS", testWallet)
	t.Setenv("ETHERSCAN_API_KEY", "test-key")
	t.Setenv("ETHERSCAN_API_URL", etherscanServer(t).URL)
	t.Setenv("ETHERSCAN_RATE_LIMIT", "0")
	t.Setenv("COINGECKO_API_URL", coingeckoServer(t).URL)
	t.Setenv("EVM_CHAINS", "ethereum,polygon")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestExportCommand_EVM(t *testing.T) {
	dir := setupEVMExport(t)
	metricsPath := filepath.Join(dir, "export.prom")

	output, err := runApp(t, "export", "--scope", "evm", "--metrics-file", metricsPath)
	require.NoError(t, err)

	ledgerRows := readCSV(t, filepath.Join(dir, "transactions.csv"))
	require.Len(t, ledgerRows, 2, "header plus the one row above the floor")
	assert.Equal(t, []string{
		"chain", "timestamp", "hash", "from", "to", "token_name", "token_symbol",
		"contract_address", "value", "direction", "usd_price", "usd_value",
	}, ledgerRows[0])
	assert.Equal(t, []string{
		"ethereum", "2023-11-14T22:15:00Z", "0xaaa", "0xsender", testWallet, "USD Coin", "USDC",
		usdc, "5", "IN", "1", "5",
	}, ledgerRows[1])

	summaryRows := readCSV(t, filepath.Join(dir, "token_balances.csv"))
	require.Len(t, summaryRows, 2)
	assert.Equal(t, []string{"ethereum", "USDC", usdc, "5.5", "1", "5.5"}, summaryRows[1])

	assert.Contains(t, output, "USDC")
	assert.Contains(t, output, "5.50")

	metricsText, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `chain_fetches_total{chain="polygon",status="empty"} 1`)
	assert.Contains(t, string(metricsText), `report_rows_total{fate="dropped",table="transactions"} 1`)
}

func TestExportCommand_JSONAndFilter(t *testing.T) {
	dir := setupEVMExport(t)
	txOut := filepath.Join(dir, "ledger.csv")

	output, err := runApp(t, "export", "-s", "evm", "--json",
		"--transactions-out", txOut,
		"--where", `.direction == "OUT"`,
	)
	require.NoError(t, err)

	ledgerRows := readCSV(t, txOut)
	assert.Len(t, ledgerRows, 1, "filter removed every row, header remains")

	var decoded struct {
		Transactions []map[string]string `json:"transactions"`
		Summary      []map[string]string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &decoded))
	assert.Empty(t, decoded.Transactions)
	require.Len(t, decoded.Summary, 1)
	assert.Equal(t, "5.5", decoded.Summary[0]["usd_value"])
}

func TestExportCommand_PublishesRunSummary(t *testing.T) {
	setupEVMExport(t)
	mock := nats.NewMockPublisher()
	var gotURL string
	connect := func(ctx context.Context, url string, logger *slog.Logger) (nats.Publisher, error) {
		gotURL = url
		return mock, nil
	}

	_, err := runAppWith(t, connect, "export", "--scope", "evm", "--nats-url", "nats://example:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://example:4222", gotURL)
	events := mock.GetPublishedEvents()
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, ledger.ScopeEVM, event.Scope)
	assert.Equal(t, testWallet, event.EVMWallet)
	assert.Empty(t, event.SolanaWallet)
	assert.Equal(t, 1, event.Transactions)
	assert.Equal(t, 1, event.TransactionsDropped)
	assert.Equal(t, 1, event.Balances)
	assert.Equal(t, "5.50", event.TotalUSD)
	require.Len(t, event.Chains, 2)
	assert.Equal(t, nats.ChainSummary{Chain: ledger.Ethereum, Status: ledger.StatusOK, Transactions: 2}, event.Chains[0])
	assert.Equal(t, ledger.StatusEmpty, event.Chains[1].Status)
	assert.True(t, mock.IsClosed())
}

func TestExportCommand_PublishFailureDoesNotFailRun(t *testing.T) {
	dir := setupEVMExport(t)
	connect := func(ctx context.Context, url string, logger *slog.Logger) (nats.Publisher, error) {
		return nil, errors.New("no servers available")
	}

	_, err := runAppWith(t, connect, "export", "--scope", "evm", "--nats-url", "nats://down:4222")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "transactions.csv"))
}

func TestExportCommand_NoNATSURLSkipsPublishing(t *testing.T) {
	setupEVMExport(t)
	connect := func(ctx context.Context, url string, logger *slog.Logger) (nats.Publisher, error) {
		t.Fatal("publisher opened without a NATS URL")
		return nil, nil
	}

	_, err := runAppWith(t, connect, "export", "--scope", "evm")
	require.NoError(t, err)
}

func TestExportCommand_InvalidFilterFailsBeforeFetching(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALLET_ADDRESS", testWallet)
	t.Setenv("ETHERSCAN_API_KEY", "test-key")
	t.Setenv("ETHERSCAN_API_URL", "http://127.0.0.1:1")

	_, err := runApp(t, "export", "--scope", "evm", "--where", ".value >")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestExportCommand_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown scope", []string{"export", "--scope", "bitcoin"}, "unsupported scope"},
		{"missing evm settings", []string{"export", "--scope", "evm"}, "WALLET_ADDRESS is required"},
		{"missing solana address", []string{"export", "--scope", "solana"}, "SOLANA_ADDRESS is required"},
		{"missing env file", []string{"export", "--env-file", "nope.env"}, "nope.env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := clearEnv(t)
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			entries, readErr := os.ReadDir(dir)
			require.NoError(t, readErr)
			assert.Empty(t, entries, "nothing is written when configuration is invalid")
		})
	}
}

func TestOutputPaths(t *testing.T) {
	tests := []struct {
		scope          ledger.Scope
		txOut, balOut  string
		wantTx, wantBa string
	}{
		{ledger.ScopeAll, "", "", "transactions_all_chains.csv", "token_balances_summary.csv"},
		{ledger.ScopeEVM, "", "", "transactions.csv", "token_balances.csv"},
		{ledger.ScopeSolana, "", "", "transactions.csv", "token_balances.csv"},
		{ledger.ScopeAll, "a.csv", "b.csv", "a.csv", "b.csv"},
	}
	for _, tt := range tests {
		tx, bal := outputPaths(tt.scope, tt.txOut, tt.balOut)
		assert.Equal(t, tt.wantTx, tx)
		assert.Equal(t, tt.wantBa, bal)
	}
}

func TestChainsCommand(t *testing.T) {
	output, err := runApp(t, "chains")
	require.NoError(t, err)
	assert.Contains(t, output, "polygon-pos")
	assert.Contains(t, output, "137")
	assert.Contains(t, output, "binance-smart-chain")
	assert.True(t, strings.HasPrefix(output, "CHAIN"))

	output, err = runApp(t, "chains", "--json")
	require.NoError(t, err)
	var chains []chainInfo
	require.NoError(t, json.Unmarshal([]byte(output), &chains))
	require.Len(t, chains, len(ledger.EVMChains)+1)
	assert.Equal(t, ledger.Solana, chains[len(chains)-1].Chain)
	assert.Equal(t, "rpc", chains[len(chains)-1].Source)
}

func TestVersionCommand(t *testing.T) {
	output, err := runApp(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "walletexport dev")
}

func TestSetupLogger_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.log")
	logger, closeLog := setupLogger("debug", path)
	logger.Debug("hello", "k", "v")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
