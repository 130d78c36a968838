package evm

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brojonat/walletexport/service/httpclient"
	"github.com/brojonat/walletexport/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExplorer(t *testing.T, handler http.HandlerFunc) *ExplorerClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := httpclient.New(httpclient.Config{API: "etherscan"}, nil, logger)
	t.Cleanup(func() { transport.Close() })

	return NewExplorerClient(transport, server.URL, "test-key", logger)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body)
}

func TestTokenTransfers_Success(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "137", q.Get("chainid"))
		assert.Equal(t, "account", q.Get("module"))
		assert.Equal(t, "tokentx", q.Get("action"))
		assert.Equal(t, testWallet, q.Get("address"))
		assert.Equal(t, "asc", q.Get("sort"))
		assert.Equal(t, "test-key", q.Get("apikey"))

		writeJSON(w, `{"status":"1","message":"OK","result":[
			{"blockNumber":"1","timeStamp":"1700000000","hash":"0x1","from":"0xa","to":"0xb",
			 "value":"1000","contractAddress":"0xC","tokenName":"T","tokenSymbol":"T","tokenDecimal":"3"}
		]}`)
	})

	records, outcome, err := client.TokenTransfers(context.Background(), ledger.Polygon, testWallet)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusOK, outcome.Status)
	require.Len(t, records, 1)
	assert.Equal(t, "1000", records[0].Value)
	assert.Equal(t, "3", records[0].TokenDecimal)
}

func TestTokenTransfers_NoDataStatus(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"0","message":"No transactions found","result":[]}`)
	})

	records, outcome, err := client.TokenTransfers(context.Background(), ledger.Ethereum, testWallet)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, ledger.StatusEmpty, outcome.Status)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "No transactions found")
}

func TestTokenTransfers_ErrorEnvelopeWithStringResult(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`)
	})

	records, outcome, err := client.TokenTransfers(context.Background(), ledger.BSC, testWallet)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, ledger.StatusEmpty, outcome.Status)
	assert.Contains(t, outcome.Err.Error(), "Invalid API Key")
}

func TestTokenTransfers_TransportFailure(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	records, outcome, err := client.TokenTransfers(context.Background(), ledger.Avalanche, testWallet)
	require.NoError(t, err, "a failed chain is degraded, not fatal")
	assert.Empty(t, records)
	assert.Equal(t, ledger.StatusFailed, outcome.Status)
	assert.Error(t, outcome.Err)
}

func TestTokenTransfers_HTMLPageIsFailure(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html>oops</html>")
	})

	records, outcome, err := client.TokenTransfers(context.Background(), ledger.Ethereum, testWallet)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, ledger.StatusFailed, outcome.Status, "an unreadable page is not an empty history")
	require.Error(t, outcome.Err)
	assert.NotEmpty(t, outcome.Err.Error())
}

func TestTokenTransfers_UnsupportedChain(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, _, err := client.TokenTransfers(context.Background(), ledger.Solana, testWallet)
	assert.Error(t, err)
}
