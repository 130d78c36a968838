package evm

import (
	"encoding/json"
	"fmt"

	"github.com/brojonat/walletexport/service/ledger"
)

// RawTransfer is one ERC-20 transfer record as returned by the explorer's
// `tokentx` action. Numeric fields arrive as decimal strings.
type RawTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// explorerEnvelope is the status envelope wrapping every explorer response.
// Result is a list on success and a human-readable string otherwise.
type explorerEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// MalformedRecordError reports a transfer whose numeric fields cannot be
// parsed. It is fatal: coercing the value would corrupt balances.
type MalformedRecordError struct {
	Chain ledger.Chain
	Hash  string
	Field string
	Value string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s transfer %s: field %s=%q: %v", e.Chain, e.Hash, e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}
