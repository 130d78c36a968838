package solana

import (
	"fmt"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/gagliardetto/solana-go"
)

// DefaultSignatureLimit is the size of the signature window fetched per run.
const DefaultSignatureLimit = 100

// FetchTransfersParams contains parameters for fetching a wallet's transfers.
type FetchTransfersParams struct {
	Wallet solana.PublicKey
	Limit  int
}

// TransferResult is the outcome of one signature-window fetch.
type TransferResult struct {
	Transactions []ledger.Transaction
	Outcome      ledger.Outcome
	Signatures   int // signatures listed by the RPC node
	Skipped      int // signatures with no resolvable detail
}

// BalanceResult is the outcome of an authoritative balance snapshot.
type BalanceResult struct {
	Snapshot ledger.Snapshot
	Outcome  ledger.Outcome
}

// MalformedAmountError reports a token balance entry whose raw amount is not
// an integer. Like its EVM counterpart it is fatal.
type MalformedAmountError struct {
	Signature string
	Mint      string
	Amount    string
}

func (e *MalformedAmountError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("malformed token amount %q for mint %s", e.Amount, e.Mint)
	}
	return fmt.Sprintf("malformed token amount %q for mint %s in %s", e.Amount, e.Mint, e.Signature)
}
