package solana

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// Well-known Solana program IDs
var (
	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// lamportsPerSOL as a decimal exponent.
const solDecimals = 9

// txDetail is the subset of a resolved transaction the delta extraction needs.
type txDetail struct {
	Signature   string
	BlockTime   *solana.UnixTimeSeconds
	AccountKeys []solana.PublicKey // static keys, then loaded writable, then loaded readonly
	Meta        *rpc.TransactionMeta
}

// detailFromResult decodes a GetTransaction result into a txDetail.
func detailFromResult(signature string, result *rpc.GetTransactionResult) (txDetail, error) {
	detail := txDetail{
		Signature: signature,
		BlockTime: result.BlockTime,
		Meta:      result.Meta,
	}
	if result.Transaction == nil {
		return detail, fmt.Errorf("transaction envelope missing")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return detail, fmt.Errorf("failed to decode transaction: %w", err)
	}

	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if result.Meta != nil {
		keys = append(keys, result.Meta.LoadedAddresses.Writable...)
		keys = append(keys, result.Meta.LoadedAddresses.ReadOnly...)
	}
	detail.AccountKeys = keys
	return detail, nil
}

// extractTransfers computes the wallet's balance deltas in one transaction.
// SPL deltas come first in mint order, followed by the native SOL delta. Zero
// deltas emit nothing.
func extractTransfers(wallet solana.PublicKey, detail txDetail) ([]ledger.Transaction, error) {
	if detail.Meta == nil {
		return nil, nil
	}

	var ts *time.Time
	if detail.BlockTime != nil {
		t := detail.BlockTime.Time().UTC()
		ts = &t
	}

	deltas := make(map[string]decimal.Decimal)
	accumulate := func(balances []rpc.TokenBalance, sign int64) error {
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(wallet) || b.UiTokenAmount == nil {
				continue
			}
			mint := b.Mint.String()
			amount, err := parseTokenAmount(b.UiTokenAmount.Amount, b.UiTokenAmount.Decimals)
			if err != nil {
				return &MalformedAmountError{Signature: detail.Signature, Mint: mint, Amount: b.UiTokenAmount.Amount}
			}
			deltas[mint] = deltas[mint].Add(amount.Mul(decimal.NewFromInt(sign)))
		}
		return nil
	}
	if err := accumulate(detail.Meta.PreTokenBalances, -1); err != nil {
		return nil, err
	}
	if err := accumulate(detail.Meta.PostTokenBalances, 1); err != nil {
		return nil, err
	}

	mints := make([]string, 0, len(deltas))
	for mint := range deltas {
		mints = append(mints, mint)
	}
	sort.Strings(mints)

	var out []ledger.Transaction
	for _, mint := range mints {
		if tx, ok := deltaTransaction(wallet, detail.Signature, ts, mint, mint, deltas[mint]); ok {
			out = append(out, tx)
		}
	}

	if tx, ok := deltaTransaction(wallet, detail.Signature, ts, ledger.NativeSOL, ledger.NativeSOL, nativeDelta(wallet, detail)); ok {
		out = append(out, tx)
	}
	return out, nil
}

// nativeDelta sums post minus pre lamports at every account-key index holding
// the wallet, in SOL.
func nativeDelta(wallet solana.PublicKey, detail txDetail) decimal.Decimal {
	pre, post := detail.Meta.PreBalances, detail.Meta.PostBalances
	lamports := decimal.Zero
	for i, key := range detail.AccountKeys {
		if !key.Equals(wallet) || i >= len(pre) || i >= len(post) {
			continue
		}
		lamports = lamports.Add(decimal.NewFromUint64(post[i]).Sub(decimal.NewFromUint64(pre[i])))
	}
	return lamports.Shift(-solDecimals)
}

func deltaTransaction(wallet solana.PublicKey, signature string, ts *time.Time, contract, symbol string, delta decimal.Decimal) (ledger.Transaction, bool) {
	if delta.IsZero() {
		return ledger.Transaction{}, false
	}
	tx := ledger.Transaction{
		Chain:           ledger.Solana,
		Timestamp:       ts,
		Hash:            signature,
		TokenName:       symbol,
		TokenSymbol:     symbol,
		ContractAddress: contract,
		Value:           delta.Abs(),
	}
	if delta.IsPositive() {
		tx.Direction = ledger.In
		tx.To = wallet.String()
	} else {
		tx.Direction = ledger.Out
		tx.From = wallet.String()
	}
	return tx, true
}

// parseTokenAmount converts a raw integer token amount to token units.
func parseTokenAmount(raw string, decimals uint8) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return decimal.Zero, fmt.Errorf("not an unsigned integer: %q", raw)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Shift(-int32(decimals)), nil
}

// parsedTokenAccount is the jsonParsed layout of an SPL token account.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals uint8  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
}

// parseTokenAccount extracts the mint and balance from a jsonParsed token
// account.
func parseTokenAccount(data json.RawMessage) (string, decimal.Decimal, error) {
	if len(data) == 0 {
		return "", decimal.Zero, fmt.Errorf("account data is not jsonParsed")
	}
	var acct parsedTokenAccount
	if err := json.Unmarshal(data, &acct); err != nil {
		return "", decimal.Zero, fmt.Errorf("failed to decode token account: %w", err)
	}
	info := acct.Parsed.Info
	if info.Mint == "" {
		return "", decimal.Zero, fmt.Errorf("token account has no mint")
	}
	amount, err := parseTokenAmount(info.TokenAmount.Amount, info.TokenAmount.Decimals)
	if err != nil {
		return "", decimal.Zero, &MalformedAmountError{Mint: info.Mint, Amount: info.TokenAmount.Amount}
	}
	return info.Mint, amount, nil
}
