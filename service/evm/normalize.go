package evm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/shopspring/decimal"
)

// maxTokenDecimals bounds tokenDecimal; anything larger is not a real token.
const maxTokenDecimals = 255

// Normalize converts raw explorer transfers for one chain into ledger
// transactions. It is a pure function of its inputs. The first record with an
// unparsable numeric field aborts normalization with a *MalformedRecordError.
func Normalize(chain ledger.Chain, wallet string, records []RawTransfer) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0, len(records))
	for _, raw := range records {
		tx, err := normalizeTransfer(chain, wallet, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func normalizeTransfer(chain ledger.Chain, wallet string, raw RawTransfer) (ledger.Transaction, error) {
	malformed := func(field, value string, err error) error {
		return &MalformedRecordError{Chain: chain, Hash: raw.Hash, Field: field, Value: value, Err: err}
	}

	amount, err := parseInteger(raw.Value)
	if err != nil {
		return ledger.Transaction{}, malformed("value", raw.Value, err)
	}
	if amount.IsNegative() {
		return ledger.Transaction{}, malformed("value", raw.Value, fmt.Errorf("negative transfer value"))
	}

	decimals, err := strconv.ParseUint(strings.TrimSpace(raw.TokenDecimal), 10, 16)
	if err != nil {
		return ledger.Transaction{}, malformed("tokenDecimal", raw.TokenDecimal, err)
	}
	if decimals > maxTokenDecimals {
		return ledger.Transaction{}, malformed("tokenDecimal", raw.TokenDecimal, fmt.Errorf("exceeds %d", maxTokenDecimals))
	}

	var ts *time.Time
	if s := strings.TrimSpace(raw.TimeStamp); s != "" {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ledger.Transaction{}, malformed("timeStamp", raw.TimeStamp, err)
		}
		t := time.Unix(secs, 0).UTC()
		ts = &t
	}

	direction := ledger.Out
	if strings.EqualFold(raw.To, wallet) {
		direction = ledger.In
	}

	return ledger.Transaction{
		Chain:           chain,
		Timestamp:       ts,
		Hash:            raw.Hash,
		From:            raw.From,
		To:              raw.To,
		TokenName:       raw.TokenName,
		TokenSymbol:     raw.TokenSymbol,
		ContractAddress: ledger.NormalizeAddress(chain, raw.ContractAddress),
		Value:           amount.Shift(-int32(decimals)),
		Direction:       direction,
	}, nil
}

// parseInteger parses a base-10 integer of arbitrary size.
func parseInteger(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty")
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return decimal.Zero, fmt.Errorf("not an integer")
		}
	}
	return decimal.NewFromString(s)
}
