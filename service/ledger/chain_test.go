package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	tests := []struct {
		in      string
		want    Chain
		wantErr bool
	}{
		{in: "ethereum", want: Ethereum},
		{in: "  BSC ", want: BSC},
		{in: "Solana", want: Solana},
		{in: "base", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChain(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainID(t *testing.T) {
	id, ok := Arbitrum.ChainID()
	assert.True(t, ok)
	assert.Equal(t, int64(42161), id)

	_, ok = Solana.ChainID()
	assert.False(t, ok)
	assert.False(t, Solana.IsEVM())
	assert.True(t, Avalanche.IsEVM())
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		NormalizeAddress(Ethereum, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		NormalizeAddress(Solana, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
}

func TestPriceIndex_Price(t *testing.T) {
	idx := PriceIndex{
		NewPriceKey(Ethereum, "0xABC"): decimal.NewFromInt(2),
	}

	assert.True(t, idx.Price(Ethereum, "0xabc").Equal(decimal.NewFromInt(2)))
	assert.True(t, idx.Price(Polygon, "0xabc").IsZero(), "same address on another chain is a different token")
	assert.True(t, idx.Price(Ethereum, "0xdef").IsZero())
}

func TestTransaction_Signed(t *testing.T) {
	tx := Transaction{Value: decimal.RequireFromString("1.5"), Direction: Out}
	assert.Equal(t, "-1.5", tx.Signed().String())

	tx.Direction = In
	assert.Equal(t, "1.5", tx.Signed().String())
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		evm     bool
		solana  bool
		wantErr bool
	}{
		{"", ScopeAll, true, true, false},
		{"all", ScopeAll, true, true, false},
		{" EVM ", ScopeEVM, true, false, false},
		{"solana", ScopeSolana, false, true, false},
		{"bitcoin", "", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.evm, got.IncludesEVM())
			assert.Equal(t, tt.solana, got.IncludesSolana())
		})
	}
}
