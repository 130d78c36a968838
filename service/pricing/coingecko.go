package pricing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public CoinGecko v3 API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// APIKeyHeader carries the demo-plan API key.
const APIKeyHeader = "x-cg-demo-api-key"

const vsCurrency = "usd"

// HTTPGetter is the transport the pricing client needs. It is satisfied by
// *httpclient.Client.
type HTTPGetter interface {
	GetJSON(ctx context.Context, url string, query map[string]string, out any) error
}

// CoinGecko is a minimal client for the simple price endpoints.
type CoinGecko struct {
	http    HTTPGetter
	baseURL string
}

// NewCoinGecko creates a CoinGecko client. An empty baseURL selects
// DefaultBaseURL. The API key, if any, is configured on the transport.
func NewCoinGecko(http HTTPGetter, baseURL string) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CoinGecko{http: http, baseURL: strings.TrimRight(baseURL, "/")}
}

// priceResponse maps an id or contract address to {currency: price}.
type priceResponse map[string]map[string]decimal.Decimal

// TokenPrices looks up USD prices for contract addresses on one platform in a
// single request. The returned map is keyed as the API returned it; addresses
// without a price are absent.
func (c *CoinGecko) TokenPrices(ctx context.Context, platform string, addresses []string) (map[string]decimal.Decimal, error) {
	if len(addresses) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	endpoint := fmt.Sprintf("%s/simple/token_price/%s", c.baseURL, url.PathEscape(platform))
	var resp priceResponse
	err := c.http.GetJSON(ctx, endpoint, map[string]string{
		"contract_addresses": strings.Join(addresses, ","),
		"vs_currencies":      vsCurrency,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("token prices for %s: %w", platform, err)
	}
	return resp.usd(), nil
}

// CoinPrice looks up the USD price of a single asset by its CoinGecko id.
// A missing price yields zero and no error.
func (c *CoinGecko) CoinPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	var resp priceResponse
	err := c.http.GetJSON(ctx, c.baseURL+"/simple/price", map[string]string{
		"ids":           id,
		"vs_currencies": vsCurrency,
	}, &resp)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price for %s: %w", id, err)
	}
	return resp.usd()[id], nil
}

func (r priceResponse) usd() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(r))
	for key, quotes := range r {
		if price, ok := quotes[vsCurrency]; ok {
			out[key] = price
		}
	}
	return out
}
