package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"botfleet/internal/core"
	botfleethttp "botfleet/pkg/http"

	"github.com/shopspring/decimal"
)

// QuoteClient implements core.IQuoteProvider against the external
// market-data service (spec §1's named external collaborator).
type QuoteClient struct {
	client *botfleethttp.Client
}

// NewQuoteClient wraps a resilient HTTP client pointed at the quote service.
func NewQuoteClient(client *botfleethttp.Client) *QuoteClient {
	return &QuoteClient{client: client}
}

type quoteResponse struct {
	ExpectedOutRaw string `json:"expected_out_raw"`
	PriceImpactPct string `json:"price_impact_pct"`
	FeeBps         int    `json:"fee_bps"`
}

// Quote fetches a swap quote for inAmountRaw of inputMint into outputMint.
func (c *QuoteClient) Quote(ctx context.Context, inputMint, outputMint string, inAmountRaw uint64) (*core.Quote, error) {
	body, err := c.client.Get(ctx, "/v1/quote", map[string]string{
		"input_mint":    inputMint,
		"output_mint":   outputMint,
		"in_amount_raw": strconv.FormatUint(inAmountRaw, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch quote: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}

	expectedOut, err := strconv.ParseUint(resp.ExpectedOutRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expected_out_raw: %w", err)
	}
	impact, err := decimal.NewFromString(resp.PriceImpactPct)
	if err != nil {
		return nil, fmt.Errorf("parse price_impact_pct: %w", err)
	}

	return &core.Quote{
		InAmountRaw:    inAmountRaw,
		ExpectedOutRaw: expectedOut,
		PriceImpactPct: impact,
		FeeBps:         resp.FeeBps,
	}, nil
}
