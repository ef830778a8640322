package trade

import (
	"context"
	"encoding/json"
	"fmt"

	"botfleet/internal/core"
	botfleethttp "botfleet/pkg/http"
)

// StrategyClient implements core.IStrategy against the external algorithm
// service that hosts the pluggable trend/mean-reversion/breakout
// implementations — the named external collaborator this module never
// reimplements. It only shapes the request/response around whichever
// algorithm_mode the bot's current config selects.
type StrategyClient struct {
	client *botfleethttp.Client
}

// NewStrategyClient wraps a resilient HTTP client pointed at the algorithm service.
func NewStrategyClient(client *botfleethttp.Client) *StrategyClient {
	return &StrategyClient{client: client}
}

type decideRequestPosition struct {
	Mint          string `json:"mint"`
	QuantityRaw   uint64 `json:"quantity_raw"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

type decideRequest struct {
	AlgorithmMode string                  `json:"algorithm_mode"`
	AssetFocus    string                  `json:"asset_focus"`
	CustomAssets  []string                `json:"custom_assets,omitempty"`
	CashUSDCRaw   uint64                  `json:"cash_usdc_raw"`
	Positions     []decideRequestPosition `json:"positions"`
}

type decideResponse struct {
	WouldTrade  bool    `json:"would_trade"`
	InputMint   string  `json:"input_mint"`
	OutputMint  string  `json:"output_mint"`
	InAmountRaw uint64  `json:"in_amount_raw"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
}

// Decide asks the external algorithm service for a trade signal given the
// bot's current config and portfolio snapshot. A false would_trade is a
// legitimate "no action this tick" outcome, not an error.
func (c *StrategyClient) Decide(ctx context.Context, cfg *core.ConfigVersion, snapshot core.Portfolio) (*core.TradeSignal, error) {
	req := decideRequest{
		AlgorithmMode: string(cfg.Algorithm),
		AssetFocus:    cfg.AssetFocus,
		CustomAssets:  cfg.CustomAssets,
		CashUSDCRaw:   snapshot.CashUSDCRaw,
	}
	for _, pos := range snapshot.Positions {
		req.Positions = append(req.Positions, decideRequestPosition{
			Mint: pos.Mint, QuantityRaw: pos.QuantityRaw, AvgEntryPrice: pos.AvgEntryPrice.String(),
		})
	}

	body, err := c.client.Post(ctx, "/v1/decide", req)
	if err != nil {
		return nil, fmt.Errorf("algorithm decide: %w", err)
	}

	var resp decideResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode decide response: %w", err)
	}
	if !resp.WouldTrade {
		return nil, nil
	}

	return &core.TradeSignal{
		InputMint:   resp.InputMint,
		OutputMint:  resp.OutputMint,
		InAmountRaw: resp.InAmountRaw,
		Confidence:  resp.Confidence,
		Rationale:   resp.Rationale,
	}, nil
}
