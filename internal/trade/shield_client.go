package trade

import (
	"context"
	"encoding/json"
	"fmt"

	"botfleet/internal/core"
	botfleethttp "botfleet/pkg/http"
)

// ShieldClient implements core.IShieldOracle against the external pre-trade
// safety oracle (spec §1's named external collaborator). Resilience (retry +
// breaker) is carried by the underlying *http.Client, same as every other
// outbound call.
type ShieldClient struct {
	client *botfleethttp.Client
}

// NewShieldClient wraps a resilient HTTP client pointed at the shield oracle.
func NewShieldClient(client *botfleethttp.Client) *ShieldClient {
	return &ShieldClient{client: client}
}

type shieldCheckResponse struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// Check consults the oracle for the (input, output) mint pair.
func (c *ShieldClient) Check(ctx context.Context, inputMint, outputMint string) (core.ShieldVerdict, string, error) {
	body, err := c.client.Get(ctx, "/v1/shield/check", map[string]string{
		"input_mint":  inputMint,
		"output_mint": outputMint,
	})
	if err != nil {
		return "", "", fmt.Errorf("shield check: %w", err)
	}

	var resp shieldCheckResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("decode shield response: %w", err)
	}
	return core.ShieldVerdict(resp.Verdict), resp.Reason, nil
}
