package trade

import (
	"context"
	"encoding/json"
	"fmt"

	botfleethttp "botfleet/pkg/http"
)

// ChainReader implements core.IChainReader over a Solana JSON-RPC endpoint.
// It speaks the bare getTokenAccountsByOwner call the
// reconciler needs, rather than pulling in a full chain SDK the rest of this
// module has no other use for; the resilient transport is the same
// *http.Client every other outbound collaborator uses.
type ChainReader struct {
	client *botfleethttp.Client
}

// NewChainReader wraps a resilient HTTP client pointed at a Solana RPC endpoint.
func NewChainReader(client *botfleethttp.Client) *ChainReader {
	return &ChainReader{client: client}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type tokenAccountsResponse struct {
	Result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// WalletHoldings returns every SPL token mint balance for the wallet,
// keyed by mint. Native SOL is deliberately out of scope: the reconciler
// only tracks SPL token positions.
func (c *ChainReader) WalletHoldings(ctx context.Context, walletAddress string) (map[string]uint64, error) {
	body, err := c.client.Post(ctx, "", rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountsByOwner",
		Params: []interface{}{
			walletAddress,
			map[string]string{"programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"},
			map[string]string{"encoding": "jsonParsed"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get token accounts: %w", err)
	}

	var resp tokenAccountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode token accounts response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("rpc error: %s", resp.Error.Message)
	}

	holdings := make(map[string]uint64, len(resp.Result.Value))
	for _, v := range resp.Result.Value {
		info := v.Account.Data.Parsed.Info
		var amount uint64
		if _, err := fmt.Sscanf(info.TokenAmount.Amount, "%d", &amount); err != nil {
			continue
		}
		holdings[info.Mint] += amount
	}
	return holdings, nil
}
