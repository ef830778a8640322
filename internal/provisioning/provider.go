package provisioning

import (
	"context"
	"encoding/json"
	"fmt"

	botfleethttp "botfleet/pkg/http"
)

// HTTPProvider is a thin REST client for the external infrastructure
// provider (the collaborator spec §1 calls out as deliberately out of
// scope). It satisfies core.IInfraProvider. The fleet-wide retry and circuit
// breaker live one layer up, in Orchestrator; the *botfleethttp.Client it
// wraps adds its own retry and breaker as configured by its constructor
// (cmd/controlplane builds it from the provisioning retry and breaker
// settings), so each orchestrator attempt may itself be retried here.
type HTTPProvider struct {
	client *botfleethttp.Client
}

// NewHTTPProvider wraps a resilient HTTP client pointed at the provider's base URL.
func NewHTTPProvider(client *botfleethttp.Client) *HTTPProvider {
	return &HTTPProvider{client: client}
}

type provisionHostRequest struct {
	BotID string `json:"bot_id"`
}

type provisionHostResponse struct {
	HostID string `json:"host_id"`
	IP     string `json:"ip"`
}

// ProvisionHost requests a new host for botID.
func (p *HTTPProvider) ProvisionHost(ctx context.Context, botID string) (string, string, error) {
	body, err := p.client.Post(ctx, "/v1/hosts", provisionHostRequest{BotID: botID})
	if err != nil {
		return "", "", fmt.Errorf("provision host: %w", err)
	}
	var resp provisionHostResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("decode provision response: %w", err)
	}
	return resp.HostID, resp.IP, nil
}

// ReleaseHost tears down a previously provisioned host.
func (p *HTTPProvider) ReleaseHost(ctx context.Context, hostID string) error {
	_, err := p.client.Delete(ctx, "/v1/hosts/"+hostID, nil)
	if err != nil {
		return fmt.Errorf("release host: %w", err)
	}
	return nil
}

// CheckHost probes a host's health.
func (p *HTTPProvider) CheckHost(ctx context.Context, hostID string) error {
	_, err := p.client.Get(ctx, "/v1/hosts/"+hostID+"/health", nil)
	if err != nil {
		return fmt.Errorf("check host: %w", err)
	}
	return nil
}
