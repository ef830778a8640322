package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"botfleet/internal/core"
	botfleethttp "botfleet/pkg/http"

	"github.com/shopspring/decimal"
)

func nowUnix() int64 {
	return time.Now().Unix()
}

// ControlPlaneClient implements core.IControlPlaneClient over the bot-facing
// sync endpoints (spec §4.3/§6). It holds no state of its own beyond the bot
// id and the underlying resilient HTTP client.
type ControlPlaneClient struct {
	client *botfleethttp.Client
	botID  string
}

// NewControlPlaneClient binds a resilient HTTP client to a single bot id.
func NewControlPlaneClient(client *botfleethttp.Client, botID string) *ControlPlaneClient {
	return &ControlPlaneClient{client: client, botID: botID}
}

type registerRequest struct {
	AgentWallet string `json:"agent_wallet,omitempty"`
}

type registerResponse struct {
	BotID     string `json:"bot_id"`
	Status    string `json:"status"`
	ConfigURL string `json:"config_url"`
}

// Register calls the bot-facing register endpoint, signaling
// Provisioning -> Online. A 409 means the bot is not in Provisioning status.
func (c *ControlPlaneClient) Register(ctx context.Context, botID string, walletAddress string) error {
	body, err := c.client.Post(ctx, "/v1/bot/"+botID+"/register", registerRequest{AgentWallet: walletAddress})
	if err != nil {
		var apiErr *botfleethttp.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 409 {
			return fmt.Errorf("register conflict: bot %s not in provisioning status", botID)
		}
		return fmt.Errorf("register: %w", err)
	}
	var resp registerResponse
	return json.Unmarshal(body, &resp)
}

// cronJobPayload is one entry of ConfigPayload.cron_jobs.
type cronJobPayload struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
}

// configPayload mirrors spec §6's bot-facing ConfigPayload shape.
type configPayload struct {
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
	AgentConfig struct {
		Name                string   `json:"name"`
		Persona             string   `json:"persona"`
		MaxPositionUSDCRaw  uint64   `json:"max_position_usdc_raw"`
		MaxDailyLossUSDC    string   `json:"max_daily_loss_usdc"`
		MaxDrawdownPct      string   `json:"max_drawdown_pct"`
	} `json:"agent_config"`
	CronJobs []cronJobPayload `json:"cron_jobs"`
	TradingParams struct {
		AssetFocus    string   `json:"asset_focus"`
		CustomAssets  []string `json:"custom_assets,omitempty"`
		AlgorithmMode string   `json:"algorithm_mode"`
		Strictness    string   `json:"strictness"`
		TradingMode   string   `json:"trading_mode"`
	} `json:"trading_params"`
	Execution struct {
		MaxPriceImpactPct  string `json:"max_price_impact_pct"`
		MaxSlippageBps     int    `json:"max_slippage_bps"`
		ConfirmTimeoutSecs int    `json:"confirm_timeout_secs"`
		QuoteCacheSecs     int    `json:"quote_cache_secs"`
	} `json:"execution"`
	LLMConfig struct {
		Provider string `json:"provider"`
		APIKey   string `json:"api_key"`
	} `json:"llm_config"`
}

// GetConfig fetches the bot's desired ConfigVersion and its content hash.
func (c *ControlPlaneClient) GetConfig(ctx context.Context, botID string) (*core.ConfigVersion, string, error) {
	body, err := c.client.Get(ctx, "/v1/bot/"+botID+"/config", nil)
	if err != nil {
		return nil, "", fmt.Errorf("get config: %w", err)
	}

	var payload configPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", fmt.Errorf("decode config payload: %w", err)
	}

	maxDailyLoss, err := decimal.NewFromString(payload.AgentConfig.MaxDailyLossUSDC)
	if err != nil {
		return nil, "", fmt.Errorf("parse max_daily_loss_usdc: %w", err)
	}
	maxDrawdown, err := decimal.NewFromString(payload.AgentConfig.MaxDrawdownPct)
	if err != nil {
		return nil, "", fmt.Errorf("parse max_drawdown_pct: %w", err)
	}
	maxImpact, err := decimal.NewFromString(payload.Execution.MaxPriceImpactPct)
	if err != nil {
		return nil, "", fmt.Errorf("parse max_price_impact_pct: %w", err)
	}

	cv := &core.ConfigVersion{
		ID:           botID,
		BotID:        botID,
		Version:      payload.Version,
		Persona:      payload.AgentConfig.Persona,
		AssetFocus:   payload.TradingParams.AssetFocus,
		CustomAssets: payload.TradingParams.CustomAssets,
		Algorithm:    core.AlgorithmMode(payload.TradingParams.AlgorithmMode),
		Strictness:   core.Strictness(payload.TradingParams.Strictness),
		RiskCaps: core.RiskCaps{
			MaxPositionUSDCRaw: payload.AgentConfig.MaxPositionUSDCRaw,
			MaxDailyLossUSDC:   maxDailyLoss,
			MaxDrawdownPct:     maxDrawdown,
		},
		TradingMode: core.TradingMode(payload.TradingParams.TradingMode),
		Execution: core.ExecutionParams{
			MaxPriceImpactPct:  maxImpact,
			MaxSlippageBps:     payload.Execution.MaxSlippageBps,
			ConfirmTimeoutSecs: payload.Execution.ConfirmTimeoutSecs,
			QuoteCacheSecs:     payload.Execution.QuoteCacheSecs,
		},
		LLMProvider: payload.LLMConfig.Provider,
	}
	return cv, payload.Hash, nil
}

type configAckRequest struct {
	Version   int64  `json:"version"`
	Hash      string `json:"hash"`
	AppliedAt int64  `json:"applied_at"`
}

// AckConfig acknowledges the applied version under the hash it was fetched
// with; a stale hash surfaces as a Conflict, per spec §4.1's ack contract.
func (c *ControlPlaneClient) AckConfig(ctx context.Context, botID string, version int64, hash string) error {
	_, err := c.client.Post(ctx, "/v1/bot/"+botID+"/config_ack", configAckRequest{
		Version: version, Hash: hash, AppliedAt: nowUnix(),
	})
	if err != nil {
		var apiErr *botfleethttp.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 409 {
			return fmt.Errorf("config ack conflict: stale hash for bot %s", botID)
		}
		return fmt.Errorf("ack config: %w", err)
	}
	return nil
}

type walletReportRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// ReportWallet posts the worker's wallet address; last-write-wins server-side.
func (c *ControlPlaneClient) ReportWallet(ctx context.Context, botID string, address string) error {
	_, err := c.client.Post(ctx, "/v1/bot/"+botID+"/wallet", walletReportRequest{WalletAddress: address})
	if err != nil {
		return fmt.Errorf("report wallet: %w", err)
	}
	return nil
}

type metricPayload struct {
	Timestamp int64  `json:"timestamp"`
	Equity    string `json:"equity"`
	PnL       string `json:"pnl"`
}

type heartbeatRequest struct {
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	Metrics   []metricPayload `json:"metrics,omitempty"`
}

type heartbeatResponse struct {
	NeedsConfigUpdate bool   `json:"needs_config_update"`
	Message           string `json:"message"`
}

// Heartbeat reports liveness plus any accumulated metrics, returning whether
// the worker's applied config has fallen behind the server's desired one.
func (c *ControlPlaneClient) Heartbeat(ctx context.Context, botID string, status core.BotStatus, metrics []*core.Metric) (bool, error) {
	payloadMetrics := make([]metricPayload, 0, len(metrics))
	for _, m := range metrics {
		payloadMetrics = append(payloadMetrics, metricPayload{
			Timestamp: m.Timestamp.Unix(),
			Equity:    m.Equity.String(),
			PnL:       m.PnL.String(),
		})
	}

	body, err := c.client.Post(ctx, "/v1/bot/"+botID+"/heartbeat", heartbeatRequest{
		Status: string(status), Timestamp: nowUnix(), Metrics: payloadMetrics,
	})
	if err != nil {
		return false, fmt.Errorf("heartbeat: %w", err)
	}

	var resp heartbeatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode heartbeat response: %w", err)
	}
	return resp.NeedsConfigUpdate, nil
}

type eventPayload struct {
	EventType string            `json:"event_type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type eventsRequest struct {
	Events []eventPayload `json:"events"`
}

// SendEvents batch-appends events to the control plane.
func (c *ControlPlaneClient) SendEvents(ctx context.Context, botID string, events []*core.Event) error {
	if len(events) == 0 {
		return nil
	}
	payload := make([]eventPayload, 0, len(events))
	for _, e := range events {
		payload = append(payload, eventPayload{
			EventType: string(e.EventType), Message: e.Message, Metadata: e.Metadata, CreatedAt: e.CreatedAt.Unix(),
		})
	}
	_, err := c.client.Post(ctx, "/v1/bot/"+botID+"/events", eventsRequest{Events: payload})
	if err != nil {
		return fmt.Errorf("send events: %w", err)
	}
	return nil
}
