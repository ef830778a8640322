package httpapi

import (
	"net/http"
	"regexp"
	"time"

	"botfleet/internal/core"
	apperrors "botfleet/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type botRegisterRequest struct {
	AgentWallet string `json:"agent_wallet,omitempty"`
}

type botRegisterResponse struct {
	BotID     string `json:"bot_id"`
	Status    string `json:"status"`
	ConfigURL string `json:"config_url"`
}

// botRegister implements the worker-facing register call: Provisioning ->
// Online. Idempotent by bot_id; a bot not currently Provisioning gets 409.
func (h *handlers) botRegister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bot, err := h.d.Bots.GetBot(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "bot not found"))
		return
	}

	var req botRegisterRequest
	_ = decodeJSON(r, &req)

	if err := h.d.Orchestrator.Register(r.Context(), bot, req.AgentWallet); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, botRegisterResponse{
		BotID: bot.ID, Status: string(core.BotOnline), ConfigURL: "/v1/bot/" + bot.ID + "/config",
	})
}

// botGetConfig returns the bot's desired ConfigVersion rendered as the
// ConfigPayload shape spec §6 defines, including the derived schedule table.
func (h *handlers) botGetConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cv, err := h.d.Configs.GetDesired(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "no desired config for bot"))
		return
	}

	cronJobs, err := generateCronJobs(cv.Strictness, cv.Algorithm)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ExecutionFailure, "schedule derivation failed", err))
		return
	}

	llmKey := ""
	if len(cv.LLMKeyCipher) > 0 {
		plain, err := h.d.Crypto.Decrypt(cv.LLMKeyCipher)
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.ExecutionFailure, "decrypt llm api key", err))
			return
		}
		llmKey = string(plain)
	}

	writeJSON(w, http.StatusOK, configPayload{
		Version: cv.Version,
		Hash:    cv.Hash(),
		AgentConfig: struct {
			Name               string `json:"name"`
			Persona            string `json:"persona"`
			MaxPositionUSDCRaw uint64 `json:"max_position_usdc_raw"`
			MaxDailyLossUSDC   string `json:"max_daily_loss_usdc"`
			MaxDrawdownPct     string `json:"max_drawdown_pct"`
		}{
			Name:               id,
			Persona:            cv.Persona,
			MaxPositionUSDCRaw: cv.RiskCaps.MaxPositionUSDCRaw,
			MaxDailyLossUSDC:   cv.RiskCaps.MaxDailyLossUSDC.String(),
			MaxDrawdownPct:     cv.RiskCaps.MaxDrawdownPct.String(),
		},
		CronJobs: toCronJobPayloads(cronJobs),
		TradingParams: struct {
			AssetFocus    string   `json:"asset_focus"`
			CustomAssets  []string `json:"custom_assets,omitempty"`
			AlgorithmMode string   `json:"algorithm_mode"`
			Strictness    string   `json:"strictness"`
			TradingMode   string   `json:"trading_mode"`
		}{
			AssetFocus:    cv.AssetFocus,
			CustomAssets:  cv.CustomAssets,
			AlgorithmMode: string(cv.Algorithm),
			Strictness:    string(cv.Strictness),
			TradingMode:   string(cv.TradingMode),
		},
		Execution: struct {
			MaxPriceImpactPct  string `json:"max_price_impact_pct"`
			MaxSlippageBps     int    `json:"max_slippage_bps"`
			ConfirmTimeoutSecs int    `json:"confirm_timeout_secs"`
			QuoteCacheSecs     int    `json:"quote_cache_secs"`
		}{
			MaxPriceImpactPct:  cv.Execution.MaxPriceImpactPct.String(),
			MaxSlippageBps:     cv.Execution.MaxSlippageBps,
			ConfirmTimeoutSecs: cv.Execution.ConfirmTimeoutSecs,
			QuoteCacheSecs:     cv.Execution.QuoteCacheSecs,
		},
		LLMConfig: struct {
			Provider string `json:"provider"`
			APIKey   string `json:"api_key"`
		}{Provider: cv.LLMProvider, APIKey: llmKey},
	})
}

func toCronJobPayloads(jobs []CronJob) []cronJobPayload {
	out := make([]cronJobPayload, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, cronJobPayload{Name: j.Name, Schedule: j.Schedule, Message: j.Message})
	}
	return out
}

// botConfigAck implements the acknowledgement contract: a stale hash is a
// Conflict and applied_version_id is left unchanged (spec §4.1, testable
// property "ack safety").
func (h *handlers) botConfigAck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req configAckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "malformed config_ack body"))
		return
	}

	desired, err := h.d.Configs.GetDesired(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "no desired config for bot"))
		return
	}
	if desired.Hash() != req.Hash || desired.Version != req.Version {
		writeError(w, apperrors.ErrStaleConfigAck)
		return
	}

	if err := h.d.Bots.SetAppliedVersion(r.Context(), id, desired.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

var solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

func (h *handlers) botWallet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req walletReportRequest
	if err := decodeJSON(r, &req); err != nil || !solanaAddressPattern.MatchString(req.WalletAddress) {
		writeError(w, apperrors.ErrInvalidWallet)
		return
	}

	if err := h.d.Bots.SetWallet(r.Context(), id, req.WalletAddress); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// botHeartbeat is the liveness source of truth: updates status and
// last_heartbeat_at, appends any carried metrics, and reports whether the
// worker's applied config has fallen behind desired.
func (h *handlers) botHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "malformed heartbeat body"))
		return
	}

	if err := h.d.Bots.UpdateStatus(r.Context(), id, core.BotStatus(req.Status)); err != nil {
		writeError(w, err)
		return
	}
	if err := h.d.Bots.TouchHeartbeat(r.Context(), id, time.Now().Unix()); err != nil {
		writeError(w, err)
		return
	}

	for _, m := range req.Metrics {
		equity, err := decimal.NewFromString(m.Equity)
		if err != nil {
			continue
		}
		pnl, err := decimal.NewFromString(m.PnL)
		if err != nil {
			continue
		}
		_ = h.d.Metrics.Append(r.Context(), &core.Metric{
			BotID: id, Timestamp: time.Unix(m.Timestamp, 0), Equity: equity, PnL: pnl,
		})
	}

	bot, err := h.d.Bots.GetBot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	needsUpdate := bot.DesiredVersionID != bot.AppliedVersionID

	writeJSON(w, http.StatusOK, heartbeatResponse{NeedsConfigUpdate: needsUpdate, Message: "ok"})
}

// botEvents2 is the bot-facing batch event-append endpoint (named distinctly
// from the user-facing read-side botEvents handler in handlers_user.go).
func (h *handlers) botEvents2(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req eventsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "malformed events body"))
		return
	}

	events := make([]*core.Event, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, &core.Event{
			BotID: id, EventType: core.EventType(e.EventType), Message: e.Message,
			Metadata: e.Metadata, CreatedAt: time.Unix(e.CreatedAt, 0),
		})
	}
	if err := h.d.Events.Append(r.Context(), events...); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
