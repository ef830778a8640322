package httpapi

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"botfleet/internal/core"
	apperrors "botfleet/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type handlers struct {
	d Deps
}

type meResponse struct {
	UserID string `json:"user_id"`
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, meResponse{UserID: userIDFromContext(r.Context())})
}

type botSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	ConfigStatus    string `json:"config_status"`
	LastHeartbeatAt int64  `json:"last_heartbeat_at,omitempty"`
}

func toBotSummary(b *core.Bot) botSummary {
	s := botSummary{ID: b.ID, Name: b.Name, Status: string(b.Status), ConfigStatus: string(b.ConfigStatus)}
	if !b.LastHeartbeatAt.IsZero() {
		s.LastHeartbeatAt = b.LastHeartbeatAt.Unix()
	}
	return s
}

func (h *handlers) listBots(w http.ResponseWriter, r *http.Request) {
	bots, err := h.d.Bots.ListBotsByUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]botSummary, 0, len(bots))
	for _, b := range bots {
		out = append(out, toBotSummary(b))
	}
	writeJSON(w, http.StatusOK, out)
}

var botNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _-]{1,63}$`)

type createBotRequest struct {
	Name string `json:"name"`
}

func (h *handlers) createBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := decodeJSON(r, &req); err != nil || !botNamePattern.MatchString(req.Name) {
		writeError(w, apperrors.New(apperrors.Validation, "bad bot name"))
		return
	}

	userID := userIDFromContext(r.Context())
	if h.d.MaxBotsPerUser > 0 {
		existing, err := h.d.Bots.ListBotsByUser(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(existing) >= h.d.MaxBotsPerUser {
			writeError(w, apperrors.ErrQuotaExceeded)
			return
		}
	}

	bot := &core.Bot{
		ID:           uuid.New().String(),
		UserID:       userID,
		Name:         req.Name,
		Status:       core.BotProvisioning,
		ConfigStatus: core.ConfigPending,
	}
	if err := h.d.Bots.CreateBot(r.Context(), bot); err != nil {
		writeError(w, err)
		return
	}

	if err := h.d.Orchestrator.Provision(r.Context(), bot.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBotSummary(bot))
}

type botDetail struct {
	botSummary
	DesiredVersion *configVersionView `json:"desired_version,omitempty"`
	AppliedVersion *configVersionView `json:"applied_version,omitempty"`
}

type configVersionView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
}

func (h *handlers) mustOwnBot(ctx context.Context, w http.ResponseWriter, r *http.Request) *core.Bot {
	id := chi.URLParam(r, "id")
	bot, err := h.d.Bots.GetBot(ctx, id)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "bot not found"))
		return nil
	}
	if bot.UserID != userIDFromContext(ctx) {
		writeError(w, apperrors.New(apperrors.Capacity, "not your bot"))
		return nil
	}
	return bot
}

func (h *handlers) getBot(w http.ResponseWriter, r *http.Request) {
	bot := h.mustOwnBot(r.Context(), w, r)
	if bot == nil {
		return
	}

	detail := botDetail{botSummary: toBotSummary(bot)}
	if bot.DesiredVersionID != "" {
		if cv, err := h.d.Configs.GetByID(r.Context(), bot.DesiredVersionID); err == nil {
			detail.DesiredVersion = &configVersionView{ID: cv.ID, Version: cv.Version, Hash: cv.Hash()}
		}
	}
	if bot.AppliedVersionID != "" {
		if cv, err := h.d.Configs.GetByID(r.Context(), bot.AppliedVersionID); err == nil {
			detail.AppliedVersion = &configVersionView{ID: cv.ID, Version: cv.Version, Hash: cv.Hash()}
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

type patchConfigRequest struct {
	Persona            string   `json:"persona"`
	AssetFocus         string   `json:"asset_focus"`
	CustomAssets       []string `json:"custom_assets,omitempty"`
	Algorithm          string   `json:"algorithm"`
	Strictness         string   `json:"strictness"`
	MaxPositionUSDCRaw uint64   `json:"max_position_usdc_raw"`
	MaxDailyLossUSDC   string   `json:"max_daily_loss_usdc"`
	MaxDrawdownPct     string   `json:"max_drawdown_pct"`
	TradingMode        string   `json:"trading_mode"`
	MaxPriceImpactPct  string   `json:"max_price_impact_pct"`
	MaxSlippageBps     int      `json:"max_slippage_bps"`
	ConfirmTimeoutSecs int      `json:"confirm_timeout_secs"`
	QuoteCacheSecs     int      `json:"quote_cache_secs"`
	LLMProvider        string   `json:"llm_provider,omitempty"`
	LLMAPIKey          string   `json:"llm_api_key,omitempty"`
}

func (h *handlers) patchBotConfig(w http.ResponseWriter, r *http.Request) {
	bot := h.mustOwnBot(r.Context(), w, r)
	if bot == nil {
		return
	}

	var req patchConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "malformed config body"))
		return
	}

	maxDailyLoss, err1 := decimal.NewFromString(orZero(req.MaxDailyLossUSDC))
	maxDrawdown, err2 := decimal.NewFromString(orZero(req.MaxDrawdownPct))
	maxImpact, err3 := decimal.NewFromString(orZero(req.MaxPriceImpactPct))
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, apperrors.New(apperrors.Validation, "out-of-range risk caps"))
		return
	}

	if _, err := generateCronJobs(core.Strictness(req.Strictness), core.AlgorithmMode(req.Algorithm)); err != nil {
		writeError(w, apperrors.New(apperrors.Validation, err.Error()))
		return
	}

	cv := &core.ConfigVersion{
		ID:           uuid.New().String(),
		BotID:        bot.ID,
		Persona:      req.Persona,
		AssetFocus:   req.AssetFocus,
		CustomAssets: req.CustomAssets,
		Algorithm:    core.AlgorithmMode(req.Algorithm),
		Strictness:   core.Strictness(req.Strictness),
		RiskCaps: core.RiskCaps{
			MaxPositionUSDCRaw: req.MaxPositionUSDCRaw,
			MaxDailyLossUSDC:   maxDailyLoss,
			MaxDrawdownPct:     maxDrawdown,
		},
		TradingMode: core.TradingMode(req.TradingMode),
		Execution: core.ExecutionParams{
			MaxPriceImpactPct:  maxImpact,
			MaxSlippageBps:     req.MaxSlippageBps,
			ConfirmTimeoutSecs: req.ConfirmTimeoutSecs,
			QuoteCacheSecs:     req.QuoteCacheSecs,
		},
		LLMProvider: req.LLMProvider,
		CreatedAt:   time.Now(),
	}

	if req.LLMAPIKey != "" {
		cipher, err := h.d.Crypto.Encrypt([]byte(req.LLMAPIKey))
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.ExecutionFailure, "encrypt llm api key", err))
			return
		}
		cv.LLMKeyCipher = cipher
	}

	if err := h.d.Configs.CreateVersion(r.Context(), cv); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, configVersionView{ID: cv.ID, Version: cv.Version, Hash: cv.Hash()})
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

type botActionRequest struct {
	Action string `json:"action"`
}

func (h *handlers) botAction(w http.ResponseWriter, r *http.Request) {
	bot := h.mustOwnBot(r.Context(), w, r)
	if bot == nil {
		return
	}

	var req botActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "malformed action body"))
		return
	}

	var err error
	switch req.Action {
	case "pause":
		err = h.d.Orchestrator.Pause(r.Context(), bot.ID)
	case "resume":
		err = h.d.Orchestrator.Resume(r.Context(), bot.ID)
	case "redeploy":
		err = h.d.Orchestrator.Provision(r.Context(), bot.ID)
	case "destroy":
		err = h.d.Orchestrator.Destroy(r.Context(), bot.ID)
	default:
		writeError(w, apperrors.New(apperrors.Validation, "unknown action"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type metricPoint struct {
	Timestamp int64  `json:"timestamp"`
	Equity    string `json:"equity"`
	PnL       string `json:"pnl"`
}

func (h *handlers) botMetrics(w http.ResponseWriter, r *http.Request) {
	bot := h.mustOwnBot(r.Context(), w, r)
	if bot == nil {
		return
	}

	since := time.Now().Add(-7 * 24 * time.Hour).Unix()
	series, err := h.d.Metrics.Series(r.Context(), bot.ID, since)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]metricPoint, 0, len(series))
	for _, m := range series {
		out = append(out, metricPoint{Timestamp: m.Timestamp.Unix(), Equity: m.Equity.String(), PnL: m.PnL.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

type eventView struct {
	ID        string            `json:"id"`
	EventType string            `json:"event_type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type eventsPage struct {
	Events     []eventView `json:"events"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func (h *handlers) botEvents(w http.ResponseWriter, r *http.Request) {
	bot := h.mustOwnBot(r.Context(), w, r)
	if bot == nil {
		return
	}

	cursor := r.URL.Query().Get("cursor")
	events, next, err := h.d.Events.List(r.Context(), bot.ID, cursor, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{ID: e.ID, EventType: string(e.EventType), Message: e.Message, Metadata: e.Metadata, CreatedAt: e.CreatedAt.Unix()})
	}
	writeJSON(w, http.StatusOK, eventsPage{Events: out, NextCursor: next})
}

// simulateSignalRequest carries a prospective swap and a caller-supplied
// confidence for the /v1/simulate-signal dry run. The request takes no
// candles and the handler consults no core.IStrategy: it reports
// would_trade when the supplied confidence is at least 0.5.
type simulateSignalRequest struct {
	InputMint   string  `json:"input_mint"`
	OutputMint  string  `json:"output_mint"`
	InAmountRaw uint64  `json:"in_amount_raw"`
	Confidence  float64 `json:"confidence"`
}

type simulateSignalResponse struct {
	WouldTrade bool    `json:"would_trade"`
	Confidence float64 `json:"confidence"`
}

func (h *handlers) simulateSignal(w http.ResponseWriter, r *http.Request) {
	var req simulateSignalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "malformed simulate-signal body"))
		return
	}
	writeJSON(w, http.StatusOK, simulateSignalResponse{WouldTrade: req.Confidence >= 0.5, Confidence: req.Confidence})
}

type healthzResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// healthz backs the 5s health-probe timeout spec §5 names; unhealthy yields
// a 503 so a load balancer or orchestrator can route around this instance.
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.d.Health == nil {
		writeJSON(w, http.StatusOK, healthzResponse{Status: "healthy"})
		return
	}
	status := h.d.Health.GetStatus()
	if h.d.Health.IsHealthy() {
		writeJSON(w, http.StatusOK, healthzResponse{Status: "healthy", Components: status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, healthzResponse{Status: "unhealthy", Components: status})
}
