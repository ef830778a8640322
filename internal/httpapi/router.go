package httpapi

import (
	"net/http"

	"botfleet/internal/config"
	"botfleet/internal/core"
	"botfleet/internal/provisioning"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps bundles every collaborator the HTTP surface drives. Handlers only see
// the core interfaces, never concrete store types, so they compose the same
// way against fakes in tests.
type Deps struct {
	Bots            core.IBotStore
	Configs         core.IConfigStore
	Events          core.IEventStore
	Metrics         core.IMetricStore
	Platform        core.IPlatformConfigStore
	Orchestrator    *provisioning.Orchestrator
	Crypto          *config.Crypto
	Logger          core.ILogger
	Health          core.IHealthMonitor
	Auth            AuthConfig
	UserRatePerMin  int
	BotRatePerMin   int
	MaxBotsPerUser  int
}

// NewRouter assembles the full chi router: structured-logging/recovery
// middleware (matching the teacher's infrastructure server setup), then the
// user-facing and bot-facing route groups, each behind its own independent
// rate-limit bucket per spec §4.3/§5.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(loggingMiddleware(d.Logger))

	h := &handlers{d: d}

	r.Get("/healthz", h.healthz)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(user chi.Router) {
			user.Use(RequireUser(d.Auth))
			user.Use(userRateLimiter(d.UserRatePerMin))

			user.Get("/me", h.me)
			user.Get("/bots", h.listBots)
			user.Post("/bots", h.createBot)
			user.Get("/bots/{id}", h.getBot)
			user.Patch("/bots/{id}/config", h.patchBotConfig)
			user.Post("/bots/{id}/actions", h.botAction)
			user.Get("/bots/{id}/metrics", h.botMetrics)
			user.Get("/bots/{id}/events", h.botEvents)
			user.Post("/simulate-signal", h.simulateSignal)
		})

		v1.Group(func(bot chi.Router) {
			bot.Use(botRateLimiter(d.BotRatePerMin))

			bot.Post("/bot/{id}/register", h.botRegister)
			bot.Get("/bot/{id}/config", h.botGetConfig)
			bot.Post("/bot/{id}/config_ack", h.botConfigAck)
			bot.Post("/bot/{id}/wallet", h.botWallet)
			bot.Post("/bot/{id}/heartbeat", h.botHeartbeat)
			bot.Post("/bot/{id}/events", h.botEvents2)
		})
	})

	return r
}

func loggingMiddleware(logger core.ILogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request handled", "method", r.Method, "path", r.URL.Path, "status", ww.Status())
		})
	}
}
