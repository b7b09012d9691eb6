package api

import (
	"net/http"

	"github.com/ayo6706/dual-currency-settlement/internal/api/handler"
	"github.com/ayo6706/dual-currency-settlement/internal/api/middleware"
	"github.com/ayo6706/dual-currency-settlement/internal/api/spec"
	"github.com/ayo6706/dual-currency-settlement/internal/config"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/idempotency"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"github.com/ayo6706/dual-currency-settlement/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface is built from. Settlements, DB,
// Redis and NATS are optional.
type Deps struct {
	Config      *config.Config
	Logger      *zap.Logger
	Network     *service.Network
	Bus         *events.Bus
	Hub         *stream.Hub
	Idempotency *idempotency.Store
	Settlements handler.SettlementStore
	DB          handler.Pinger
	Redis       redis.Cmdable
	NATS        handler.Connectivity
}

type Router struct {
	deps Deps
}

func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Router{deps: deps}
}

func (api *Router) Routes() chi.Router {
	d := api.deps
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(d.Logger))
	r.Use(middleware.RecoverMiddleware(d.Logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(d.DB, d.Redis, d.NATS)
	ledgerHandler := handler.NewLedgerHandler(d.Network)
	settlementHandler := handler.NewSettlementHandler(d.Network, d.Settlements)
	ratesHandler := handler.NewRatesHandler(d.Network)
	feedHandler := handler.NewFeedHandler(d.Network.Feeds)
	eventsHandler := handler.NewEventsHandler(d.Bus, d.Network)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public reads and the signed feed webhook.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(d.Config.PublicRateLimitRPS))

		r.Get("/v1/ledgers/{currency}", ledgerHandler.Get)
		r.Get("/v1/ledgers/{currency}/balances/{account}", ledgerHandler.Balance)
		r.Get("/v1/ledgers/{currency}/allowances/{owner}/{spender}", ledgerHandler.Allowance)

		r.Get("/v1/rate", ratesHandler.GetRate)
		r.Get("/v1/rates/providers", ratesHandler.ListProviders)
		r.Get("/v1/feeds/{id}", feedHandler.Latest)
		r.With(middleware.FeedRateLimiter(d.Config.PublicRateLimitRPS)).Post("/v1/feeds/{id}/rounds", feedHandler.PushRound)

		r.Get("/v1/settlement", settlementHandler.Engine)
		r.Get("/v1/settlements/quote", settlementHandler.Quote)
		r.Get("/v1/settlements/{id}", settlementHandler.Get)
		r.Get("/v1/accounts/{account}/settlements", settlementHandler.ListByAccount)

		r.Get("/v1/status", eventsHandler.Status)
		r.Get("/v1/events", eventsHandler.List)
		if d.Hub != nil {
			r.Method(http.MethodGet, "/v1/events/stream", stream.NewHandler(d.Hub, d.Bus, d.Config.WSAllowedOrigins))
		}
	})

	// Signed submissions: the token subject is the caller.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(d.Config.AuthRateLimitRPS))
		r.Use(middleware.IdempotencyMiddleware(d.Idempotency, d.Logger))

		r.Post("/v1/ledgers/{currency}/transfer", ledgerHandler.Transfer)
		r.Post("/v1/ledgers/{currency}/approve", ledgerHandler.Approve)
		r.Post("/v1/ledgers/{currency}/transfer-from", ledgerHandler.TransferFrom)
		r.Post("/v1/ledgers/{currency}/mint", ledgerHandler.Mint)
		r.Post("/v1/ledgers/{currency}/burn", ledgerHandler.Burn)
		r.Post("/v1/ledgers/{currency}/burn-from", ledgerHandler.BurnFrom)
		r.Post("/v1/ledgers/{currency}/pause", ledgerHandler.Pause)
		r.Post("/v1/ledgers/{currency}/unpause", ledgerHandler.Unpause)
		r.Post("/v1/ledgers/{currency}/roles/grant", ledgerHandler.GrantRole)
		r.Post("/v1/ledgers/{currency}/roles/revoke", ledgerHandler.RevokeRole)

		r.Post("/v1/settlements/forward", settlementHandler.SettleForward)
		r.Post("/v1/settlements/reverse", settlementHandler.SettleReverse)

		r.Post("/v1/settlement/fee", settlementHandler.UpdateFee)
		r.Post("/v1/settlement/rate-provider", settlementHandler.UpdateRateProvider)
		r.Post("/v1/settlement/pause", settlementHandler.Pause)
		r.Post("/v1/settlement/unpause", settlementHandler.Unpause)
		r.Post("/v1/settlement/roles/grant", settlementHandler.GrantRole)
		r.Post("/v1/settlement/roles/revoke", settlementHandler.RevokeRole)

		r.Post("/v1/rates/providers/{id}/rate", ratesHandler.UpdateRate)
		r.Post("/v1/rates/providers/{id}/feed", ratesHandler.UpdateFeed)
		r.Post("/v1/rates/providers/{id}/roles/grant", ratesHandler.GrantRole)
		r.Post("/v1/rates/providers/{id}/roles/revoke", ratesHandler.RevokeRole)
	})

	return r
}
