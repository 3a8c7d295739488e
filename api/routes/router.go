package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/virtuline/virtuline-backend/api/controllers"
	webhookcontrollers "github.com/virtuline/virtuline-backend/api/controllers/webhooks"
	"github.com/virtuline/virtuline-backend/api/middleware"
	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/wallet"
	esimwebhook "github.com/virtuline/virtuline-backend/internal/webhooks/esim"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/db"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/redis"
)

type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DBPinger    db.Pinger
	RedisPinger redis.Pinger
	Orders      orders.Service
	Wallet      wallet.Service
	EsimWebhook *esimwebhook.Service
	Metrics     prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DBPinger, params.RedisPinger))
	})

	gatherer := params.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Webhooks authenticate with their own shared secret, not the caller
	// identity header.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		esim := webhookcontrollers.EsimWebhook(params.EsimWebhook, cfg.Providers.EsimGo.WebhookSecret, logg)
		r.Get("/esim", esim)
		r.Head("/esim", esim)
		r.Post("/esim", esim)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.PurchaseOrder(params.Orders, logg))
			r.Get("/", controllers.ListOrders(params.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(params.Orders, logg))
			r.Post("/{orderId}/action", controllers.OrderAction(params.Orders, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", controllers.WalletBalance(params.Wallet, logg))
			r.Get("/ledger", controllers.WalletLedger(params.Wallet, logg))
		})
	})

	return r
}
