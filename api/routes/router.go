package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/earnings-ledger/api/controllers"
	commissioncontrollers "github.com/angelmondragon/earnings-ledger/api/controllers/commissions"
	invoicecontrollers "github.com/angelmondragon/earnings-ledger/api/controllers/invoices"
	payoutcontrollers "github.com/angelmondragon/earnings-ledger/api/controllers/payouts"
	reportcontrollers "github.com/angelmondragon/earnings-ledger/api/controllers/reports"
	resellercontrollers "github.com/angelmondragon/earnings-ledger/api/controllers/resellers"
	transactioncontrollers "github.com/angelmondragon/earnings-ledger/api/controllers/transactions"
	"github.com/angelmondragon/earnings-ledger/api/middleware"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/pkg/config"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	pkgredis "github.com/angelmondragon/earnings-ledger/pkg/redis"
)

// Services are the ledger services behind the admin API. Reports is optional.
type Services struct {
	Resellers    resellercontrollers.Service
	Commissions  commissioncontrollers.Service
	Invoices     invoicecontrollers.Service
	Payouts      payoutcontrollers.Service
	Transactions transactioncontrollers.Service
	Reports      reportcontrollers.Service
}

// RedisStore backs request idempotency and export rate limits.
// *pkgredis.Client satisfies it.
type RedisStore interface {
	controllers.Pinger
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
}

// Dependencies are the infrastructure handles the router checks or uses for
// middleware. Redis and Archive may be nil.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    RedisStore
	Archive  controllers.Pinger
	Gatherer prometheus.Gatherer
	Clock    ledger.Clock
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          pkgredis.RateLimiter
	)
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
		idempotencyStore = deps.Redis
		limiter = deps.Redis
	}
	if deps.Archive != nil {
		readiness["gcs"] = deps.Archive
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	exportLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("export", cfg.HTTP.ExportRateWindow, cfg.HTTP.ExportRateLimit),
		limiter,
		logg,
	)
	rowLimit := cfg.Ledger.ExportRowLimit

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.HTTP.IdempotencyTTL, logg))

		r.Route("/resellers", func(r chi.Router) {
			r.Post("/", resellercontrollers.Create(svc.Resellers, logg))
			r.Get("/{id}", resellercontrollers.Get(svc.Resellers, logg))
			r.Put("/{id}/rate", resellercontrollers.SetRate(svc.Resellers, logg))
			r.Get("/{id}/tier", resellercontrollers.Tier(svc.Resellers, logg))
			r.Post("/{id}/tier", resellercontrollers.Tier(svc.Resellers, logg))
		})

		r.Route("/commissions", func(r chi.Router) {
			r.Get("/", commissioncontrollers.List(svc.Commissions, logg))
			r.Post("/", commissioncontrollers.Create(svc.Commissions, logg))
			r.Get("/summary", commissioncontrollers.Summary(svc.Commissions, logg))
			r.With(exportLimit).Get("/export", commissioncontrollers.Export(svc.Commissions, rowLimit, deps.Clock, logg))
			r.Post("/bulk", commissioncontrollers.Bulk(svc.Commissions, logg))
			r.Get("/{id}", commissioncontrollers.Get(svc.Commissions, logg))
			r.Post("/{id}/approve", commissioncontrollers.Approve(svc.Commissions, logg))
			r.Post("/{id}/reject", commissioncontrollers.Reject(svc.Commissions, logg))
			r.Post("/{id}/pay", commissioncontrollers.Pay(svc.Commissions, logg))
			r.Post("/{id}/recalculate", commissioncontrollers.Recalculate(svc.Commissions, logg))
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", invoicecontrollers.List(svc.Invoices, logg))
			r.Post("/", invoicecontrollers.Generate(svc.Invoices, logg))
			r.Get("/summary", invoicecontrollers.Summary(svc.Invoices, logg))
			r.With(exportLimit).Get("/export", invoicecontrollers.Export(svc.Invoices, rowLimit, deps.Clock, logg))
			r.Get("/{id}", invoicecontrollers.Get(svc.Invoices, logg))
			r.Post("/{id}/send", invoicecontrollers.Send(svc.Invoices, logg))
			r.Post("/{id}/mark-paid", invoicecontrollers.MarkPaid(svc.Invoices, logg))
			r.Post("/{id}/cancel", invoicecontrollers.Cancel(svc.Invoices, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", payoutcontrollers.List(svc.Payouts, logg))
			r.Post("/", payoutcontrollers.Request(svc.Payouts, logg))
			r.Get("/summary", payoutcontrollers.Summary(svc.Payouts, logg))
			r.With(exportLimit).Get("/export", payoutcontrollers.Export(svc.Payouts, rowLimit, deps.Clock, logg))
			r.Post("/batch", payoutcontrollers.Batch(svc.Payouts, logg))
			r.Post("/bulk", payoutcontrollers.Bulk(svc.Payouts, logg))
			r.Get("/{id}", payoutcontrollers.Get(svc.Payouts, logg))
			r.Post("/{id}/process", payoutcontrollers.Process(svc.Payouts, logg))
			r.Post("/{id}/complete", payoutcontrollers.Complete(svc.Payouts, logg))
			r.Post("/{id}/fail", payoutcontrollers.Fail(svc.Payouts, logg))
			r.Post("/{id}/cancel", payoutcontrollers.Cancel(svc.Payouts, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactioncontrollers.List(svc.Transactions, logg))
			r.Get("/summary", transactioncontrollers.Summary(svc.Transactions, logg))
			r.Get("/volume", transactioncontrollers.Volume(svc.Transactions, deps.Clock, logg))
			r.Get("/methods", transactioncontrollers.Methods(svc.Transactions, deps.Clock, logg))
			r.With(exportLimit).Get("/export", transactioncontrollers.Export(svc.Transactions, deps.Clock, logg))
		})

		if svc.Reports != nil {
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", reportcontrollers.List(svc.Reports, logg))
				r.Post("/", reportcontrollers.Create(svc.Reports, logg))
				r.Post("/run", reportcontrollers.RunDue(svc.Reports, logg))
				r.With(exportLimit).Get("/download/{type}", reportcontrollers.Download(svc.Reports, deps.Clock, logg))
				r.Post("/{id}/pause", reportcontrollers.Pause(svc.Reports, logg))
				r.Post("/{id}/resume", reportcontrollers.Resume(svc.Reports, logg))
			})
		}
	})

	return r
}
