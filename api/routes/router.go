package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ananthuhari/servicehub-backend/api/controllers"
	"github.com/ananthuhari/servicehub-backend/api/middleware"
	"github.com/ananthuhari/servicehub-backend/internal/bookings"
	"github.com/ananthuhari/servicehub-backend/internal/cart"
	checkoutsvc "github.com/ananthuhari/servicehub-backend/internal/checkout"
	"github.com/ananthuhari/servicehub-backend/internal/ledger"
	"github.com/ananthuhari/servicehub-backend/internal/notifications"
	"github.com/ananthuhari/servicehub-backend/internal/providers"
	"github.com/ananthuhari/servicehub-backend/internal/requests"
	"github.com/ananthuhari/servicehub-backend/pkg/config"
	"github.com/ananthuhari/servicehub-backend/pkg/db"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
	"github.com/ananthuhari/servicehub-backend/pkg/metrics"
	pkgredis "github.com/ananthuhari/servicehub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	registry *prometheus.Registry,
	httpMetrics *metrics.HTTPMetrics,
	providerService providers.Service,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	requestService requests.Service,
	bookingService bookings.Service,
	notificationService notifications.Service,
	ledgerService ledger.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(),
	)

	var cachePinger db.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cachePinger))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.ProviderContext(providerService, logg))
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, logg))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Post("/items", controllers.CartAddService(cartService, logg))
			r.Delete("/items/{serviceId}", controllers.CartRemoveService(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
		})

		r.Post("/checkout/session", controllers.CheckoutSessionCreate(checkoutService, logg))
		r.Post("/checkout/settle", controllers.CheckoutSettle(checkoutService, logg))

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", controllers.RequestCreate(requestService, logg))
			r.Get("/", controllers.RequestList(requestService, logg))
			r.Get("/{requestId}", controllers.RequestDetail(requestService, logg))
			r.Post("/{requestId}/complete", controllers.RequestComplete(requestService, logg))
			r.Post("/{requestId}/cancel", controllers.RequestCancel(requestService, logg))
			r.Post("/{requestId}/rate", controllers.RequestRate(requestService, logg))
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", controllers.BookingList(bookingService, logg))
			r.Get("/{bookingId}", controllers.BookingDetail(bookingService, logg))
			r.Post("/{bookingId}/cancel", controllers.BookingCancel(bookingService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationList(notificationService, logg))
			r.Post("/{notificationId}/read", controllers.NotificationMarkRead(notificationService, logg))
			r.Post("/read-all", controllers.NotificationMarkAllRead(notificationService, logg))
		})

		r.Route("/provider", func(r chi.Router) {
			r.Use(middleware.RequireRole("provider", logg))
			r.Route("/requests", func(r chi.Router) {
				r.Get("/", controllers.ProviderRequestList(requestService, logg))
				r.Get("/{requestId}", controllers.RequestDetail(requestService, logg))
				r.Post("/{requestId}/accept", controllers.ProviderRequestAccept(requestService, logg))
				r.Post("/{requestId}/decline", controllers.ProviderRequestDecline(requestService, logg))
				r.Post("/{requestId}/start", controllers.ProviderRequestStart(requestService, logg))
				r.Post("/{requestId}/complete", controllers.RequestComplete(requestService, logg))
				r.Post("/{requestId}/cancel", controllers.RequestCancel(requestService, logg))
			})
			r.Get("/earnings", controllers.ProviderEarnings(ledgerService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", logg))
			r.Post("/requests/{requestId}/cancel", controllers.RequestCancel(requestService, logg))
		})
	})

	return r
}
