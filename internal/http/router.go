package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Auth           Authenticator
	Catalog        catalog.Catalog
	Carts          CartService
	Orders         OrderService
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	RequestTimeout time.Duration
	// Ping reports storage health for /health; nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth, cfg.RequestTimeout, cfg.Log)
	productHandler := NewProductHandler(cfg.Catalog, cfg.RequestTimeout, cfg.Log)
	cartHandler := NewCartHandler(cfg.Carts, cfg.RequestTimeout, cfg.Log)
	ordersHandler := NewOrdersHandler(cfg.Orders, cfg.RequestTimeout, cfg.Log)
	authenticate := Authenticate(cfg.Auth, cfg.Log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(cfg.Log))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(Instrument(cfg.Metrics))
	}
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ping(ctx); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/token", authHandler.Token)
			r.With(authenticate).Get("/me", authHandler.Me)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{product_id}", productHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(authenticate, RequireAdmin)
				r.Post("/", productHandler.Create)
				r.Delete("/{product_id}", productHandler.Delete)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordersHandler.CreateOrder)
				r.Get("/", ordersHandler.ListOrders)
				r.Get("/{order_id}", ordersHandler.GetOrder)
				r.Get("/{order_id}/items", ordersHandler.GetOrderItems)
				r.Get("/{order_id}/history", ordersHandler.GetOrderHistory)
				r.Post("/{order_id}/cancel", ordersHandler.CancelOrder)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/orders", ordersHandler.ListByStatus)
				r.Put("/orders/{order_id}/status", ordersHandler.UpdateStatus)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
