package router

import (
	"net/http"
	"time"

	"advert-service/internal/delivery/handler"
	"advert-service/internal/delivery/middleware"
	"advert-service/internal/infrastructure/metrics"
	"advert-service/internal/repository"
	"advert-service/internal/service"
	"advert-service/pkg/logger"
	"advert-service/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	CORSAllowedOrigins []string
	RateLimitRPS       int
	RateLimitBurst     int
	// RequestTimeout bounds each request's context; 0 disables it.
	RequestTimeout time.Duration
	// Gatherer backs /metrics; the endpoint is not mounted when nil.
	Gatherer prometheus.Gatherer
}

func NewRouter(adService service.AdvertService, store repository.Store, loggers *logger.Loggers, handlerMetrics *metrics.HandlerMetrics, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(loggers))
	r.Use(middleware.Recoverer(loggers))
	r.Use(middleware.CORS(opts.CORSAllowedOrigins))
	r.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	if opts.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(opts.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithErrorJSON(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	SetupAdvertRoutes(r, adService, store, loggers, handlerMetrics)

	if opts.Gatherer != nil {
		r.Handle("/metrics", metrics.HTTPHandler(opts.Gatherer))
	}

	return r
}

// SetupAdvertRoutes mounts the advert resource. {id} only matches digits;
// anything else falls through to the router's not-found handler.
func SetupAdvertRoutes(advertRouter chi.Router, adService service.AdvertService, store repository.Store, loggers *logger.Loggers, handlerMetrics *metrics.HandlerMetrics) {
	advertHandler := handler.NewAdvertHandler(adService, store, loggers, handlerMetrics)

	advertRouter.Get("/health", advertHandler.Health)

	advertRouter.Post("/adverts", advertHandler.WithSession(advertHandler.CreateAdvert))
	advertRouter.Get("/adverts/{id:[0-9]+}", advertHandler.WithSession(advertHandler.GetAdvert))
	advertRouter.Patch("/adverts/{id:[0-9]+}", advertHandler.WithSession(advertHandler.UpdateAdvert))
	advertRouter.Delete("/adverts/{id:[0-9]+}", advertHandler.WithSession(advertHandler.DeleteAdvert))
}
