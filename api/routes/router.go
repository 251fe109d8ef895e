package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/partsrunner-backend/api/controllers"
	"github.com/angelmondragon/partsrunner-backend/api/middleware"
	"github.com/angelmondragon/partsrunner-backend/internal/routegraph"
	"github.com/angelmondragon/partsrunner-backend/internal/runs"
	"github.com/angelmondragon/partsrunner-backend/internal/scheduler"
	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

// Cache is the Redis surface the router needs. pkg/redis.Client satisfies it.
type Cache interface {
	controllers.Pinger
	middleware.RateLimiter
	middleware.IdempotencyStore
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	cache Cache,
	metricsHandler http.Handler,
	graphService routegraph.Service,
	schedulerService scheduler.Service,
	runsService runs.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	var (
		redisPinger controllers.Pinger
		limiter     middleware.RateLimiter
		idemStore   middleware.IdempotencyStore
	)
	if cache != nil {
		redisPinger, limiter, idemStore = cache, cache, cache
	}
	idempotent := middleware.Idempotency(idemStore, cfg.API.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(middleware.RateLimitPolicy{
			Window:  cfg.API.RateLimitWindow,
			PerUser: cfg.API.RateLimitPerUser,
		}, limiter, logg))

		r.Route("/graph", func(r chi.Router) {
			r.Get("/", controllers.GraphSnapshot(graphService, logg))
			r.Get("/status", controllers.GraphStatus(graphService, logg))
			r.Get("/path", controllers.GraphPath(graphService, logg))
			r.With(middleware.RequireDispatcher(logg)).Post("/rebuild", controllers.GraphRebuild(graphService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireDispatcher(logg))
			r.With(idempotent).Post("/schedules/materialize", controllers.MaterializeRuns(schedulerService, logg))
			r.Route("/requests", func(r chi.Router) {
				r.With(idempotent).Post("/process", controllers.ProcessRequests(schedulerService, logg))
				r.Post("/{requestId}/assign", controllers.AssignRequest(schedulerService, logg))
				r.Post("/{requestId}/unassign", controllers.UnassignRequest(schedulerService, logg))
				r.With(idempotent).Post("/{requestId}/reassign-next", controllers.ReassignRequestToNextRun(schedulerService, logg))
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.With(middleware.RequireDispatcher(logg), idempotent).Post("/", controllers.CreateOnDemandRun(runsService, logg))

			r.Route("/{runId}", func(r chi.Router) {
				r.Get("/", controllers.RunDetail(runsService, logg))
				r.With(middleware.RequireDispatcher(logg)).Post("/assign", controllers.AssignRunner(runsService, logg))
				r.With(middleware.RequireDispatcher(logg), idempotent).Post("/merge/{sourceRunId}", controllers.MergeRuns(runsService, logg))

				// runner or dispatcher; the run service applies the actor rules
				r.Post("/start", controllers.StartRun(runsService, logg))
				r.Post("/complete", controllers.CompleteRun(runsService, logg))
				r.Post("/cancel", controllers.CancelRun(runsService, logg))
				r.Post("/stops/{stopId}/arrive", controllers.ArriveAtStop(runsService, logg))
				r.Post("/stops/{stopId}/depart", controllers.DepartFromStop(runsService, logg))
				r.With(idempotent).Post("/stops/{stopId}/tasks", controllers.CompleteStopTask(runsService, logg))
			})
		})
	})

	return r
}
