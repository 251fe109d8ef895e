package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/partsrunner-backend/api/responses"
	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

// Pinger is satisfied by db.Client and redis.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PartsRunner-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady fails when Postgres is unreachable. Redis only backs rebuild
// locking, rate limits and idempotency, so it is reported but not fatal.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP Pinger, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PartsRunner-Env", cfg.App.Env)

		checks := map[string]string{"database": "ok", "redis": "ok"}
		if dbP == nil {
			checks["database"] = "missing"
		} else if err := dbP.Ping(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
			return
		}
		if redisP == nil {
			checks["redis"] = "missing"
		} else if err := redisP.Ping(r.Context()); err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "health.redis_unavailable")
			}
			checks["redis"] = "degraded"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
