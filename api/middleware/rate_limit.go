package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/partsrunner-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

// RateLimiter is satisfied by pkg/redis.Client.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy caps authenticated calls per user in a fixed window.
type RateLimitPolicy struct {
	Window  time.Duration
	PerUser int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.PerUser > 0
}

// RateLimit throttles callers by user id. It must run after Auth. A Redis
// outage fails open and is logged; dispatch must keep working without the
// limiter.
func RateLimit(policy RateLimitPolicy, limiter RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == 0 {
				next.ServeHTTP(w, r)
				return
			}
			scope := "user:" + strconv.FormatInt(userID, 10)
			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(policy.PerUser), policy.Window)
			if err != nil {
				logError(ctx, logg, "rate limit check failed", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"attempts":       count,
						"limit":          policy.PerUser,
						"window_seconds": int(policy.Window.Seconds()),
					}), "api.rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
