package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsrunner-backend/api/responses"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

// RequestID echoes a caller-supplied X-Request-Id or mints one, and binds it to
// the request logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(responses.RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(responses.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
