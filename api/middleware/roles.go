package middleware

import (
	"net/http"

	"github.com/angelmondragon/partsrunner-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

// RequireDispatcher admits dispatchers, admins and system callers.
func RequireDispatcher(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !RoleFromContext(r.Context()).CanDispatch() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "dispatcher role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
