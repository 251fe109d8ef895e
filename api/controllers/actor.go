package controllers

import (
	"net/http"

	"github.com/angelmondragon/partsrunner-backend/api/middleware"
	"github.com/angelmondragon/partsrunner-backend/internal/runs"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
)

func actorFromRequest(r *http.Request) (runs.Actor, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == 0 {
		return runs.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return runs.Actor{UserID: userID, Role: middleware.RoleFromContext(r.Context())}, nil
}
