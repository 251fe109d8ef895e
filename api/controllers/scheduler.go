package controllers

import (
	"net/http"

	"github.com/angelmondragon/partsrunner-backend/api/responses"
	"github.com/angelmondragon/partsrunner-backend/api/validators"
	"github.com/angelmondragon/partsrunner-backend/internal/scheduler"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

type dateRequest struct {
	Date *types.Date `json:"date" validate:"required"`
}

type assignRequestRequest struct {
	RunID         int64  `json:"run_id" validate:"required,min=1"`
	PickupStopID  *int64 `json:"pickup_stop_id,omitempty" validate:"omitempty,min=1"`
	DropoffStopID int64  `json:"dropoff_stop_id" validate:"required,min=1"`
}

// MaterializeRuns creates the day's runs from active fixed schedules.
func MaterializeRuns(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduler service unavailable"))
			return
		}
		var payload dateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.CreateRunsForDate(r.Context(), *payload.Date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"date": payload.Date, "created": created})
	}
}

// ProcessRequests binds the day's unassigned requests and reports the rest.
func ProcessRequests(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduler service unavailable"))
			return
		}
		var payload dateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.ProcessScheduledRequests(r.Context(), *payload.Date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func AssignRequest(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduler service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload assignRequestRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.AssignRequestToRun(r.Context(), scheduler.AssignInput{
			RequestID:     requestID,
			RunID:         payload.RunID,
			PickupStopID:  payload.PickupStopID,
			DropoffStopID: payload.DropoffStopID,
			Actor:         actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func UnassignRequest(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduler service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.UnassignRequest(r.Context(), requestID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

// ReassignRequestToNextRun moves a request to the next available run of the
// same route on its date.
func ReassignRequestToNextRun(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduler service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.ReassignToNextRun(r.Context(), requestID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}
