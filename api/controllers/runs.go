package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/partsrunner-backend/api/responses"
	"github.com/angelmondragon/partsrunner-backend/api/validators"
	"github.com/angelmondragon/partsrunner-backend/internal/runs"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

type runDetail struct {
	*models.RunInstance
	Stops []models.RunStopActual `json:"stops"`
}

type createRunRequest struct {
	RouteID           int64            `json:"route_id" validate:"required,min=1"`
	Date              *types.Date      `json:"date" validate:"required"`
	Time              *types.TimeOfDay `json:"time" validate:"required"`
	RunnerID          *int64           `json:"runner_id,omitempty" validate:"omitempty,min=1"`
	VehicleLocationID *int64           `json:"vehicle_location_id,omitempty" validate:"omitempty,min=1"`
}

type assignRunnerRequest struct {
	RunnerID          *int64 `json:"runner_id" validate:"omitempty,min=1"`
	VehicleLocationID *int64 `json:"vehicle_location_id,omitempty" validate:"omitempty,min=1"`
}

type departRequest struct {
	Force bool `json:"force"`
}

// runTransition is the shape shared by start, complete and cancel.
type runTransition func(ctx context.Context, runID int64, actor runs.Actor) (*models.RunInstance, error)

func RunDetail(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		runID, err := validators.ParsePathID(r, "runId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.Get(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stops, err := svc.StopActuals(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if stops == nil {
			stops = []models.RunStopActual{}
		}
		responses.WriteSuccess(w, runDetail{RunInstance: run, Stops: stops})
	}
}

// CreateOnDemandRun creates a run with no schedule behind it.
func CreateOnDemandRun(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createRunRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.CreateOnDemand(r.Context(), runs.CreateOnDemandInput{
			RouteID:           payload.RouteID,
			Date:              *payload.Date,
			Time:              *payload.Time,
			RunnerID:          payload.RunnerID,
			VehicleLocationID: payload.VehicleLocationID,
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, run)
	}
}

// AssignRunner sets or clears the runner and vehicle. A null runner_id
// unassigns.
func AssignRunner(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		runID, err := validators.ParsePathID(r, "runId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload assignRunnerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.AssignRunner(r.Context(), runs.AssignRunnerInput{
			RunID:             runID,
			RunnerID:          payload.RunnerID,
			VehicleLocationID: payload.VehicleLocationID,
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}

func StartRun(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return transitionRun(nil, logg)
	}
	return transitionRun(svc.Start, logg)
}

func CompleteRun(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return transitionRun(nil, logg)
	}
	return transitionRun(svc.Complete, logg)
}

func CancelRun(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return transitionRun(nil, logg)
	}
	return transitionRun(svc.Cancel, logg)
}

func transitionRun(apply runTransition, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apply == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		runID, err := validators.ParsePathID(r, "runId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := apply(r.Context(), runID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}

func ArriveAtStop(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		actor, runID, stopID, err := stopTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.Arrive(r.Context(), runID, stopID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}

// DepartFromStop accepts an optional {"force": true} body to depart with
// open stop tasks.
func DepartFromStop(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		actor, runID, stopID, err := stopTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload departRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.Depart(r.Context(), runs.DepartInput{
			RunID:  runID,
			StopID: stopID,
			Actor:  actor,
			Force:  payload.Force,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}

func CompleteStopTask(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		actor, runID, stopID, err := stopTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actual, err := svc.RecordTaskCompleted(r.Context(), runID, stopID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, actual)
	}
}

// MergeRuns folds the source run into the target and cancels the source.
func MergeRuns(svc runs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		targetID, err := validators.ParsePathID(r, "runId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sourceID, err := validators.ParsePathID(r, "sourceRunId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.Merge(r.Context(), targetID, sourceID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}

func stopTarget(r *http.Request) (runs.Actor, int64, int64, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return runs.Actor{}, 0, 0, err
	}
	runID, err := validators.ParsePathID(r, "runId")
	if err != nil {
		return runs.Actor{}, 0, 0, err
	}
	stopID, err := validators.ParsePathID(r, "stopId")
	if err != nil {
		return runs.Actor{}, 0, 0, err
	}
	return actor, runID, stopID, nil
}
