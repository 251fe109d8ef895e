package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/metrics"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the run lifecycle. Every mutating call returns the run as
// persisted after the change, or a typed rejection carrying the reason.
type Service interface {
	Get(ctx context.Context, runID int64) (*models.RunInstance, error)
	StopActuals(ctx context.Context, runID int64) ([]models.RunStopActual, error)
	Start(ctx context.Context, runID int64, actor Actor) (*models.RunInstance, error)
	Complete(ctx context.Context, runID int64, actor Actor) (*models.RunInstance, error)
	Cancel(ctx context.Context, runID int64, actor Actor) (*models.RunInstance, error)
	Arrive(ctx context.Context, runID, stopID int64, actor Actor) (*models.RunInstance, error)
	Depart(ctx context.Context, input DepartInput) (*models.RunInstance, error)
	RecordTaskCompleted(ctx context.Context, runID, stopID int64, actor Actor) (*models.RunStopActual, error)
	AssignRunner(ctx context.Context, input AssignRunnerInput) (*models.RunInstance, error)
	CreateOnDemand(ctx context.Context, input CreateOnDemandInput) (*models.RunInstance, error)
	Merge(ctx context.Context, targetRunID, sourceRunID int64, actor Actor) (*models.RunInstance, error)
	HasPassedStop(ctx context.Context, runID, stopID int64) (bool, error)
}

type DepartInput struct {
	RunID  int64
	StopID int64
	Actor  Actor
	// Force departs even when stop tasks remain open.
	Force bool
}

type AssignRunnerInput struct {
	RunID             int64
	RunnerID          *int64
	VehicleLocationID *int64
	Actor             Actor
}

type CreateOnDemandInput struct {
	RouteID           int64
	Date              types.Date
	Time              types.TimeOfDay
	RunnerID          *int64
	VehicleLocationID *int64
	Actor             Actor
}

type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository Repository
	Outbox     outboxEmitter
	Metrics    *metrics.DispatchMetrics
}

type service struct {
	logg    *logger.Logger
	db      txRunner
	repo    Repository
	outbox  outboxEmitter
	metrics *metrics.DispatchMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("runs repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		logg:    params.Logger,
		db:      params.DB,
		repo:    params.Repository,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, runID int64) (*models.RunInstance, error) {
	return loadRun(ctx, s.repo, runID)
}

func (s *service) StopActuals(ctx context.Context, runID int64) ([]models.RunStopActual, error) {
	if _, err := loadRun(ctx, s.repo, runID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListStopActuals(ctx, runID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stop actuals")
	}
	return rows, nil
}

func (s *service) Start(ctx context.Context, runID int64, actor Actor) (*models.RunInstance, error) {
	return s.changeStatus(ctx, ActionStart, runID, actor, func(now time.Time) map[string]any {
		return map[string]any{"status": enums.RunStatusInProgress, "actual_start_at": now}
	})
}

func (s *service) Complete(ctx context.Context, runID int64, actor Actor) (*models.RunInstance, error) {
	return s.changeStatus(ctx, ActionComplete, runID, actor, func(now time.Time) map[string]any {
		return map[string]any{"status": enums.RunStatusCompleted, "actual_end_at": now}
	})
}

func (s *service) Cancel(ctx context.Context, runID int64, actor Actor) (*models.RunInstance, error) {
	return s.changeStatus(ctx, ActionCancel, runID, actor, func(now time.Time) map[string]any {
		return map[string]any{"status": enums.RunStatusCanceled}
	})
}

// changeStatus runs a status-changing action: check, guarded update keyed by
// the statuses the action may leave, event, reload.
func (s *service) changeStatus(ctx context.Context, action Action, runID int64, actor Actor, updates func(now time.Time) map[string]any) (*models.RunInstance, error) {
	var out *models.RunInstance
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, err := loadRun(ctx, repo, runID)
		if err != nil {
			return err
		}
		if err := checkTransition(action, actor, run.Status, run.RunnerID); err != nil {
			return err
		}
		now := s.now().UTC()
		changed, err := repo.UpdateRunIfStatus(ctx, run.ID, allowedFrom(action, actor), updates(now))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update run status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed concurrently")
		}
		if err := s.emitStateChanged(ctx, tx, actor, run, action, transitions[action].to, nil, false, now); err != nil {
			return err
		}
		out, err = loadRun(ctx, repo, run.ID)
		return err
	})
	s.recordTransition(ctx, action, runID, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Arrive records the first arrival at a stop and moves current_stop_id there.
// Arriving again at a stop already visited keeps the existing actual.
func (s *service) Arrive(ctx context.Context, runID, stopID int64, actor Actor) (*models.RunInstance, error) {
	var out *models.RunInstance
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, stop, err := s.loadForStopAction(ctx, repo, ActionArrive, runID, stopID, actor)
		if err != nil {
			return err
		}

		tasks, err := repo.CountStopTasks(ctx, run.ID, stop.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count stop tasks")
		}
		now := s.now().UTC()
		created, err := repo.CreateStopActualIfAbsent(ctx, &models.RunStopActual{
			RunInstanceID: run.ID,
			RouteStopID:   stop.ID,
			ArrivedAt:     &now,
			TasksTotal:    int(tasks),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stop arrival")
		}

		changed, err := repo.UpdateRunIfStatus(ctx, run.ID, transitions[ActionArrive].from, map[string]any{"current_stop_id": stop.ID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update current stop")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed concurrently")
		}
		if created {
			if err := s.emitStateChanged(ctx, tx, actor, run, ActionArrive, "", &stop.ID, false, now); err != nil {
				return err
			}
		}
		out, err = loadRun(ctx, repo, run.ID)
		return err
	})
	s.recordTransition(ctx, ActionArrive, runID, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Depart closes the stop's actual. Open tasks block departure unless forced.
func (s *service) Depart(ctx context.Context, input DepartInput) (*models.RunInstance, error) {
	var out *models.RunInstance
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, stop, err := s.loadForStopAction(ctx, repo, ActionDepart, input.RunID, input.StopID, input.Actor)
		if err != nil {
			return err
		}
		actual, err := loadActual(ctx, repo, run.ID, stop.ID)
		if err != nil {
			return err
		}
		if actual.DepartedAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "stop already departed")
		}
		incomplete := actual.HasIncompleteTasks()
		if incomplete && !input.Force {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "stop has incomplete tasks").
				WithDetails(map[string]any{
					"tasks_total":     actual.TasksTotal,
					"tasks_completed": actual.TasksCompleted,
				})
		}

		now := s.now().UTC()
		marked, err := repo.MarkStopDeparted(ctx, actual.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stop departure")
		}
		if !marked {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "stop already departed")
		}
		if err := s.emitStateChanged(ctx, tx, input.Actor, run, ActionDepart, "", &stop.ID, incomplete, now); err != nil {
			return err
		}
		out = run
		return nil
	})
	s.recordTransition(ctx, ActionDepart, input.RunID, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) RecordTaskCompleted(ctx context.Context, runID, stopID int64, actor Actor) (*models.RunStopActual, error) {
	var out *models.RunStopActual
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, stop, err := s.loadForStopAction(ctx, repo, ActionTask, runID, stopID, actor)
		if err != nil {
			return err
		}
		actual, err := loadActual(ctx, repo, run.ID, stop.ID)
		if err != nil {
			return err
		}
		if actual.DepartedAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "stop already departed")
		}
		ok, err := repo.IncrementTasksCompleted(ctx, actual.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record task completion")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "all stop tasks already completed")
		}
		out, err = loadActual(ctx, repo, run.ID, stop.ID)
		return err
	})
	s.recordTransition(ctx, ActionTask, runID, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) AssignRunner(ctx context.Context, input AssignRunnerInput) (*models.RunInstance, error) {
	if input.RunnerID == nil && input.VehicleLocationID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "runner or vehicle required")
	}
	var out *models.RunInstance
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, err := loadRun(ctx, repo, input.RunID)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionAssign, input.Actor, run.Status, run.RunnerID); err != nil {
			return err
		}
		updates := map[string]any{}
		if input.RunnerID != nil {
			updates["runner_id"] = *input.RunnerID
		}
		if input.VehicleLocationID != nil {
			updates["assigned_vehicle_location_id"] = *input.VehicleLocationID
		}
		changed, err := repo.UpdateRunIfStatus(ctx, run.ID, transitions[ActionAssign].from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign runner")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed concurrently")
		}
		out, err = loadRun(ctx, repo, run.ID)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRunAssigned,
			AggregateType: enums.AggregateRunInstance,
			AggregateID:   out.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.RunAssignedEvent{
				RunID:                     out.ID,
				RunnerID:                  out.RunnerID,
				AssignedVehicleLocationID: out.AssignedVehicleLocationID,
			},
		})
	})
	s.recordTransition(ctx, ActionAssign, input.RunID, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOnDemand adds a run with no schedule behind it.
func (s *service) CreateOnDemand(ctx context.Context, input CreateOnDemandInput) (*models.RunInstance, error) {
	if !input.Actor.isDispatcher() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dispatcher role required")
	}
	if input.RouteID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	if input.Date.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled date required")
	}
	var out *models.RunInstance
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		route, err := repo.FindRoute(ctx, input.RouteID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route")
		}
		if !route.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "route inactive")
		}
		run := &models.RunInstance{
			RouteID:                   route.ID,
			ScheduledDate:             input.Date,
			ScheduledTime:             input.Time,
			RunnerID:                  input.RunnerID,
			AssignedVehicleLocationID: input.VehicleLocationID,
			Status:                    enums.RunStatusPending,
			IsOnDemand:                true,
		}
		if err := repo.CreateRun(ctx, run); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create on-demand run")
		}
		out = run
		return s.outbox.Emit(ctx, tx, RunCreatedEvent(run, actorRef(input.Actor)))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddRunsCreated(1)
	s.logg.Info(s.logg.WithRunID(ctx, out.ID), "on-demand run created")
	return out, nil
}

// Merge moves every request from source onto target and cancels source. Both
// runs must share route and date so bound stop ids stay valid.
func (s *service) Merge(ctx context.Context, targetRunID, sourceRunID int64, actor Actor) (*models.RunInstance, error) {
	if targetRunID == sourceRunID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot merge run into itself")
	}
	var out *models.RunInstance
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		target, err := loadRun(ctx, repo, targetRunID)
		if err != nil {
			return err
		}
		source, err := loadRun(ctx, repo, sourceRunID)
		if err != nil {
			return err
		}
		if err := authorize(ActionMerge, actor, nil); err != nil {
			return err
		}
		if target.RouteID != source.RouteID {
			return pkgerrors.New(pkgerrors.CodeValidation, "runs are on different routes")
		}
		if target.ScheduledDate != source.ScheduledDate {
			return pkgerrors.New(pkgerrors.CodeValidation, "runs are on different dates")
		}
		if target.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "target run already %s", target.Status)
		}
		if source.Status != enums.RunStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "source run not pending")
		}

		moved, err := repo.MoveRequests(ctx, source.ID, target.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move requests")
		}
		now := s.now().UTC()
		changed, err := repo.UpdateRunIfStatus(ctx, source.ID, []enums.RunStatus{enums.RunStatusPending}, map[string]any{"status": enums.RunStatusCanceled})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel merged run")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed concurrently")
		}
		if err := s.emitStateChanged(ctx, tx, actor, source, ActionCancel, enums.RunStatusCanceled, nil, false, now); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRunsMerged,
			AggregateType: enums.AggregateRunInstance,
			AggregateID:   target.ID,
			Actor:         actorRef(actor),
			Data: payloads.RunsMergedEvent{
				TargetRunID:    target.ID,
				SourceRunID:    source.ID,
				MovedRequestID: moved,
			},
		}); err != nil {
			return err
		}
		out = target
		return nil
	})
	s.recordTransition(ctx, ActionMerge, targetRunID, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) HasPassedStop(ctx context.Context, runID, stopID int64) (bool, error) {
	run, err := loadRun(ctx, s.repo, runID)
	if err != nil {
		return false, err
	}
	return HasPassedStop(ctx, s.repo, run, stopID)
}

// HasPassedStop reports whether the run can no longer serve stopID. A
// pending run has passed nothing; a finished run has passed everything. In
// progress, the current stop's order decides, then the stop's departure.
func HasPassedStop(ctx context.Context, repo Repository, run *models.RunInstance, stopID int64) (bool, error) {
	switch {
	case run.Status == enums.RunStatusPending:
		return false, nil
	case run.Status.IsTerminal():
		return true, nil
	}
	target, err := repo.FindRouteStop(ctx, stopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "route stop not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route stop")
	}
	if run.CurrentStopID != nil && *run.CurrentStopID != stopID {
		current, err := repo.FindRouteStop(ctx, *run.CurrentStopID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current stop")
		}
		if current.StopOrder > target.StopOrder {
			return true, nil
		}
	}
	actual, err := repo.FindStopActual(ctx, run.ID, stopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stop actual")
	}
	return actual.DepartedAt != nil, nil
}

func (s *service) loadForStopAction(ctx context.Context, repo Repository, action Action, runID, stopID int64, actor Actor) (*models.RunInstance, *models.RouteStop, error) {
	run, err := loadRun(ctx, repo, runID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkTransition(action, actor, run.Status, run.RunnerID); err != nil {
		return nil, nil, err
	}
	stop, err := repo.FindRouteStop(ctx, stopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "stop not on run route")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route stop")
	}
	if stop.RouteID != run.RouteID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "stop not on run route")
	}
	return run, stop, nil
}

func (s *service) emitStateChanged(ctx context.Context, tx *gorm.DB, actor Actor, run *models.RunInstance, action Action, to enums.RunStatus, stopID *int64, forced bool, at time.Time) error {
	if to == "" {
		to = run.Status
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRunStateChanged,
		AggregateType: enums.AggregateRunInstance,
		AggregateID:   run.ID,
		Actor:         actorRef(actor),
		Data: payloads.RunStateChangedEvent{
			RunID:      run.ID,
			RouteID:    run.RouteID,
			Action:     string(action),
			FromStatus: run.Status,
			ToStatus:   to,
			StopID:     stopID,
			Forced:     forced,
			ChangedAt:  at,
		},
	})
}

func (s *service) recordTransition(ctx context.Context, action Action, runID int64, err error) {
	logCtx := s.logg.WithFields(s.logg.WithRunID(ctx, runID), map[string]any{
		"action": string(action),
		"event":  "run.transition",
	})
	switch {
	case err == nil:
		s.metrics.IncRunTransition(string(action), "ok")
		s.logg.Info(logCtx, "run transition applied")
	case pkgerrors.As(err) == nil, pkgerrors.IsCode(err, pkgerrors.CodeDependency), pkgerrors.IsCode(err, pkgerrors.CodeInternal):
		s.metrics.IncRunTransition(string(action), "error")
		s.logg.Error(logCtx, "run transition failed", err)
	default:
		s.metrics.IncRunTransition(string(action), "rejected")
		s.logg.Info(s.logg.WithField(logCtx, "reason", pkgerrors.Reason(err)), "run transition rejected")
	}
}

func loadRun(ctx context.Context, repo Repository, runID int64) (*models.RunInstance, error) {
	run, err := repo.FindRun(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "run not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load run")
	}
	return run, nil
}

func loadActual(ctx context.Context, repo Repository, runID, stopID int64) (*models.RunStopActual, error) {
	actual, err := repo.FindStopActual(ctx, runID, stopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "stop not arrived")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stop actual")
	}
	return actual, nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == 0 && actor.Role == "" {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
}

// RunCreatedEvent builds the run_created outbox event for run.
func RunCreatedEvent(run *models.RunInstance, actor *outbox.ActorRef) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventRunCreated,
		AggregateType: enums.AggregateRunInstance,
		AggregateID:   run.ID,
		Actor:         actor,
		Data: payloads.RunCreatedEvent{
			RunID:           run.ID,
			RouteID:         run.RouteID,
			RouteScheduleID: run.RouteScheduleID,
			ScheduledDate:   run.ScheduledDate,
			ScheduledTime:   run.ScheduledTime,
			IsOnDemand:      run.IsOnDemand,
		},
	}
}
