package runs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/internal/repo"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
)

// Repository defines persistence for run instances and their stop actuals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRun(ctx context.Context, runID int64) (*models.RunInstance, error)
	CreateRun(ctx context.Context, run *models.RunInstance) error
	UpdateRunIfStatus(ctx context.Context, runID int64, from []enums.RunStatus, updates map[string]any) (bool, error)
	FindRoute(ctx context.Context, routeID int64) (*models.Route, error)
	FindRouteStop(ctx context.Context, stopID int64) (*models.RouteStop, error)
	FindStopActual(ctx context.Context, runID, stopID int64) (*models.RunStopActual, error)
	ListStopActuals(ctx context.Context, runID int64) ([]models.RunStopActual, error)
	CreateStopActualIfAbsent(ctx context.Context, actual *models.RunStopActual) (bool, error)
	MarkStopDeparted(ctx context.Context, actualID int64, at time.Time) (bool, error)
	IncrementTasksCompleted(ctx context.Context, actualID int64) (bool, error)
	CountStopTasks(ctx context.Context, runID, stopID int64) (int64, error)
	MoveRequests(ctx context.Context, fromRunID, toRunID int64) ([]int64, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a runs repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.WithTx(tx)}
}

func (r *repository) FindRun(ctx context.Context, runID int64) (*models.RunInstance, error) {
	return repo.FindByID[models.RunInstance](ctx, r.base, runID)
}

func (r *repository) CreateRun(ctx context.Context, run *models.RunInstance) error {
	return r.base.DB(ctx).Create(run).Error
}

// UpdateRunIfStatus applies updates only while the run is in one of the from
// statuses and reports whether a row changed.
func (r *repository) UpdateRunIfStatus(ctx context.Context, runID int64, from []enums.RunStatus, updates map[string]any) (bool, error) {
	return r.base.Guarded(ctx, &models.RunInstance{}, updates, "id = ? AND status IN ?", runID, from)
}

func (r *repository) FindRoute(ctx context.Context, routeID int64) (*models.Route, error) {
	return repo.FindByID[models.Route](ctx, r.base, routeID)
}

func (r *repository) FindRouteStop(ctx context.Context, stopID int64) (*models.RouteStop, error) {
	return repo.FindByID[models.RouteStop](ctx, r.base, stopID)
}

func (r *repository) FindStopActual(ctx context.Context, runID, stopID int64) (*models.RunStopActual, error) {
	var actual models.RunStopActual
	err := r.base.DB(ctx).
		Where("run_instance_id = ? AND route_stop_id = ?", runID, stopID).
		First(&actual).Error
	if err != nil {
		return nil, err
	}
	return &actual, nil
}

func (r *repository) ListStopActuals(ctx context.Context, runID int64) ([]models.RunStopActual, error) {
	var rows []models.RunStopActual
	err := r.base.DB(ctx).
		Where("run_instance_id = ?", runID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// CreateStopActualIfAbsent inserts the actual unless one already exists for
// the (run, stop) pair; a revisit leaves the first row untouched.
func (r *repository) CreateStopActualIfAbsent(ctx context.Context, actual *models.RunStopActual) (bool, error) {
	return r.base.InsertIfAbsent(ctx, actual, "run_instance_id", "route_stop_id")
}

func (r *repository) MarkStopDeparted(ctx context.Context, actualID int64, at time.Time) (bool, error) {
	return r.base.Guarded(ctx, &models.RunStopActual{},
		map[string]any{"departed_at": at},
		"id = ? AND departed_at IS NULL", actualID)
}

func (r *repository) IncrementTasksCompleted(ctx context.Context, actualID int64) (bool, error) {
	return r.base.Guarded(ctx, &models.RunStopActual{},
		map[string]any{"tasks_completed": gorm.Expr("tasks_completed + 1")},
		"id = ? AND tasks_completed < tasks_total AND departed_at IS NULL", actualID)
}

// CountStopTasks counts pickups and dropoffs scheduled at the stop on the run.
func (r *repository) CountStopTasks(ctx context.Context, runID, stopID int64) (int64, error) {
	var pickups, dropoffs int64
	err := r.base.DB(ctx).Model(&models.PartsRequest{}).
		Where("run_instance_id = ? AND pickup_stop_id = ?", runID, stopID).
		Count(&pickups).Error
	if err != nil {
		return 0, err
	}
	err = r.base.DB(ctx).Model(&models.PartsRequest{}).
		Where("run_instance_id = ? AND dropoff_stop_id = ?", runID, stopID).
		Count(&dropoffs).Error
	if err != nil {
		return 0, err
	}
	return pickups + dropoffs, nil
}

// MoveRequests rebinds every request on fromRunID to toRunID and returns the
// moved ids.
func (r *repository) MoveRequests(ctx context.Context, fromRunID, toRunID int64) ([]int64, error) {
	var ids []int64
	err := r.base.DB(ctx).
		Model(&models.PartsRequest{}).
		Where("run_instance_id = ?", fromRunID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	_, err = r.base.Guarded(ctx, &models.PartsRequest{},
		map[string]any{"run_instance_id": toRunID},
		"id IN ? AND run_instance_id = ?", ids, fromRunID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
