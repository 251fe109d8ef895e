package scheduler

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/internal/repo"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

var openRunStatuses = []enums.RunStatus{enums.RunStatusPending, enums.RunStatusInProgress}

// Repository defines persistence for schedules, runs and request bindings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListActiveSchedules(ctx context.Context) ([]models.RouteSchedule, error)
	InsertRunIfAbsent(ctx context.Context, run *models.RunInstance) (bool, error)
	ListOpenRunsForDate(ctx context.Context, date types.Date) ([]models.RunInstance, error)
	ListRoutes(ctx context.Context, routeIDs []int64) ([]models.Route, error)
	ListUnboundRequests(ctx context.Context, date types.Date) ([]models.PartsRequest, error)
	FindRequest(ctx context.Context, requestID int64) (*models.PartsRequest, error)
	BindRequest(ctx context.Context, requestID, runID int64, pickupStopID *int64, dropoffStopID int64) (bool, error)
	OverrideBinding(ctx context.Context, requestID, runID int64, pickupStopID *int64, dropoffStopID int64) (bool, error)
	MoveRequest(ctx context.Context, requestID, fromRunID, toRunID int64) (bool, error)
	UnbindRequest(ctx context.Context, requestID, runID int64) (bool, error)
	MarkMultiLeg(ctx context.Context, requestID int64) (bool, error)
	CreateSegments(ctx context.Context, segments []models.PartsRequest) error
}

type repository struct {
	base repo.Base
}

// NewRepository builds a scheduler repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.WithTx(tx)}
}

// ListActiveSchedules returns active fixed schedules on active routes.
func (r *repository) ListActiveSchedules(ctx context.Context) ([]models.RouteSchedule, error) {
	var rows []models.RouteSchedule
	err := r.base.DB(ctx).
		Joins("JOIN routes ON routes.id = route_schedules.route_id").
		Where("route_schedules.is_active = ? AND routes.is_active = ?", true, true).
		Where("route_schedules.schedule_type = ?", enums.ScheduleTypeFixed).
		Order("route_schedules.route_id ASC").
		Order("route_schedules.id ASC").
		Find(&rows).Error
	return rows, err
}

// InsertRunIfAbsent relies on ux_run_instances_schedule_date; a concurrent or
// repeated insert for the same tuple is absorbed and reports false.
func (r *repository) InsertRunIfAbsent(ctx context.Context, run *models.RunInstance) (bool, error) {
	return r.base.InsertIfAbsent(ctx, run, "route_id", "route_schedule_id", "scheduled_date")
}

// ListOpenRunsForDate returns pending and in-progress runs ordered by
// departure.
func (r *repository) ListOpenRunsForDate(ctx context.Context, date types.Date) ([]models.RunInstance, error) {
	var rows []models.RunInstance
	err := r.base.DB(ctx).
		Where("scheduled_date = ? AND status IN ?", date, openRunStatuses).
		Order("scheduled_time ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListRoutes(ctx context.Context, routeIDs []int64) ([]models.Route, error) {
	if len(routeIDs) == 0 {
		return nil, nil
	}
	var rows []models.Route
	err := r.base.DB(ctx).
		Preload("Stops", func(db *gorm.DB) *gorm.DB {
			return db.Order("route_stops.stop_order ASC")
		}).
		Where("id IN ?", routeIDs).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListUnboundRequests returns requests for date with no run. Parents that
// were split are excluded; their segments carry the bindings.
func (r *repository) ListUnboundRequests(ctx context.Context, date types.Date) ([]models.PartsRequest, error) {
	var rows []models.PartsRequest
	err := r.base.DB(ctx).
		Where("scheduled_for_date = ?", date).
		Where("run_instance_id IS NULL AND is_multi_leg = ?", false).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindRequest(ctx context.Context, requestID int64) (*models.PartsRequest, error) {
	return repo.FindByID[models.PartsRequest](ctx, r.base, requestID)
}

// BindRequest sets the binding only while the request is still unbound, so
// each request is bound at most once however many schedulers race.
func (r *repository) BindRequest(ctx context.Context, requestID, runID int64, pickupStopID *int64, dropoffStopID int64) (bool, error) {
	return r.base.Guarded(ctx, &models.PartsRequest{}, bindingColumns(runID, pickupStopID, dropoffStopID),
		"id = ? AND run_instance_id IS NULL AND is_multi_leg = ?", requestID, false)
}

// OverrideBinding replaces whatever binding the request has.
func (r *repository) OverrideBinding(ctx context.Context, requestID, runID int64, pickupStopID *int64, dropoffStopID int64) (bool, error) {
	return r.base.Guarded(ctx, &models.PartsRequest{}, bindingColumns(runID, pickupStopID, dropoffStopID),
		"id = ? AND is_multi_leg = ?", requestID, false)
}

func (r *repository) MoveRequest(ctx context.Context, requestID, fromRunID, toRunID int64) (bool, error) {
	return r.base.Guarded(ctx, &models.PartsRequest{}, map[string]any{"run_instance_id": toRunID},
		"id = ? AND run_instance_id = ?", requestID, fromRunID)
}

func (r *repository) UnbindRequest(ctx context.Context, requestID, runID int64) (bool, error) {
	return r.base.Guarded(ctx, &models.PartsRequest{},
		map[string]any{
			"run_instance_id": nil,
			"pickup_stop_id":  nil,
			"dropoff_stop_id": nil,
		},
		"id = ? AND run_instance_id = ?", requestID, runID)
}

// MarkMultiLeg claims an unbound request for splitting.
func (r *repository) MarkMultiLeg(ctx context.Context, requestID int64) (bool, error) {
	return r.base.Guarded(ctx, &models.PartsRequest{}, map[string]any{"is_multi_leg": true},
		"id = ? AND run_instance_id IS NULL AND is_multi_leg = ?", requestID, false)
}

func (r *repository) CreateSegments(ctx context.Context, segments []models.PartsRequest) error {
	if len(segments) == 0 {
		return nil
	}
	return r.base.DB(ctx).Create(&segments).Error
}

func bindingColumns(runID int64, pickupStopID *int64, dropoffStopID int64) map[string]any {
	return map[string]any{
		"run_instance_id": runID,
		"pickup_stop_id":  pickupStopID,
		"dropoff_stop_id": dropoffStopID,
	}
}
