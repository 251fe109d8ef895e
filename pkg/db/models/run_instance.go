package models

import (
	"time"

	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

// RunInstance is one concrete execution of a route on a date. Rows are never
// deleted; cancellation is a terminal status.
type RunInstance struct {
	ID                        int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RouteID                   int64           `gorm:"column:route_id;not null;uniqueIndex:ux_run_instances_schedule_date,priority:1" json:"route_id"`
	RouteScheduleID           *int64          `gorm:"column:route_schedule_id;uniqueIndex:ux_run_instances_schedule_date,priority:2" json:"route_schedule_id,omitempty"`
	ScheduledDate             types.Date      `gorm:"column:scheduled_date;type:date;not null;uniqueIndex:ux_run_instances_schedule_date,priority:3" json:"scheduled_date"`
	ScheduledTime             types.TimeOfDay `gorm:"column:scheduled_time;type:time;not null" json:"scheduled_time"`
	RunnerID                  *int64          `gorm:"column:runner_id" json:"runner_id,omitempty"`
	AssignedVehicleLocationID *int64          `gorm:"column:assigned_vehicle_location_id" json:"assigned_vehicle_location_id,omitempty"`
	Status                    enums.RunStatus `gorm:"column:status;not null;default:pending" json:"status"`
	IsOnDemand                bool            `gorm:"column:is_on_demand;not null;default:false" json:"is_on_demand"`
	ActualStartAt             *time.Time      `gorm:"column:actual_start_at" json:"actual_start_at,omitempty"`
	ActualEndAt               *time.Time      `gorm:"column:actual_end_at" json:"actual_end_at,omitempty"`
	CurrentStopID             *int64          `gorm:"column:current_stop_id" json:"current_stop_id,omitempty"`
	CreatedAt                 time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RunInstance) TableName() string { return "run_instances" }

// IsAssignedRunner reports whether userID is the runner assigned to the run.
func (r RunInstance) IsAssignedRunner(userID int64) bool {
	return r.RunnerID != nil && *r.RunnerID == userID
}

// StartsAt returns the planned departure in loc.
func (r RunInstance) StartsAt(loc *time.Location) time.Time {
	return r.ScheduledTime.On(r.ScheduledDate, loc)
}
