package models

import "time"

// RunStopActual records the real arrival/departure of a run at one route stop.
// Unique per (run_instance_id, route_stop_id).
type RunStopActual struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunInstanceID  int64      `gorm:"column:run_instance_id;not null;uniqueIndex:ux_run_stop_actuals_run_stop,priority:1" json:"run_instance_id"`
	RouteStopID    int64      `gorm:"column:route_stop_id;not null;uniqueIndex:ux_run_stop_actuals_run_stop,priority:2" json:"route_stop_id"`
	ArrivedAt      *time.Time `gorm:"column:arrived_at" json:"arrived_at,omitempty"`
	DepartedAt     *time.Time `gorm:"column:departed_at" json:"departed_at,omitempty"`
	TasksTotal     int        `gorm:"column:tasks_total;not null;default:0" json:"tasks_total"`
	TasksCompleted int        `gorm:"column:tasks_completed;not null;default:0" json:"tasks_completed"`
	Notes          *string    `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RunStopActual) TableName() string { return "run_stop_actuals" }

// HasIncompleteTasks reports whether departing now would leave work behind.
func (a RunStopActual) HasIncompleteTasks() bool {
	return a.TasksCompleted < a.TasksTotal
}
