package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

// RouteSchedule is the recurring template runs are materialized from.
// DaysOfWeek uses 0=Sunday..6=Saturday.
type RouteSchedule struct {
	ID            int64                    `gorm:"column:id;primaryKey;autoIncrement"`
	RouteID       int64                    `gorm:"column:route_id;not null"`
	Name          *string                  `gorm:"column:name"`
	ScheduledTime types.TimeOfDay          `gorm:"column:scheduled_time;type:time;not null"`
	DaysOfWeek    datatypes.JSONSlice[int] `gorm:"column:days_of_week;type:jsonb;not null"`
	ScheduleType  enums.ScheduleType       `gorm:"column:schedule_type;not null;default:fixed"`
	IsActive      bool                     `gorm:"column:is_active;not null"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (RouteSchedule) TableName() string { return "route_schedules" }

// RunsOn reports whether the schedule applies to the given weekday.
func (s RouteSchedule) RunsOn(day time.Weekday) bool {
	for _, d := range s.DaysOfWeek {
		if d == int(day) {
			return true
		}
	}
	return false
}
