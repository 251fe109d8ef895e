package models

import (
	"time"

	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

// PartsRequest carries only the fields the dispatch engine reads or writes.
// A request split across runs keeps is_multi_leg=true and no run; its
// segments point back through parent_request_id and are ordered by
// segment_order.
type PartsRequest struct {
	ID                  int64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ReferenceNumber     string      `gorm:"column:reference_number;not null" json:"reference_number"`
	OriginLocationID    int64       `gorm:"column:origin_location_id;not null" json:"origin_location_id"`
	ReceivingLocationID int64       `gorm:"column:receiving_location_id;not null" json:"receiving_location_id"`
	ScheduledForDate    *types.Date `gorm:"column:scheduled_for_date;type:date" json:"scheduled_for_date,omitempty"`
	NotBeforeDatetime   *time.Time  `gorm:"column:not_before_datetime" json:"not_before_datetime,omitempty"`
	RunInstanceID       *int64      `gorm:"column:run_instance_id" json:"run_instance_id,omitempty"`
	PickupStopID        *int64      `gorm:"column:pickup_stop_id" json:"pickup_stop_id,omitempty"`
	DropoffStopID       *int64      `gorm:"column:dropoff_stop_id" json:"dropoff_stop_id,omitempty"`
	ParentRequestID     *int64      `gorm:"column:parent_request_id" json:"parent_request_id,omitempty"`
	SegmentOrder        *int        `gorm:"column:segment_order" json:"segment_order,omitempty"`
	IsSegment           bool        `gorm:"column:is_segment;not null;default:false" json:"is_segment"`
	IsMultiLeg          bool        `gorm:"column:is_multi_leg;not null;default:false" json:"is_multi_leg"`
	CreatedAt           time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PartsRequest) TableName() string { return "parts_requests" }
