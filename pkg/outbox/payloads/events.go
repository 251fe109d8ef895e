package payloads

import (
	"time"

	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

// RunCreatedEvent is emitted for every run materialized from a schedule or
// created on demand.
type RunCreatedEvent struct {
	RunID           int64           `json:"run_id"`
	RouteID         int64           `json:"route_id"`
	RouteScheduleID *int64          `json:"route_schedule_id,omitempty"`
	ScheduledDate   types.Date      `json:"scheduled_date"`
	ScheduledTime   types.TimeOfDay `json:"scheduled_time"`
	IsOnDemand      bool            `json:"is_on_demand"`
}

// RunStateChangedEvent reports a lifecycle transition.
type RunStateChangedEvent struct {
	RunID      int64           `json:"run_id"`
	RouteID    int64           `json:"route_id"`
	Action     string          `json:"action"`
	FromStatus enums.RunStatus `json:"from_status"`
	ToStatus   enums.RunStatus `json:"to_status"`
	StopID     *int64          `json:"stop_id,omitempty"`
	Forced     bool            `json:"forced,omitempty"`
	ChangedAt  time.Time       `json:"changed_at"`
}

// RunAssignedEvent reports a runner or vehicle assignment.
type RunAssignedEvent struct {
	RunID                     int64  `json:"run_id"`
	RunnerID                  *int64 `json:"runner_id,omitempty"`
	AssignedVehicleLocationID *int64 `json:"assigned_vehicle_location_id,omitempty"`
}

// RunsMergedEvent reports that the source run's requests moved to the target.
type RunsMergedEvent struct {
	TargetRunID    int64   `json:"target_run_id"`
	SourceRunID    int64   `json:"source_run_id"`
	MovedRequestID []int64 `json:"moved_request_ids"`
}

// RequestAssignedEvent reports a request or segment bound to a run.
type RequestAssignedEvent struct {
	RequestID       int64  `json:"request_id"`
	RunID           int64  `json:"run_id"`
	PickupStopID    *int64 `json:"pickup_stop_id,omitempty"`
	DropoffStopID   int64  `json:"dropoff_stop_id"`
	ParentRequestID *int64 `json:"parent_request_id,omitempty"`
	SegmentOrder    *int   `json:"segment_order,omitempty"`
	Automatic       bool   `json:"automatic"`
}

// RequestSplitEvent reports that a request was split into segments.
type RequestSplitEvent struct {
	RequestID  int64   `json:"request_id"`
	SegmentIDs []int64 `json:"segment_ids"`
}

// RequestUnboundEvent reports a request left without a run.
type RequestUnboundEvent struct {
	RequestID     int64  `json:"request_id"`
	PreviousRunID *int64 `json:"previous_run_id,omitempty"`
	Reason        string `json:"reason"`
}

// GraphRebuiltEvent summarizes a completed route graph cache rebuild.
type GraphRebuiltEvent struct {
	BuildID     int64     `json:"build_id"`
	BuiltAt     time.Time `json:"built_at"`
	SourceCount int       `json:"source_count"`
	EntryCount  int       `json:"entry_count"`
	DurationMS  int64     `json:"duration_ms"`
}
