package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateRunInstance  OutboxAggregateType = "run_instance"
	AggregatePartsRequest OutboxAggregateType = "parts_request"
	AggregateRouteGraph   OutboxAggregateType = "route_graph"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRunInstance,
	AggregatePartsRequest,
	AggregateRouteGraph,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventRunCreated      OutboxEventType = "run_created"
	EventRunStateChanged OutboxEventType = "run_state_changed"
	EventRunAssigned     OutboxEventType = "run_assigned"
	EventRunsMerged      OutboxEventType = "runs_merged"
	EventRequestAssigned OutboxEventType = "request_assigned"
	EventRequestSplit    OutboxEventType = "request_split"
	EventRequestUnbound  OutboxEventType = "request_unbound"
	EventGraphRebuilt    OutboxEventType = "graph_rebuilt"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRunCreated,
	EventRunStateChanged,
	EventRunAssigned,
	EventRunsMerged,
	EventRequestAssigned,
	EventRequestSplit,
	EventRequestUnbound,
	EventGraphRebuilt,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
