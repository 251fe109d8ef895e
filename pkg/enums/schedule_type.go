package enums

import "fmt"

// ScheduleType distinguishes recurring schedules from on-demand templates.
type ScheduleType string

const (
	ScheduleTypeFixed    ScheduleType = "fixed"
	ScheduleTypeOnDemand ScheduleType = "on_demand"
)

var validScheduleTypes = []ScheduleType{
	ScheduleTypeFixed,
	ScheduleTypeOnDemand,
}

func (s ScheduleType) String() string {
	return string(s)
}

func (s ScheduleType) IsValid() bool {
	for _, candidate := range validScheduleTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseScheduleType(value string) (ScheduleType, error) {
	for _, candidate := range validScheduleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid schedule type %q", value)
}
