package models

import "time"

// Route is an ordered topology: a start location followed by its stops.
type Route struct {
	ID              int64       `gorm:"column:id;primaryKey;autoIncrement"`
	Name            string      `gorm:"column:name;not null"`
	StartLocationID int64       `gorm:"column:start_location_id;not null"`
	IsActive        bool        `gorm:"column:is_active;not null"`
	Stops           []RouteStop `gorm:"foreignKey:RouteID"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Route) TableName() string { return "routes" }

// RouteStop places a location on a route. stop_order is unique per route and
// may have gaps.
type RouteStop struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RouteID    int64     `gorm:"column:route_id;not null;uniqueIndex:ux_route_stops_route_order,priority:1"`
	LocationID int64     `gorm:"column:location_id;not null"`
	StopOrder  int       `gorm:"column:stop_order;not null;uniqueIndex:ux_route_stops_route_order,priority:2"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RouteStop) TableName() string { return "route_stops" }
