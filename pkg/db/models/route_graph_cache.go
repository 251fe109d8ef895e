package models

import (
	"time"

	"gorm.io/datatypes"
)

// PathHop is one element of a cached path. The first hop is the source
// location and carries no route.
type PathHop struct {
	LocationID int64  `json:"location_id"`
	RouteID    *int64 `json:"route_id,omitempty"`
	StopOrder  *int   `json:"stop_order,omitempty"`
	FromStopID *int64 `json:"from_stop_id,omitempty"`
	ToStopID   *int64 `json:"to_stop_id,omitempty"`
}

// RouteGraphCacheEntry is the shortest path for one ordered pair of distinct
// locations. hop_count always equals len(path)-1.
type RouteGraphCacheEntry struct {
	ID             int64                        `gorm:"column:id;primaryKey;autoIncrement"`
	FromLocationID int64                        `gorm:"column:from_location_id;not null;uniqueIndex:ux_route_graph_cache_pair,priority:1"`
	ToLocationID   int64                        `gorm:"column:to_location_id;not null;uniqueIndex:ux_route_graph_cache_pair,priority:2"`
	HopCount       int                          `gorm:"column:hop_count;not null"`
	Path           datatypes.JSONSlice[PathHop] `gorm:"column:path_json;type:jsonb;not null"`
	BuiltAt        time.Time                    `gorm:"column:built_at;not null"`
}

func (RouteGraphCacheEntry) TableName() string { return "route_graph_cache" }

// RouteGraphBuild records one successful cache rebuild.
type RouteGraphBuild struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BuiltAt     time.Time `gorm:"column:built_at;not null" json:"built_at"`
	RouteCount  int       `gorm:"column:route_count;not null" json:"route_count"`
	EdgeCount   int       `gorm:"column:edge_count;not null" json:"edge_count"`
	SourceCount int       `gorm:"column:source_count;not null" json:"source_count"`
	EntryCount  int       `gorm:"column:entry_count;not null" json:"entry_count"`
	DurationMS  int64     `gorm:"column:duration_ms;not null" json:"duration_ms"`
}

func (RouteGraphBuild) TableName() string { return "route_graph_builds" }
