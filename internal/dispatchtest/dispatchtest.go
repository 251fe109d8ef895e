// Package dispatchtest opens throwaway SQLite databases with the dispatch
// schema and seeds fixtures for package tests.
package dispatchtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

var schema = []any{
	&models.Route{},
	&models.RouteStop{},
	&models.RouteSchedule{},
	&models.RunInstance{},
	&models.RunStopActual{},
	&models.PartsRequest{},
	&models.RouteGraphCacheEntry{},
	&models.RouteGraphBuild{},
	&models.OutboxEvent{},
}

// OpenDB returns an isolated in-memory database. A single pooled connection
// keeps SQLite's shared cache from raising table locks between statements, so
// callers must not issue queries outside an open transaction's handle.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(schema...))
	return conn
}

// Route creates an active route starting at start with one stop per location,
// ordered 10, 20, 30... so gaps are exercised.
func Route(t testing.TB, db *gorm.DB, name string, start int64, locations ...int64) models.Route {
	t.Helper()
	route := models.Route{Name: name, StartLocationID: start, IsActive: true}
	require.NoError(t, db.Create(&route).Error)
	for i, loc := range locations {
		stop := models.RouteStop{RouteID: route.ID, LocationID: loc, StopOrder: (i + 1) * 10}
		require.NoError(t, db.Create(&stop).Error)
		route.Stops = append(route.Stops, stop)
	}
	return route
}

// Deactivate flips a route to inactive.
func Deactivate(t testing.TB, db *gorm.DB, routeID int64) {
	t.Helper()
	require.NoError(t, db.Model(&models.Route{}).Where("id = ?", routeID).Update("is_active", false).Error)
}

// StopAt returns the route stop at loc, failing the test if there is none.
func StopAt(t testing.TB, route models.Route, loc int64) models.RouteStop {
	t.Helper()
	for _, stop := range route.Stops {
		if stop.LocationID == loc {
			return stop
		}
	}
	t.Fatalf("route %d has no stop at location %d", route.ID, loc)
	return models.RouteStop{}
}

// Schedule creates an active fixed schedule for the given weekdays.
func Schedule(t testing.TB, db *gorm.DB, routeID int64, at string, days ...time.Weekday) models.RouteSchedule {
	t.Helper()
	tod, err := types.ParseTimeOfDay(at)
	require.NoError(t, err)
	weekdays := make(datatypes.JSONSlice[int], 0, len(days))
	for _, d := range days {
		weekdays = append(weekdays, int(d))
	}
	schedule := models.RouteSchedule{
		RouteID:       routeID,
		ScheduledTime: tod,
		DaysOfWeek:    weekdays,
		ScheduleType:  enums.ScheduleTypeFixed,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&schedule).Error)
	return schedule
}

// Run creates a pending run for the route on date at the given time.
func Run(t testing.TB, db *gorm.DB, routeID int64, scheduleID *int64, date types.Date, at string) models.RunInstance {
	t.Helper()
	tod, err := types.ParseTimeOfDay(at)
	require.NoError(t, err)
	run := models.RunInstance{
		RouteID:         routeID,
		RouteScheduleID: scheduleID,
		ScheduledDate:   date,
		ScheduledTime:   tod,
		Status:          enums.RunStatusPending,
		IsOnDemand:      scheduleID == nil,
	}
	require.NoError(t, db.Create(&run).Error)
	return run
}

// Request creates an unbound parts request for date.
func Request(t testing.TB, db *gorm.DB, ref string, origin, destination int64, date types.Date) models.PartsRequest {
	t.Helper()
	d := date
	req := models.PartsRequest{
		ReferenceNumber:     ref,
		OriginLocationID:    origin,
		ReceivingLocationID: destination,
		ScheduledForDate:    &d,
	}
	require.NoError(t, db.Create(&req).Error)
	return req
}

// Reload reads a request back from storage.
func Reload[T any](t testing.TB, db *gorm.DB, id int64) T {
	t.Helper()
	var out T
	require.NoError(t, db.First(&out, id).Error)
	return out
}

// OutboxEventTypes returns the event types emitted so far, oldest first.
func OutboxEventTypes(t testing.TB, db *gorm.DB) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, db.Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func Int64(v int64) *int64 { return &v }
