package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsrunner-backend/internal/dispatchtest"
	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/db"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Graph:     config.GraphConfig{InsertBatchSize: 100, RebuildOnCronCycle: true},
		Scheduler: config.SchedulerConfig{Timezone: "UTC", DaysAhead: 1},
		Outbox:    config.OutboxConfig{MaxAttempts: 10},
	}
}

func TestNewWiresServicesWithoutRedis(t *testing.T) {
	conn := dispatchtest.OpenDB(t)
	client := db.FromGorm(conn)

	eng, err := New(Params{
		Config:     testConfig(),
		Logger:     logger.Nop(),
		DB:         client,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	assert.Nil(t, eng.RebuildQueue)
	assert.Equal(t, time.UTC, eng.Location)

	route := dispatchtest.Route(t, conn, "North loop", 100, 200, 300)
	dispatchtest.Schedule(t, conn, route.ID, "09:00", time.Thursday)

	ctx := context.Background()
	_, err = eng.Graph.RebuildCache(ctx)
	require.NoError(t, err)

	path, found, err := eng.Graph.FindPath(ctx, 100, 300)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int64{100, 200, 300}, path.Locations())

	created, err := eng.Scheduler.CreateRunsForDate(ctx, types.NewDate(2026, time.October, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestCronJobsOrder(t *testing.T) {
	conn := dispatchtest.OpenDB(t)
	client := db.FromGorm(conn)
	cfg := testConfig()

	eng, err := New(Params{Config: cfg, Logger: logger.Nop(), DB: client})
	require.NoError(t, err)

	jobs, err := eng.CronJobs(cfg, logger.Nop(), client)
	require.NoError(t, err)
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.Name())
	}
	assert.Equal(t, []string{"graph-rebuild", "create-runs", "process-scheduled-requests", "retention"}, names)

	cfg.Graph.RebuildOnCronCycle = false
	jobs, err = eng.CronJobs(cfg, logger.Nop(), client)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestNewRejectsBadTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Timezone = "Mars/Olympus"
	_, err := New(Params{Config: cfg, Logger: logger.Nop(), DB: db.FromGorm(dispatchtest.OpenDB(t))})
	require.Error(t, err)
}
