// Package engine wires the dispatch services over shared Postgres and Redis
// clients so every binary builds them the same way.
package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/partsrunner-backend/internal/cron"
	"github.com/angelmondragon/partsrunner-backend/internal/routegraph"
	"github.com/angelmondragon/partsrunner-backend/internal/runs"
	"github.com/angelmondragon/partsrunner-backend/internal/scheduler"
	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/db"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/metrics"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox"
	"github.com/angelmondragon/partsrunner-backend/pkg/redis"
)

const graphRebuildName = "graph-rebuild"

type Params struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	// Redis is optional. Without it rebuilds only serialize in-process and
	// async rebuilds run in a goroutine.
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Engine holds the wired dispatch services.
type Engine struct {
	Location     *time.Location
	Outbox       *outbox.Service
	OutboxRepo   *outbox.Repository
	Graph        routegraph.Service
	GraphRepo    *routegraph.Repository
	RebuildQueue *routegraph.RebuildQueue
	Runs         runs.Service
	Scheduler    scheduler.Service
}

func New(params Params) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	cfg := params.Config

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}

	conn := params.DB.DB()
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, params.Logger)
	dispatchMetrics := metrics.NewDispatchMetrics(params.Registerer)

	var (
		lock  routegraph.Lock
		queue *routegraph.RebuildQueue
	)
	if params.Redis != nil {
		redisLock, err := cron.NewRedisLock(params.Redis, params.Redis.LockKey(graphRebuildName), cfg.Graph.RebuildLockTTL)
		if err != nil {
			return nil, fmt.Errorf("graph rebuild lock: %w", err)
		}
		lock = redisLock
		queue, err = routegraph.NewRebuildQueue(params.Redis, params.Redis.QueueKey(graphRebuildName), params.Redis.PendingKey(graphRebuildName), 0)
		if err != nil {
			return nil, fmt.Errorf("graph rebuild queue: %w", err)
		}
	}

	graphRepo := routegraph.NewRepository(conn)
	graphSvc, err := routegraph.NewService(routegraph.ServiceParams{
		Logger:     params.Logger,
		DB:         params.DB,
		Repository: graphRepo,
		Outbox:     outboxSvc,
		Lock:       lock,
		Queue:      queue,
		Metrics:    metrics.NewGraphMetrics(params.Registerer),
		BatchSize:  cfg.Graph.InsertBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("route graph service: %w", err)
	}

	runsRepo := runs.NewRepository(conn)
	runsSvc, err := runs.NewService(runs.ServiceParams{
		Logger:     params.Logger,
		DB:         params.DB,
		Repository: runsRepo,
		Outbox:     outboxSvc,
		Metrics:    dispatchMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("runs service: %w", err)
	}

	schedSvc, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:     params.Logger,
		DB:         params.DB,
		Repository: scheduler.NewRepository(conn),
		Runs:       runsRepo,
		Graph:      graphSvc,
		Outbox:     outboxSvc,
		Metrics:    dispatchMetrics,
		Location:   loc,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler service: %w", err)
	}

	return &Engine{
		Location:     loc,
		Outbox:       outboxSvc,
		OutboxRepo:   outboxRepo,
		Graph:        graphSvc,
		GraphRepo:    graphRepo,
		RebuildQueue: queue,
		Runs:         runsSvc,
		Scheduler:    schedSvc,
	}, nil
}

// CronJobs returns the scheduled dispatch jobs in run order: refresh the
// graph, materialize runs, then bind requests against both.
func (e *Engine) CronJobs(cfg *config.Config, logg *logger.Logger, conn *db.Client) ([]cron.Job, error) {
	var jobs []cron.Job
	if cfg.Graph.RebuildOnCronCycle {
		job, err := cron.NewGraphRebuildJob(cron.GraphRebuildJobParams{Logger: logg, Graph: e.Graph})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	createRuns, err := cron.NewCreateRunsJob(cron.CreateRunsJobParams{
		Logger:    logg,
		Scheduler: e.Scheduler,
		Location:  e.Location,
		DaysAhead: cfg.Scheduler.DaysAhead,
	})
	if err != nil {
		return nil, err
	}
	processRequests, err := cron.NewProcessRequestsJob(cron.ProcessRequestsJobParams{
		Logger:    logg,
		Scheduler: e.Scheduler,
		Location:  e.Location,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:        logg,
		DB:            conn,
		Outbox:        e.OutboxRepo,
		Builds:        e.GraphRepo,
		RetentionDays: cfg.Outbox.RetentionDays,
		MinAttempts:   cfg.Outbox.MaxAttempts,
		KeepBuilds:    cfg.Graph.KeepBuilds,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, createRuns, processRequests, retention), nil
}
