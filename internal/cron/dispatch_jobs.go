package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/partsrunner-backend/internal/scheduler"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

const (
	jobCreateRuns      = "create-runs"
	jobProcessRequests = "process-scheduled-requests"
	jobGraphRebuild    = "graph-rebuild"
	defaultDaysAhead   = 1
)

type runMaterializer interface {
	CreateRunsForDate(ctx context.Context, date types.Date) (int, error)
}

type requestBinder interface {
	ProcessScheduledRequests(ctx context.Context, date types.Date) (*scheduler.Report, error)
}

type graphRebuilder interface {
	RebuildCache(ctx context.Context) (*models.RouteGraphBuild, error)
}

// window covers today plus daysAhead in the dispatch timezone.
type window struct {
	loc       *time.Location
	daysAhead int
	now       func() time.Time
}

func newWindow(loc *time.Location, daysAhead int) window {
	if loc == nil {
		loc = time.UTC
	}
	if daysAhead < 0 {
		daysAhead = defaultDaysAhead
	}
	return window{loc: loc, daysAhead: daysAhead, now: time.Now}
}

func (w window) dates() []types.Date {
	today := types.DateOf(w.now().In(w.loc))
	out := make([]types.Date, 0, w.daysAhead+1)
	for i := 0; i <= w.daysAhead; i++ {
		out = append(out, today.AddDays(i))
	}
	return out
}

type CreateRunsJobParams struct {
	Logger    *logger.Logger
	Scheduler runMaterializer
	Location  *time.Location
	DaysAhead int
}

// NewCreateRunsJob materializes runs from schedules for today and the
// configured days ahead.
func NewCreateRunsJob(params CreateRunsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("scheduler required")
	}
	return &createRunsJob{
		logg:      params.Logger,
		scheduler: params.Scheduler,
		window:    newWindow(params.Location, params.DaysAhead),
	}, nil
}

type createRunsJob struct {
	logg      *logger.Logger
	scheduler runMaterializer
	window    window
}

func (j *createRunsJob) Name() string { return jobCreateRuns }

func (j *createRunsJob) Run(ctx context.Context) error {
	var errs error
	total := 0
	for _, date := range j.window.dates() {
		created, err := j.scheduler.CreateRunsForDate(ctx, date)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("create runs for %s: %w", date, err))
			continue
		}
		total += created
	}
	j.logg.Info(j.logg.WithField(ctx, "runs_created", total), "run materialization complete")
	return errs
}

type ProcessRequestsJobParams struct {
	Logger    *logger.Logger
	Scheduler requestBinder
	Location  *time.Location
	DaysAhead int
}

// NewProcessRequestsJob binds unbound requests across the window.
// Requests left unbound are already reported by the scheduler; the job only
// fails on processing errors.
func NewProcessRequestsJob(params ProcessRequestsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("scheduler required")
	}
	return &processRequestsJob{
		logg:      params.Logger,
		scheduler: params.Scheduler,
		window:    newWindow(params.Location, params.DaysAhead),
	}, nil
}

type processRequestsJob struct {
	logg      *logger.Logger
	scheduler requestBinder
	window    window
}

func (j *processRequestsJob) Name() string { return jobProcessRequests }

func (j *processRequestsJob) Run(ctx context.Context) error {
	var errs error
	for _, date := range j.window.dates() {
		report, err := j.scheduler.ProcessScheduledRequests(ctx, date)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("bind requests for %s: %w", date, err))
		}
		if report == nil {
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"date":      date.String(),
			"processed": report.Processed,
			"bound":     report.Bound,
			"split":     report.Split,
			"unbound":   len(report.Unbound),
		}), "request binding pass complete")
	}
	return errs
}

type GraphRebuildJobParams struct {
	Logger *logger.Logger
	Graph  graphRebuilder
}

// NewGraphRebuildJob refreshes the route graph cache each cycle. A rebuild
// already running elsewhere counts as success.
func NewGraphRebuildJob(params GraphRebuildJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Graph == nil {
		return nil, fmt.Errorf("route graph service required")
	}
	return &graphRebuildJob{logg: params.Logger, graph: params.Graph}, nil
}

type graphRebuildJob struct {
	logg  *logger.Logger
	graph graphRebuilder
}

func (j *graphRebuildJob) Name() string { return jobGraphRebuild }

func (j *graphRebuildJob) Run(ctx context.Context) error {
	build, err := j.graph.RebuildCache(ctx)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			j.logg.Info(ctx, "graph rebuild already in progress")
			return nil
		}
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"build_id": build.ID,
		"entries":  build.EntryCount,
	}), "graph rebuild complete")
	return nil
}
