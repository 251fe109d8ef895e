package runs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/internal/dispatchtest"
	"github.com/angelmondragon/partsrunner-backend/pkg/db"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

const (
	runnerID   int64 = 41
	otherID    int64 = 42
	shopLoc    int64 = 100
	vendorLoc  int64 = 200
	clientLoc  int64 = 300
	strayLoc   int64 = 900
	fixedClock       = "2026-10-15T14:00:00Z"
)

var (
	runner     = Actor{UserID: runnerID, Role: enums.ActorRoleRunner}
	stranger   = Actor{UserID: otherID, Role: enums.ActorRoleRunner}
	dispatcher = Actor{UserID: 7, Role: enums.ActorRoleDispatcher}
	runDate    = types.NewDate(2026, time.October, 15)
)

type runsEnv struct {
	conn  *gorm.DB
	svc   *service
	route models.Route
	run   models.RunInstance
}

func newRunsEnv(t *testing.T) runsEnv {
	t.Helper()
	conn := dispatchtest.OpenDB(t)
	svcIface, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		DB:         db.FromGorm(conn),
		Repository: NewRepository(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
	})
	require.NoError(t, err)
	svc := svcIface.(*service)
	now, _ := time.Parse(time.RFC3339, fixedClock)
	svc.now = func() time.Time { return now }

	route := dispatchtest.Route(t, conn, "north", shopLoc, vendorLoc, clientLoc)
	run := dispatchtest.Run(t, conn, route.ID, nil, runDate, "09:00")
	require.NoError(t, conn.Model(&run).Update("runner_id", runnerID).Error)
	run.RunnerID = dispatchtest.Int64(runnerID)
	return runsEnv{conn: conn, svc: svc, route: route, run: run}
}

func (e runsEnv) setStatus(t *testing.T, status enums.RunStatus) {
	t.Helper()
	require.NoError(t, e.conn.Model(&models.RunInstance{}).Where("id = ?", e.run.ID).Update("status", status).Error)
}

func requireRejected(t *testing.T, err error, code pkgerrors.Code, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
	assert.Equal(t, reason, pkgerrors.Reason(err))
}

func TestStartByAssignedRunner(t *testing.T) {
	env := newRunsEnv(t)

	run, err := env.svc.Start(context.Background(), env.run.ID, runner)
	require.NoError(t, err)
	assert.Equal(t, enums.RunStatusInProgress, run.Status)
	require.NotNil(t, run.ActualStartAt)
	assert.Equal(t, fixedClock, run.ActualStartAt.UTC().Format(time.RFC3339))
	assert.Equal(t, []enums.OutboxEventType{enums.EventRunStateChanged}, dispatchtest.OutboxEventTypes(t, env.conn))
}

func TestStartRejections(t *testing.T) {
	cases := []struct {
		name   string
		status enums.RunStatus
		actor  Actor
		code   pkgerrors.Code
		reason string
	}{
		{"other runner", enums.RunStatusPending, stranger, pkgerrors.CodeForbidden, "not assigned runner"},
		{"dispatcher is not the runner", enums.RunStatusPending, dispatcher, pkgerrors.CodeForbidden, "not assigned runner"},
		{"already started", enums.RunStatusInProgress, runner, pkgerrors.CodeStateConflict, "run not pending"},
		{"completed", enums.RunStatusCompleted, runner, pkgerrors.CodeStateConflict, "run already completed"},
		{"canceled", enums.RunStatusCanceled, runner, pkgerrors.CodeStateConflict, "run already canceled"},
		{"wrong actor beats wrong status", enums.RunStatusInProgress, stranger, pkgerrors.CodeForbidden, "not assigned runner"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newRunsEnv(t)
			env.setStatus(t, tc.status)

			_, err := env.svc.Start(context.Background(), env.run.ID, tc.actor)
			requireRejected(t, err, tc.code, tc.reason)

			reloaded := dispatchtest.Reload[models.RunInstance](t, env.conn, env.run.ID)
			assert.Equal(t, tc.status, reloaded.Status)
			assert.Nil(t, reloaded.ActualStartAt)
			assert.Empty(t, dispatchtest.OutboxEventTypes(t, env.conn))
		})
	}
}

func TestStartUnassignedRunIsForbidden(t *testing.T) {
	env := newRunsEnv(t)
	require.NoError(t, env.conn.Model(&models.RunInstance{}).Where("id = ?", env.run.ID).Update("runner_id", nil).Error)

	_, err := env.svc.Start(context.Background(), env.run.ID, runner)
	requireRejected(t, err, pkgerrors.CodeForbidden, "not assigned runner")
}

func TestStartUnknownRun(t *testing.T) {
	env := newRunsEnv(t)
	_, err := env.svc.Start(context.Background(), 9999, runner)
	requireRejected(t, err, pkgerrors.CodeNotFound, "run not found")
}

func TestCompleteRequiresInProgress(t *testing.T) {
	env := newRunsEnv(t)
	ctx := context.Background()

	_, err := env.svc.Complete(ctx, env.run.ID, runner)
	requireRejected(t, err, pkgerrors.CodeStateConflict, "run not in progress")

	_, err = env.svc.Start(ctx, env.run.ID, runner)
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, env.run.ID, dispatcher)
	requireRejected(t, err, pkgerrors.CodeForbidden, "not assigned runner")

	run, err := env.svc.Complete(ctx, env.run.ID, runner)
	require.NoError(t, err)
	assert.Equal(t, enums.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.ActualEndAt)

	_, err = env.svc.Cancel(ctx, env.run.ID, dispatcher)
	requireRejected(t, err, pkgerrors.CodeStateConflict, "run already completed")
}

func TestCancelRules(t *testing.T) {
	t.Run("runner while pending", func(t *testing.T) {
		env := newRunsEnv(t)
		run, err := env.svc.Cancel(context.Background(), env.run.ID, runner)
		require.NoError(t, err)
		assert.Equal(t, enums.RunStatusCanceled, run.Status)
	})
	t.Run("runner once started", func(t *testing.T) {
		env := newRunsEnv(t)
		env.setStatus(t, enums.RunStatusInProgress)
		_, err := env.svc.Cancel(context.Background(), env.run.ID, runner)
		requireRejected(t, err, pkgerrors.CodeStateConflict, "run not pending")
	})
	t.Run("unassigned runner", func(t *testing.T) {
		env := newRunsEnv(t)
		_, err := env.svc.Cancel(context.Background(), env.run.ID, stranger)
		requireRejected(t, err, pkgerrors.CodeForbidden, "not assigned runner")
	})
	t.Run("dispatcher any time before finish", func(t *testing.T) {
		env := newRunsEnv(t)
		env.setStatus(t, enums.RunStatusInProgress)
		run, err := env.svc.Cancel(context.Background(), env.run.ID, dispatcher)
		require.NoError(t, err)
		assert.Equal(t, enums.RunStatusCanceled, run.Status)

		_, err = env.svc.Cancel(context.Background(), env.run.ID, dispatcher)
		requireRejected(t, err, pkgerrors.CodeStateConflict, "run already canceled")
	})
}

func TestArriveAndDepart(t *testing.T) {
	env := newRunsEnv(t)
	ctx := context.Background()
	vendorStop := dispatchtest.StopAt(t, env.route, vendorLoc)
	clientStop := dispatchtest.StopAt(t, env.route, clientLoc)

	_, err := env.svc.Arrive(ctx, env.run.ID, vendorStop.ID, runner)
	requireRejected(t, err, pkgerrors.CodeStateConflict, "run not in progress")

	_, err = env.svc.Start(ctx, env.run.ID, runner)
	require.NoError(t, err)

	_, err = env.svc.Depart(ctx, DepartInput{RunID: env.run.ID, StopID: vendorStop.ID, Actor: runner})
	requireRejected(t, err, pkgerrors.CodeStateConflict, "stop not arrived")

	run, err := env.svc.Arrive(ctx, env.run.ID, vendorStop.ID, runner)
	require.NoError(t, err)
	require.NotNil(t, run.CurrentStopID)
	assert.Equal(t, vendorStop.ID, *run.CurrentStopID)

	// revisit keeps the first arrival
	_, err = env.svc.Arrive(ctx, env.run.ID, vendorStop.ID, dispatcher)
	require.NoError(t, err)
	actuals, err := env.svc.StopActuals(ctx, env.run.ID)
	require.NoError(t, err)
	require.Len(t, actuals, 1)
	assert.Nil(t, actuals[0].DepartedAt)

	_, err = env.svc.Depart(ctx, DepartInput{RunID: env.run.ID, StopID: vendorStop.ID, Actor: runner})
	require.NoError(t, err)

	_, err = env.svc.Depart(ctx, DepartInput{RunID: env.run.ID, StopID: vendorStop.ID, Actor: runner})
	requireRejected(t, err, pkgerrors.CodeStateConflict, "stop already departed")

	_, err = env.svc.Arrive(ctx, env.run.ID, clientStop.ID, stranger)
	requireRejected(t, err, pkgerrors.CodeForbidden, "not assigned runner")

	assert.Equal(t, []enums.OutboxEventType{
		enums.EventRunStateChanged, // start
		enums.EventRunStateChanged, // arrive
		enums.EventRunStateChanged, // depart
	}, dispatchtest.OutboxEventTypes(t, env.conn))
}

func TestArriveRejectsStopFromAnotherRoute(t *testing.T) {
	env := newRunsEnv(t)
	other := dispatchtest.Route(t, env.conn, "south", strayLoc, shopLoc)
	env.setStatus(t, enums.RunStatusInProgress)

	_, err := env.svc.Arrive(context.Background(), env.run.ID, other.Stops[0].ID, runner)
	requireRejected(t, err, pkgerrors.CodeValidation, "stop not on run route")
}

func TestDepartWithIncompleteTasks(t *testing.T) {
	env := newRunsEnv(t)
	ctx := context.Background()
	vendorStop := dispatchtest.StopAt(t, env.route, vendorLoc)
	clientStop := dispatchtest.StopAt(t, env.route, clientLoc)

	req := dispatchtest.Request(t, env.conn, "PR-1", vendorLoc, clientLoc, runDate)
	require.NoError(t, env.conn.Model(&req).Updates(map[string]any{
		"run_instance_id": env.run.ID,
		"pickup_stop_id":  vendorStop.ID,
		"dropoff_stop_id": clientStop.ID,
	}).Error)

	env.setStatus(t, enums.RunStatusInProgress)
	_, err := env.svc.Arrive(ctx, env.run.ID, vendorStop.ID, runner)
	require.NoError(t, err)

	_, err = env.svc.Depart(ctx, DepartInput{RunID: env.run.ID, StopID: vendorStop.ID, Actor: runner})
	requireRejected(t, err, pkgerrors.CodeStateConflict, "stop has incomplete tasks")

	actual, err := env.svc.RecordTaskCompleted(ctx, env.run.ID, vendorStop.ID, runner)
	require.NoError(t, err)
	assert.Equal(t, 1, actual.TasksTotal)
	assert.Equal(t, 1, actual.TasksCompleted)

	_, err = env.svc.RecordTaskCompleted(ctx, env.run.ID, vendorStop.ID, runner)
	requireRejected(t, err, pkgerrors.CodeStateConflict, "all stop tasks already completed")

	_, err = env.svc.Depart(ctx, DepartInput{RunID: env.run.ID, StopID: vendorStop.ID, Actor: runner})
	require.NoError(t, err)

	_, err = env.svc.Arrive(ctx, env.run.ID, clientStop.ID, runner)
	require.NoError(t, err)
	_, err = env.svc.Depart(ctx, DepartInput{RunID: env.run.ID, StopID: clientStop.ID, Actor: dispatcher, Force: true})
	require.NoError(t, err)
}

func TestAssignRunner(t *testing.T) {
	env := newRunsEnv(t)
	ctx := context.Background()

	_, err := env.svc.AssignRunner(ctx, AssignRunnerInput{RunID: env.run.ID, RunnerID: dispatchtest.Int64(otherID), Actor: runner})
	requireRejected(t, err, pkgerrors.CodeForbidden, "dispatcher role required")

	_, err = env.svc.AssignRunner(ctx, AssignRunnerInput{RunID: env.run.ID, Actor: dispatcher})
	requireRejected(t, err, pkgerrors.CodeValidation, "runner or vehicle required")

	run, err := env.svc.AssignRunner(ctx, AssignRunnerInput{
		RunID:             env.run.ID,
		RunnerID:          dispatchtest.Int64(otherID),
		VehicleLocationID: dispatchtest.Int64(strayLoc),
		Actor:             dispatcher,
	})
	require.NoError(t, err)
	assert.True(t, run.IsAssignedRunner(otherID))
	assert.Equal(t, strayLoc, *run.AssignedVehicleLocationID)

	// the previous runner lost the run
	_, err = env.svc.Start(ctx, env.run.ID, runner)
	requireRejected(t, err, pkgerrors.CodeForbidden, "not assigned runner")
	_, err = env.svc.Start(ctx, env.run.ID, stranger)
	require.NoError(t, err)

	env.setStatus(t, enums.RunStatusCompleted)
	_, err = env.svc.AssignRunner(ctx, AssignRunnerInput{RunID: env.run.ID, RunnerID: dispatchtest.Int64(runnerID), Actor: dispatcher})
	requireRejected(t, err, pkgerrors.CodeStateConflict, "run already completed")
}

func TestCreateOnDemand(t *testing.T) {
	env := newRunsEnv(t)
	ctx := context.Background()
	at := types.NewTimeOfDay(15, 30, 0)

	_, err := env.svc.CreateOnDemand(ctx, CreateOnDemandInput{RouteID: env.route.ID, Date: runDate, Time: at, Actor: runner})
	requireRejected(t, err, pkgerrors.CodeForbidden, "dispatcher role required")

	_, err = env.svc.CreateOnDemand(ctx, CreateOnDemandInput{RouteID: 9999, Date: runDate, Time: at, Actor: dispatcher})
	requireRejected(t, err, pkgerrors.CodeNotFound, "route not found")

	run, err := env.svc.CreateOnDemand(ctx, CreateOnDemandInput{RouteID: env.route.ID, Date: runDate, Time: at, Actor: dispatcher})
	require.NoError(t, err)
	assert.True(t, run.IsOnDemand)
	assert.Nil(t, run.RouteScheduleID)
	assert.Equal(t, enums.RunStatusPending, run.Status)
	assert.Equal(t, at, run.ScheduledTime)

	// on-demand runs are not keyed by schedule, so a second one is allowed
	_, err = env.svc.CreateOnDemand(ctx, CreateOnDemandInput{RouteID: env.route.ID, Date: runDate, Time: at, Actor: dispatcher})
	require.NoError(t, err)

	dispatchtest.Deactivate(t, env.conn, env.route.ID)
	_, err = env.svc.CreateOnDemand(ctx, CreateOnDemandInput{RouteID: env.route.ID, Date: runDate, Time: at, Actor: dispatcher})
	requireRejected(t, err, pkgerrors.CodeValidation, "route inactive")
}

func TestMergeMovesRequestsAndCancelsSource(t *testing.T) {
	env := newRunsEnv(t)
	ctx := context.Background()
	source := dispatchtest.Run(t, env.conn, env.route.ID, nil, runDate, "13:00")
	req := dispatchtest.Request(t, env.conn, "PR-9", shopLoc, clientLoc, runDate)
	require.NoError(t, env.conn.Model(&req).Update("run_instance_id", source.ID).Error)

	_, err := env.svc.Merge(ctx, env.run.ID, env.run.ID, dispatcher)
	requireRejected(t, err, pkgerrors.CodeValidation, "cannot merge run into itself")

	_, err = env.svc.Merge(ctx, env.run.ID, source.ID, runner)
	requireRejected(t, err, pkgerrors.CodeForbidden, "dispatcher role required")

	target, err := env.svc.Merge(ctx, env.run.ID, source.ID, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, env.run.ID, target.ID)

	moved := dispatchtest.Reload[models.PartsRequest](t, env.conn, req.ID)
	assert.Equal(t, env.run.ID, *moved.RunInstanceID)
	canceled := dispatchtest.Reload[models.RunInstance](t, env.conn, source.ID)
	assert.Equal(t, enums.RunStatusCanceled, canceled.Status)

	_, err = env.svc.Merge(ctx, env.run.ID, source.ID, dispatcher)
	requireRejected(t, err, pkgerrors.CodeStateConflict, "source run not pending")

	other := dispatchtest.Route(t, env.conn, "south", strayLoc, shopLoc)
	foreign := dispatchtest.Run(t, env.conn, other.ID, nil, runDate, "10:00")
	_, err = env.svc.Merge(ctx, env.run.ID, foreign.ID, dispatcher)
	requireRejected(t, err, pkgerrors.CodeValidation, "runs are on different routes")
}

func TestHasPassedStop(t *testing.T) {
	env := newRunsEnv(t)
	ctx := context.Background()
	vendorStop := dispatchtest.StopAt(t, env.route, vendorLoc)
	clientStop := dispatchtest.StopAt(t, env.route, clientLoc)

	passed, err := env.svc.HasPassedStop(ctx, env.run.ID, vendorStop.ID)
	require.NoError(t, err)
	assert.False(t, passed, "pending runs have passed nothing")

	env.setStatus(t, enums.RunStatusInProgress)
	_, err = env.svc.Arrive(ctx, env.run.ID, vendorStop.ID, runner)
	require.NoError(t, err)

	passed, err = env.svc.HasPassedStop(ctx, env.run.ID, vendorStop.ID)
	require.NoError(t, err)
	assert.False(t, passed, "still at the stop")

	_, err = env.svc.Depart(ctx, DepartInput{RunID: env.run.ID, StopID: vendorStop.ID, Actor: runner})
	require.NoError(t, err)
	passed, err = env.svc.HasPassedStop(ctx, env.run.ID, vendorStop.ID)
	require.NoError(t, err)
	assert.True(t, passed, "departed")

	_, err = env.svc.Arrive(ctx, env.run.ID, clientStop.ID, runner)
	require.NoError(t, err)
	passed, err = env.svc.HasPassedStop(ctx, env.run.ID, vendorStop.ID)
	require.NoError(t, err)
	assert.True(t, passed, "current stop is further along")

	passed, err = env.svc.HasPassedStop(ctx, env.run.ID, clientStop.ID)
	require.NoError(t, err)
	assert.False(t, passed)
}
