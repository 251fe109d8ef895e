package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/internal/dispatchtest"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

func TestBaseDBBindsContext(t *testing.T) {
	conn := dispatchtest.OpenDB(t)
	base := NewBase(conn)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)
	assert.Same(t, conn, base.DB(nil))
}

func TestWithTxKeepsPoolOnNil(t *testing.T) {
	conn := dispatchtest.OpenDB(t)
	base := NewBase(conn)
	assert.Same(t, conn, base.WithTx(nil).DB(nil))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		assert.Same(t, tx, base.WithTx(tx).DB(nil))
		return nil
	}))
}

func TestGuardedReportsLostRace(t *testing.T) {
	conn := dispatchtest.OpenDB(t)
	route := dispatchtest.Route(t, conn, "north", 1, 2)
	run := dispatchtest.Run(t, conn, route.ID, nil, types.NewDate(2026, time.March, 2), "08:00")
	base := NewBase(conn)
	ctx := context.Background()

	from := []enums.RunStatus{enums.RunStatusPending}
	changed, err := base.Guarded(ctx, &models.RunInstance{}, map[string]any{"status": enums.RunStatusCanceled},
		"id = ? AND status IN ?", run.ID, from)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = base.Guarded(ctx, &models.RunInstance{}, map[string]any{"status": enums.RunStatusInProgress},
		"id = ? AND status IN ?", run.ID, from)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := FindByID[models.RunInstance](ctx, base, run.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RunStatusCanceled, got.Status)
}

func TestInsertIfAbsentAbsorbsDuplicate(t *testing.T) {
	conn := dispatchtest.OpenDB(t)
	route := dispatchtest.Route(t, conn, "north", 1, 2)
	run := dispatchtest.Run(t, conn, route.ID, nil, types.NewDate(2026, time.March, 2), "08:00")
	base := NewBase(conn)
	ctx := context.Background()

	first := &models.RunStopActual{RunInstanceID: run.ID, RouteStopID: route.Stops[0].ID}
	inserted, err := base.InsertIfAbsent(ctx, first, "run_instance_id", "route_stop_id")
	require.NoError(t, err)
	assert.True(t, inserted)

	again := &models.RunStopActual{RunInstanceID: run.ID, RouteStopID: route.Stops[0].ID}
	inserted, err = base.InsertIfAbsent(ctx, again, "run_instance_id", "route_stop_id")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestFindHelpersOnMissingRows(t *testing.T) {
	conn := dispatchtest.OpenDB(t)
	base := NewBase(conn)
	ctx := context.Background()

	_, err := FindByID[models.RunInstance](ctx, base, 404)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	build, err := FirstOrNil[models.RouteGraphBuild](base.DB(ctx).Order("id DESC"))
	require.NoError(t, err)
	assert.Nil(t, build)
}
