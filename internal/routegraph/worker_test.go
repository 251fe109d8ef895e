package routegraph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

type fakeRebuilder struct {
	calls int
	err   error
}

func (f *fakeRebuilder) RebuildCache(ctx context.Context) (*models.RouteGraphBuild, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.RouteGraphBuild{ID: int64(f.calls)}, nil
}

func newTestWorker(t *testing.T, store *fakeQueueStore, rb rebuilder) *Worker {
	t.Helper()
	q, err := NewRebuildQueue(store, "q", "p", 0)
	require.NoError(t, err)
	w, err := NewWorker(WorkerParams{Logger: logger.Nop(), Queue: q, Service: rb, PollTimeout: time.Millisecond})
	require.NoError(t, err)
	return w
}

func TestNewWorkerValidates(t *testing.T) {
	_, err := NewWorker(WorkerParams{})
	require.EqualError(t, err, "logger required")

	_, err = NewWorker(WorkerParams{Logger: logger.Nop()})
	require.EqualError(t, err, "rebuild queue required")
}

func TestWorkerProcessOneRebuildsQueuedRequest(t *testing.T) {
	store := newFakeQueueStore()
	rb := &fakeRebuilder{}
	w := newTestWorker(t, store, rb)
	q, _ := NewRebuildQueue(store, "q", "p", 0)

	_, err := q.Enqueue(context.Background(), "cron")
	require.NoError(t, err)

	require.NoError(t, w.ProcessOne(context.Background()))
	assert.Equal(t, 1, rb.calls)

	require.NoError(t, w.ProcessOne(context.Background()))
	assert.Equal(t, 1, rb.calls, "empty queue does not rebuild")
}

func TestWorkerTreatsConcurrentRebuildAsDone(t *testing.T) {
	store := newFakeQueueStore()
	rb := &fakeRebuilder{err: ErrRebuildInProgress}
	w := newTestWorker(t, store, rb)
	store.lists["q"] = []string{`{"requested_by":"cron"}`}

	require.NoError(t, w.ProcessOne(context.Background()))
	assert.Equal(t, 1, rb.calls)
}

func TestWorkerSurfacesRebuildFailure(t *testing.T) {
	store := newFakeQueueStore()
	rb := &fakeRebuilder{err: errors.New("topology unavailable")}
	w := newTestWorker(t, store, rb)
	store.lists["q"] = []string{`{"requested_by":"cron"}`}

	require.Error(t, w.ProcessOne(context.Background()))
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	w := newTestWorker(t, newFakeQueueStore(), &fakeRebuilder{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
