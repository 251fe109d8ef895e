package routegraph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsrunner-backend/pkg/redis"
)

type fakeQueueStore struct {
	values  map[string]string
	lists   map[string][]string
	pushErr error
	popErr  error
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{values: map[string]string{}, lists: map[string][]string{}}
}

func (f *fakeQueueStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeQueueStore) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeQueueStore) LPush(ctx context.Context, key string, values ...any) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	for _, v := range values {
		f.lists[key] = append([]string{v.(string)}, f.lists[key]...)
	}
	return nil
}

func (f *fakeQueueStore) BRPop(ctx context.Context, timeout time.Duration, key string) (string, error) {
	if f.popErr != nil {
		return "", f.popErr
	}
	list := f.lists[key]
	if len(list) == 0 {
		return "", redis.ErrNil
	}
	last := list[len(list)-1]
	f.lists[key] = list[:len(list)-1]
	return last, nil
}

func TestNewRebuildQueueValidates(t *testing.T) {
	_, err := NewRebuildQueue(nil, "q", "p", 0)
	require.Error(t, err)

	_, err = NewRebuildQueue(newFakeQueueStore(), "", "p", 0)
	require.Error(t, err)

	q, err := NewRebuildQueue(newFakeQueueStore(), "q", "p", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultPendingTTL, q.pendingTTL)
}

func TestRebuildQueueCollapsesPendingRequests(t *testing.T) {
	store := newFakeQueueStore()
	q, err := NewRebuildQueue(store, "q", "p", time.Minute)
	require.NoError(t, err)
	now := time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, "cron")
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = q.Enqueue(ctx, "dispatcher:4")
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Len(t, store.lists["q"], 1)

	req, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "cron", req.RequestedBy)
	assert.True(t, now.Equal(req.RequestedAt))
	assert.NotContains(t, store.values, "p")

	// once dequeued, a new change queues a fresh rebuild
	queued, err = q.Enqueue(ctx, "dispatcher:4")
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestRebuildQueueDequeueEmpty(t *testing.T) {
	q, err := NewRebuildQueue(newFakeQueueStore(), "q", "p", 0)
	require.NoError(t, err)

	req, err := q.Dequeue(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestRebuildQueuePushFailureClearsPending(t *testing.T) {
	store := newFakeQueueStore()
	store.pushErr = errors.New("connection reset")
	q, err := NewRebuildQueue(store, "q", "p", 0)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "cron")
	require.Error(t, err)
	assert.NotContains(t, store.values, "p")
}

func TestRebuildQueueMalformedItemStillRebuilds(t *testing.T) {
	store := newFakeQueueStore()
	store.lists["q"] = []string{"not json"}
	q, err := NewRebuildQueue(store, "q", "p", 0)
	require.NoError(t, err)

	req, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "unknown", req.RequestedBy)
}
