package routegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/partsrunner-backend/pkg/redis"
)

const defaultPendingTTL = 30 * time.Minute

type queueStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LPush(ctx context.Context, key string, values ...any) error
	BRPop(ctx context.Context, timeout time.Duration, key string) (string, error)
}

// RebuildRequest is one queued rebuild.
type RebuildRequest struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// RebuildQueue hands rebuilds to the worker process over a Redis list. A
// pending marker collapses bursts of requests into one queued item; it is
// cleared on dequeue so changes made while a rebuild runs queue another.
type RebuildQueue struct {
	store      queueStore
	queueKey   string
	pendingKey string
	pendingTTL time.Duration
	now        func() time.Time
}

func NewRebuildQueue(store queueStore, queueKey, pendingKey string, pendingTTL time.Duration) (*RebuildQueue, error) {
	if store == nil {
		return nil, errors.New("redis client required for rebuild queue")
	}
	if queueKey == "" || pendingKey == "" {
		return nil, errors.New("rebuild queue keys are required")
	}
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
	}
	return &RebuildQueue{
		store:      store,
		queueKey:   queueKey,
		pendingKey: pendingKey,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}, nil
}

// Enqueue reports false when a rebuild is already waiting.
func (q *RebuildQueue) Enqueue(ctx context.Context, requestedBy string) (bool, error) {
	req := RebuildRequest{RequestedBy: requestedBy, RequestedAt: q.now().UTC()}
	payload, err := json.Marshal(req)
	if err != nil {
		return false, err
	}
	fresh, err := q.store.SetNX(ctx, q.pendingKey, string(payload), q.pendingTTL)
	if err != nil {
		return false, fmt.Errorf("mark rebuild pending: %w", err)
	}
	if !fresh {
		return false, nil
	}
	if err := q.store.LPush(ctx, q.queueKey, string(payload)); err != nil {
		_ = q.store.Del(ctx, q.pendingKey)
		return false, fmt.Errorf("push rebuild request: %w", err)
	}
	return true, nil
}

// Dequeue blocks up to timeout and returns nil when nothing was queued.
func (q *RebuildQueue) Dequeue(ctx context.Context, timeout time.Duration) (*RebuildRequest, error) {
	raw, err := q.store.BRPop(ctx, timeout, q.queueKey)
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop rebuild request: %w", err)
	}
	if err := q.store.Del(ctx, q.pendingKey); err != nil {
		return nil, fmt.Errorf("clear rebuild pending: %w", err)
	}
	var req RebuildRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		// a malformed item still means "rebuild"
		return &RebuildRequest{RequestedBy: "unknown"}, nil
	}
	return &req, nil
}
