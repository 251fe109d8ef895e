package routegraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

const (
	defaultPollTimeout = 5 * time.Second
	errorBackoff       = 2 * time.Second
)

type rebuilder interface {
	RebuildCache(ctx context.Context) (*models.RouteGraphBuild, error)
}

type rebuildDequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*RebuildRequest, error)
}

type WorkerParams struct {
	Logger      *logger.Logger
	Queue       rebuildDequeuer
	Service     rebuilder
	PollTimeout time.Duration
}

// Worker drains the rebuild queue and runs each rebuild synchronously.
type Worker struct {
	logg        *logger.Logger
	queue       rebuildDequeuer
	service     rebuilder
	pollTimeout time.Duration
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("rebuild queue required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("graph service required")
	}
	poll := params.PollTimeout
	if poll <= 0 {
		poll = defaultPollTimeout
	}
	return &Worker{
		logg:        params.Logger,
		queue:       params.Queue,
		service:     params.Service,
		pollTimeout: poll,
	}, nil
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logg.Info(ctx, "graph rebuild worker started")
	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "graph rebuild worker stopping")
			return ctx.Err()
		default:
		}

		if err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			backoff := errorBackoff
			if !pkgerrors.Retryable(err) {
				backoff = 5 * errorBackoff
			}
			w.logg.Error(w.logg.WithField(ctx, "backoff_ms", backoff.Milliseconds()), "graph rebuild worker iteration failed", err)
			if sleepErr := sleep(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

// ProcessOne handles at most one queued request. A rebuild rejected because
// another one is running is not an error; that rebuild covers the request.
func (w *Worker) ProcessOne(ctx context.Context) error {
	req, err := w.queue.Dequeue(ctx, w.pollTimeout)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"requested_by": req.RequestedBy,
		"requested_at": req.RequestedAt,
		"event":        "graph.rebuild.dequeued",
	})
	if _, err := w.service.RebuildCache(logCtx); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			w.logg.Info(logCtx, "graph rebuild already running; dropping queued request")
			return nil
		}
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
