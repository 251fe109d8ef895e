package routegraph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/internal/graph"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/metrics"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox/payloads"
)

// ErrRebuildInProgress is returned when a rebuild is already running in this
// process or, with a distributed lock configured, anywhere in the fleet.
var ErrRebuildInProgress = pkgerrors.New(pkgerrors.CodeConflict, "graph rebuild already in progress")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type graphRepository interface {
	WithTx(tx *gorm.DB) *Repository
	LoadActiveTopology(ctx context.Context) ([]graph.RouteTopology, error)
	FindCacheEntry(ctx context.Context, from, to int64) (*models.RouteGraphCacheEntry, error)
	CountCacheEntries(ctx context.Context) (int64, error)
	LatestBuild(ctx context.Context) (*models.RouteGraphBuild, error)
}

// Lock serializes rebuilds across processes. cron.RedisLock satisfies it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Service builds the route graph, rebuilds the path cache and answers path
// queries from it.
type Service interface {
	BuildGraph(ctx context.Context) (*graph.Graph, error)
	RebuildCache(ctx context.Context) (*models.RouteGraphBuild, error)
	RequestRebuild(ctx context.Context, requestedBy string) (RebuildTicket, error)
	FindPath(ctx context.Context, from, to int64) (*graph.Path, bool, error)
	Status(ctx context.Context) (*Status, error)
}

// Status describes the cache as of its last rebuild.
type Status struct {
	LastBuild  *models.RouteGraphBuild `json:"last_build,omitempty"`
	EntryCount int64                   `json:"entry_count"`
	Rebuilding bool                    `json:"rebuilding"`
}

// RebuildTicket reports how an asynchronous rebuild request was handled.
type RebuildTicket struct {
	Mode   string `json:"mode"`
	Queued bool   `json:"queued"`
}

const (
	TicketModeQueue      = "queue"
	TicketModeBackground = "background"
)

type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository graphRepository
	Outbox     outboxEmitter
	Lock       Lock
	Queue      *RebuildQueue
	Metrics    *metrics.GraphMetrics
	BatchSize  int
}

type service struct {
	logg      *logger.Logger
	db        txRunner
	repo      graphRepository
	outbox    outboxEmitter
	lock      Lock
	queue     *RebuildQueue
	metrics   *metrics.GraphMetrics
	batchSize int
	now       func() time.Time

	mu         sync.Mutex
	rebuilding atomic.Bool
}

func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("graph repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultInsertBatch
	}
	return &service{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		outbox:    params.Outbox,
		lock:      params.Lock,
		queue:     params.Queue,
		metrics:   params.Metrics,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

// BuildGraph reads the active topology and returns the adjacency. It never
// writes.
func (s *service) BuildGraph(ctx context.Context) (*graph.Graph, error) {
	topology, err := s.repo.LoadActiveTopology(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "route topology unavailable")
	}
	return graph.Build(topology), nil
}

// RebuildCache recomputes every shortest path and swaps the cache in one
// transaction. A failure at any step leaves the previous cache in place.
func (s *service) RebuildCache(ctx context.Context) (*models.RouteGraphBuild, error) {
	if !s.mu.TryLock() {
		s.metrics.IncRebuildSkipped()
		return nil, ErrRebuildInProgress
	}
	defer s.mu.Unlock()

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire graph rebuild lock")
		}
		if !acquired {
			s.metrics.IncRebuildSkipped()
			return nil, ErrRebuildInProgress
		}
		defer func() {
			if relErr := s.lock.Release(ctx); relErr != nil {
				s.logg.Error(ctx, "failed to release graph rebuild lock", relErr)
			}
		}()
	}

	s.rebuilding.Store(true)
	defer s.rebuilding.Store(false)

	start := s.now()
	build, err := s.rebuild(ctx, start)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.ObserveRebuild(elapsed, 0, err)
		s.logg.Error(s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds()), "graph rebuild failed", err)
		return nil, err
	}
	s.metrics.ObserveRebuild(elapsed, build.EntryCount, nil)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"build_id":    build.ID,
		"routes":      build.RouteCount,
		"edges":       build.EdgeCount,
		"sources":     build.SourceCount,
		"entries":     build.EntryCount,
		"duration_ms": build.DurationMS,
		"event":       "graph.rebuild",
	})
	s.logg.Info(logCtx, "graph cache rebuilt")
	return build, nil
}

func (s *service) rebuild(ctx context.Context, start time.Time) (*models.RouteGraphBuild, error) {
	g, err := s.BuildGraph(ctx)
	if err != nil {
		return nil, err
	}

	builtAt := start.UTC()
	paths := g.AllShortest()
	entries := make([]models.RouteGraphCacheEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, toCacheEntry(p, builtAt))
	}

	build := &models.RouteGraphBuild{
		BuiltAt:     builtAt,
		RouteCount:  g.RouteCount(),
		EdgeCount:   g.EdgeCount(),
		SourceCount: len(g.Sources()),
		EntryCount:  len(entries),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		build.DurationMS = s.now().Sub(start).Milliseconds()
		if err := s.repo.WithTx(tx).ReplaceCache(ctx, entries, build, s.batchSize); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGraphRebuilt,
			AggregateType: enums.AggregateRouteGraph,
			AggregateID:   build.ID,
			Data: payloads.GraphRebuiltEvent{
				BuildID:     build.ID,
				BuiltAt:     build.BuiltAt,
				SourceCount: build.SourceCount,
				EntryCount:  build.EntryCount,
				DurationMS:  build.DurationMS,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "swap route graph cache")
	}
	return build, nil
}

// RequestRebuild hands the rebuild to the queue worker when one is configured,
// otherwise runs it in a detached goroutine. Either way the caller returns
// before the rebuild finishes.
func (s *service) RequestRebuild(ctx context.Context, requestedBy string) (RebuildTicket, error) {
	if s.queue != nil {
		queued, err := s.queue.Enqueue(ctx, requestedBy)
		if err != nil {
			return RebuildTicket{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue graph rebuild")
		}
		return RebuildTicket{Mode: TicketModeQueue, Queued: queued}, nil
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.RebuildCache(detached); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.logg.Error(detached, "background graph rebuild failed", err)
		}
	}()
	return RebuildTicket{Mode: TicketModeBackground, Queued: true}, nil
}

// FindPath answers from the cache only; a miss means unreachable as of the
// last rebuild. It never triggers a rebuild.
func (s *service) FindPath(ctx context.Context, from, to int64) (*graph.Path, bool, error) {
	if from == to {
		s.metrics.IncLookup("trivial")
		p := graph.Trivial(from)
		return &p, true, nil
	}
	entry, err := s.repo.FindCacheEntry(ctx, from, to)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "route graph cache unavailable")
	}
	if entry == nil {
		s.metrics.IncLookup("miss")
		return nil, false, nil
	}
	s.metrics.IncLookup("hit")
	p := fromCacheEntry(*entry)
	return &p, true, nil
}

func (s *service) Status(ctx context.Context) (*Status, error) {
	build, err := s.repo.LatestBuild(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load graph build status")
	}
	count, err := s.repo.CountCacheEntries(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count graph cache entries")
	}
	return &Status{LastBuild: build, EntryCount: count, Rebuilding: s.rebuilding.Load()}, nil
}

func toCacheEntry(p graph.Path, builtAt time.Time) models.RouteGraphCacheEntry {
	hops := make([]models.PathHop, len(p.Hops))
	for i, hop := range p.Hops {
		hops[i] = models.PathHop(hop)
	}
	return models.RouteGraphCacheEntry{
		FromLocationID: p.From,
		ToLocationID:   p.To,
		HopCount:       p.HopCount(),
		Path:           hops,
		BuiltAt:        builtAt,
	}
}

func fromCacheEntry(entry models.RouteGraphCacheEntry) graph.Path {
	hops := make([]graph.Hop, len(entry.Path))
	for i, hop := range entry.Path {
		hops[i] = graph.Hop(hop)
	}
	return graph.Path{From: entry.FromLocationID, To: entry.ToLocationID, Hops: hops}
}
