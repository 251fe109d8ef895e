package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/internal/graph"
	"github.com/angelmondragon/partsrunner-backend/internal/runs"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/metrics"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox"
	"github.com/angelmondragon/partsrunner-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

// Reasons reported for requests the scheduler could not bind.
const (
	ReasonSameLocation = "origin equals destination"
	ReasonNoPath       = "no path between locations"
	ReasonNoRun        = "no run covers request"
	ReasonNoSegmentRun = "no run covers segment"
	ReasonUnassigned   = "unassigned by dispatcher"
)

const (
	outcomeBound     = "bound"
	outcomeSplit     = "split"
	outcomeUnbound   = "unbound"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
	segmentRefFormat = "%s-S%d"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitAll(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

// pathFinder is the read side of the route graph service.
type pathFinder interface {
	FindPath(ctx context.Context, from, to int64) (*graph.Path, bool, error)
}

// Service materializes runs from schedules and binds requests to them.
type Service interface {
	CreateRunsForDate(ctx context.Context, date types.Date) (int, error)
	ProcessScheduledRequests(ctx context.Context, date types.Date) (*Report, error)
	AssignRequestToRun(ctx context.Context, input AssignInput) (*models.PartsRequest, error)
	UnassignRequest(ctx context.Context, requestID int64, actor runs.Actor) (*models.PartsRequest, error)
	ReassignToNextRun(ctx context.Context, requestID int64, actor runs.Actor) (*models.PartsRequest, error)
}

// Report summarizes one ProcessScheduledRequests pass.
type Report struct {
	Date      types.Date       `json:"date"`
	Processed int              `json:"processed"`
	Bound     int              `json:"bound"`
	Split     int              `json:"split"`
	Skipped   int              `json:"skipped"`
	Assigned  []Assignment     `json:"assigned"`
	Unbound   []UnboundRequest `json:"unbound"`
}

type Assignment struct {
	RequestID     int64  `json:"request_id"`
	RunID         int64  `json:"run_id"`
	PickupStopID  *int64 `json:"pickup_stop_id,omitempty"`
	DropoffStopID int64  `json:"dropoff_stop_id"`
	SegmentOrder  *int   `json:"segment_order,omitempty"`
}

// UnboundRequest is left for dispatch staff. SegmentOrder names the leg that
// had no run when a split failed.
type UnboundRequest struct {
	RequestID       int64  `json:"request_id"`
	ReferenceNumber string `json:"reference_number"`
	SegmentOrder    *int   `json:"segment_order,omitempty"`
	Reason          string `json:"reason"`
}

type AssignInput struct {
	RequestID     int64
	RunID         int64
	PickupStopID  *int64
	DropoffStopID int64
	Actor         runs.Actor
}

type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository Repository
	Runs       runs.Repository
	Graph      pathFinder
	Outbox     outboxEmitter
	Metrics    *metrics.DispatchMetrics
	Location   *time.Location
}

type service struct {
	logg    *logger.Logger
	db      txRunner
	repo    Repository
	runs    runs.Repository
	graph   pathFinder
	outbox  outboxEmitter
	metrics *metrics.DispatchMetrics
	loc     *time.Location
}

func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("scheduler repository required")
	}
	if params.Runs == nil {
		return nil, fmt.Errorf("runs repository required")
	}
	if params.Graph == nil {
		return nil, fmt.Errorf("route graph service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		logg:    params.Logger,
		db:      params.DB,
		repo:    params.Repository,
		runs:    params.Runs,
		graph:   params.Graph,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		loc:     loc,
	}, nil
}

// CreateRunsForDate ensures one pending run per active schedule that applies
// to date. Existing runs are left alone and not counted.
func (s *service) CreateRunsForDate(ctx context.Context, date types.Date) (int, error) {
	if date.IsZero() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "date required")
	}
	schedules, err := s.repo.ListActiveSchedules(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route schedules")
	}

	weekday := date.Weekday()
	created := 0
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, schedule := range schedules {
			if !schedule.RunsOn(weekday) {
				continue
			}
			scheduleID := schedule.ID
			run := &models.RunInstance{
				RouteID:         schedule.RouteID,
				RouteScheduleID: &scheduleID,
				ScheduledDate:   date,
				ScheduledTime:   schedule.ScheduledTime,
				Status:          enums.RunStatusPending,
			}
			inserted, err := repo.InsertRunIfAbsent(ctx, run)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert run instance")
			}
			if !inserted {
				continue
			}
			created++
			if err := s.outbox.Emit(ctx, tx, runs.RunCreatedEvent(run, nil)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.AddRunsCreated(created)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"date":      date.String(),
		"schedules": len(schedules),
		"created":   created,
		"event":     "scheduler.materialize",
	})
	s.logg.Info(logCtx, "runs materialized")
	return created, nil
}

// ProcessScheduledRequests binds every unbound request for date. A request is
// bound to one covering run when possible, otherwise split into one segment
// per route leg of its path, otherwise reported. Failures on one request do
// not stop the others; they are returned together.
func (s *service) ProcessScheduledRequests(ctx context.Context, date types.Date) (*Report, error) {
	if date.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date required")
	}
	requests, err := s.repo.ListUnboundRequests(ctx, date)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unbound requests")
	}
	plan, err := s.loadPlan(ctx, date)
	if err != nil {
		return nil, err
	}

	report := &Report{Date: date, Assigned: []Assignment{}, Unbound: []UnboundRequest{}}
	var errs error
	for _, req := range requests {
		report.Processed++
		outcome, err := s.processRequest(ctx, req, plan, report)
		if err != nil {
			outcome = outcomeError
			errs = multierr.Append(errs, fmt.Errorf("request %d: %w", req.ID, err))
			s.logg.Error(s.logg.WithRequestRef(ctx, req.ID), "request binding failed", err)
		}
		s.metrics.IncRequestOutcome(outcome)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"date":      date.String(),
		"processed": report.Processed,
		"bound":     report.Bound,
		"split":     report.Split,
		"skipped":   report.Skipped,
		"unbound":   len(report.Unbound),
		"event":     "scheduler.process_requests",
	})
	if len(report.Unbound) > 0 {
		s.logg.Warn(logCtx, "scheduled requests left unbound")
	} else {
		s.logg.Info(logCtx, "scheduled requests processed")
	}
	return report, errs
}

func (s *service) loadPlan(ctx context.Context, date types.Date) (dayPlan, error) {
	open, err := s.repo.ListOpenRunsForDate(ctx, date)
	if err != nil {
		return dayPlan{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load runs for date")
	}
	seen := map[int64]bool{}
	var routeIDs []int64
	for _, run := range open {
		if !seen[run.RouteID] {
			seen[run.RouteID] = true
			routeIDs = append(routeIDs, run.RouteID)
		}
	}
	routes, err := s.repo.ListRoutes(ctx, routeIDs)
	if err != nil {
		return dayPlan{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load routes for date")
	}
	byID := make(map[int64]models.Route, len(routes))
	for _, route := range routes {
		byID[route.ID] = route
	}
	return dayPlan{runs: open, routes: byID, loc: s.loc}, nil
}

func (s *service) processRequest(ctx context.Context, req models.PartsRequest, plan dayPlan, report *Report) (string, error) {
	if req.OriginLocationID == req.ReceivingLocationID {
		return outcomeUnbound, s.reportUnbound(ctx, req, nil, ReasonSameLocation, report)
	}
	path, found, err := s.graph.FindPath(ctx, req.OriginLocationID, req.ReceivingLocationID)
	if err != nil {
		return "", err
	}
	if !found {
		return outcomeUnbound, s.reportUnbound(ctx, req, nil, ReasonNoPath, report)
	}

	bound, err := s.bindSingle(ctx, req, plan.coveringRuns(req, *path), report)
	if err != nil || bound != "" {
		return bound, err
	}

	legs := path.Legs()
	if len(legs) < 2 {
		return outcomeUnbound, s.reportUnbound(ctx, req, nil, ReasonNoRun, report)
	}
	return s.split(ctx, req, legs, plan, report)
}

// bindSingle tries the candidates in order and binds the first available one.
// It returns "" when no candidate could take the request.
func (s *service) bindSingle(ctx context.Context, req models.PartsRequest, candidates []candidate, report *Report) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	outcome := ""
	var assigned Assignment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		runsRepo := s.runs.WithTx(tx)
		for _, c := range candidates {
			ok, err := runAvailable(ctx, runsRepo, c.run.ID, c.cov.PickupStopID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			bound, err := s.repo.WithTx(tx).BindRequest(ctx, req.ID, c.run.ID, c.cov.PickupStopID, c.cov.DropoffStopID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind request")
			}
			if !bound {
				outcome = outcomeSkipped
				return nil
			}
			assigned = Assignment{RequestID: req.ID, RunID: c.run.ID, PickupStopID: c.cov.PickupStopID, DropoffStopID: c.cov.DropoffStopID}
			outcome = outcomeBound
			return s.outbox.Emit(ctx, tx, requestAssignedEvent(req, assigned, nil, true))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	switch outcome {
	case outcomeBound:
		report.Bound++
		report.Assigned = append(report.Assigned, assigned)
	case outcomeSkipped:
		report.Skipped++
	}
	return outcome, nil
}

// split binds one segment per leg, each to a run departing no earlier than
// the previous leg's run. Either every leg gets a run or nothing is written.
func (s *service) split(ctx context.Context, req models.PartsRequest, legs []graph.Leg, plan dayPlan, report *Report) (string, error) {
	outcome := ""
	var missing *int
	var assigned []Assignment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		runsRepo := s.runs.WithTx(tx)
		repo := s.repo.WithTx(tx)

		chosen := make([]models.RunInstance, len(legs))
		var prev *models.RunInstance
		for i, leg := range legs {
			notBefore := req.NotBeforeDatetime
			if i > 0 {
				notBefore = nil
			}
			picked := false
			for _, c := range plan.legRuns(leg, prev, notBefore) {
				ok, err := runAvailable(ctx, runsRepo, c.run.ID, leg.PickupStopID)
				if err != nil {
					return err
				}
				if ok {
					chosen[i] = c.run
					prev = &chosen[i]
					picked = true
					break
				}
			}
			if !picked {
				order := i + 1
				missing = &order
				return nil
			}
		}

		claimed, err := repo.MarkMultiLeg(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark request multi-leg")
		}
		if !claimed {
			outcome = outcomeSkipped
			return nil
		}

		parentID := req.ID
		segments := make([]models.PartsRequest, len(legs))
		for i, leg := range legs {
			order := i + 1
			runID := chosen[i].ID
			dropoff := leg.DropoffStopID
			segments[i] = models.PartsRequest{
				ReferenceNumber:     fmt.Sprintf(segmentRefFormat, req.ReferenceNumber, order),
				OriginLocationID:    leg.FromLocationID,
				ReceivingLocationID: leg.ToLocationID,
				ScheduledForDate:    req.ScheduledForDate,
				RunInstanceID:       &runID,
				PickupStopID:        leg.PickupStopID,
				DropoffStopID:       &dropoff,
				ParentRequestID:     &parentID,
				SegmentOrder:        &order,
				IsSegment:           true,
			}
			if i == 0 {
				segments[i].NotBeforeDatetime = req.NotBeforeDatetime
			}
		}
		if err := repo.CreateSegments(ctx, segments); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create request segments")
		}

		events := make([]outbox.DomainEvent, 0, len(segments)+1)
		segmentIDs := make([]int64, len(segments))
		for i, seg := range segments {
			segmentIDs[i] = seg.ID
			a := Assignment{
				RequestID:     seg.ID,
				RunID:         *seg.RunInstanceID,
				PickupStopID:  seg.PickupStopID,
				DropoffStopID: *seg.DropoffStopID,
				SegmentOrder:  seg.SegmentOrder,
			}
			assigned = append(assigned, a)
			events = append(events, requestAssignedEvent(seg, a, &parentID, true))
		}
		events = append([]outbox.DomainEvent{{
			EventType:     enums.EventRequestSplit,
			AggregateType: enums.AggregatePartsRequest,
			AggregateID:   req.ID,
			Data:          payloads.RequestSplitEvent{RequestID: req.ID, SegmentIDs: segmentIDs},
		}}, events...)
		if err := s.outbox.EmitAll(ctx, tx, events...); err != nil {
			return err
		}
		outcome = outcomeSplit
		return nil
	})
	if err != nil {
		return "", err
	}

	switch {
	case missing != nil:
		return outcomeUnbound, s.reportUnbound(ctx, req, missing, ReasonNoSegmentRun, report)
	case outcome == outcomeSkipped:
		report.Skipped++
	case outcome == outcomeSplit:
		report.Split++
		report.Assigned = append(report.Assigned, assigned...)
	}
	return outcome, nil
}

// reportUnbound records the request in the report and emits request_unbound
// so the notification side can alert dispatch.
func (s *service) reportUnbound(ctx context.Context, req models.PartsRequest, segmentOrder *int, reason string, report *Report) error {
	report.Unbound = append(report.Unbound, UnboundRequest{
		RequestID:       req.ID,
		ReferenceNumber: req.ReferenceNumber,
		SegmentOrder:    segmentOrder,
		Reason:          reason,
	})
	logCtx := s.logg.WithFields(s.logg.WithRequestRef(ctx, req.ID), map[string]any{
		"reference_number": req.ReferenceNumber,
		"reason":           reason,
	})
	s.logg.Warn(logCtx, "request left unbound")
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRequestUnbound,
			AggregateType: enums.AggregatePartsRequest,
			AggregateID:   req.ID,
			Data:          payloads.RequestUnboundEvent{RequestID: req.ID, Reason: reason},
		})
	})
}

// AssignRequestToRun is the dispatcher override: it replaces any existing
// binding after checking the stops against the run's route and date.
func (s *service) AssignRequestToRun(ctx context.Context, input AssignInput) (*models.PartsRequest, error) {
	if !input.Actor.Role.CanDispatch() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dispatcher role required")
	}
	if input.DropoffStopID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dropoff stop required")
	}
	var out *models.PartsRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		runsRepo := s.runs.WithTx(tx)

		req, err := loadRequest(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}
		if req.IsMultiLeg {
			return pkgerrors.New(pkgerrors.CodeValidation, "request was split into segments")
		}
		run, err := loadRun(ctx, runsRepo, input.RunID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "run already %s", run.Status)
		}
		if req.ScheduledForDate != nil && *req.ScheduledForDate != run.ScheduledDate {
			return pkgerrors.New(pkgerrors.CodeValidation, "run date does not match request date")
		}

		dropoff, err := routeStop(ctx, runsRepo, input.DropoffStopID, run.RouteID, "dropoff stop not on run route")
		if err != nil {
			return err
		}
		if input.PickupStopID != nil {
			pickup, err := routeStop(ctx, runsRepo, *input.PickupStopID, run.RouteID, "pickup stop not on run route")
			if err != nil {
				return err
			}
			if pickup.StopOrder >= dropoff.StopOrder {
				return pkgerrors.New(pkgerrors.CodeValidation, "pickup must precede dropoff")
			}
		}
		ok, err := runAvailable(ctx, runsRepo, run.ID, input.PickupStopID)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run already passed pickup stop")
		}

		changed, err := repo.OverrideBinding(ctx, req.ID, run.ID, input.PickupStopID, dropoff.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign request")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request changed concurrently")
		}
		a := Assignment{RequestID: req.ID, RunID: run.ID, PickupStopID: input.PickupStopID, DropoffStopID: dropoff.ID}
		event := requestAssignedEvent(*req, a, req.ParentRequestID, false)
		event.Actor = actorRef(input.Actor)
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		out, err = loadRequest(ctx, repo, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithRunID(s.logg.WithRequestRef(ctx, out.ID), input.RunID), "request assigned manually")
	return out, nil
}

func (s *service) UnassignRequest(ctx context.Context, requestID int64, actor runs.Actor) (*models.PartsRequest, error) {
	if !actor.Role.CanDispatch() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dispatcher role required")
	}
	var out *models.PartsRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := loadRequest(ctx, repo, requestID)
		if err != nil {
			return err
		}
		if req.RunInstanceID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request not assigned")
		}
		previous := *req.RunInstanceID
		changed, err := repo.UnbindRequest(ctx, req.ID, previous)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unassign request")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request changed concurrently")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRequestUnbound,
			AggregateType: enums.AggregatePartsRequest,
			AggregateID:   req.ID,
			Actor:         actorRef(actor),
			Data: payloads.RequestUnboundEvent{
				RequestID:     req.ID,
				PreviousRunID: &previous,
				Reason:        ReasonUnassigned,
			},
		}); err != nil {
			return err
		}
		out, err = loadRequest(ctx, repo, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReassignToNextRun moves a bound request to the next open run of the same
// route on the same date that has not passed its pickup. Stop ids carry over
// because the route is unchanged.
func (s *service) ReassignToNextRun(ctx context.Context, requestID int64, actor runs.Actor) (*models.PartsRequest, error) {
	if !actor.Role.CanDispatch() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dispatcher role required")
	}
	req, err := loadRequest(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}
	if req.RunInstanceID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "request not assigned")
	}
	current, err := loadRun(ctx, s.runs, *req.RunInstanceID)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.ListOpenRunsForDate(ctx, current.ScheduledDate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load runs for date")
	}

	var out *models.PartsRequest
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		runsRepo := s.runs.WithTx(tx)
		for _, next := range open {
			if next.RouteID != current.RouteID || next.ID == current.ID || !runLess(*current, next) {
				continue
			}
			ok, err := runAvailable(ctx, runsRepo, next.ID, req.PickupStopID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			moved, err := repo.MoveRequest(ctx, req.ID, current.ID, next.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign request")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "request changed concurrently")
			}
			dropoff := int64(0)
			if req.DropoffStopID != nil {
				dropoff = *req.DropoffStopID
			}
			a := Assignment{RequestID: req.ID, RunID: next.ID, PickupStopID: req.PickupStopID, DropoffStopID: dropoff, SegmentOrder: req.SegmentOrder}
			event := requestAssignedEvent(*req, a, req.ParentRequestID, false)
			event.Actor = actorRef(actor)
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
			out, err = loadRequest(ctx, repo, req.ID)
			return err
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "no later run available")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// runAvailable reports whether the run can still take a pickup at stopID. A
// nil stop is the route start, which an in-progress run has already left.
func runAvailable(ctx context.Context, repo runs.Repository, runID int64, pickupStopID *int64) (bool, error) {
	run, err := loadRun(ctx, repo, runID)
	if err != nil {
		return false, err
	}
	switch run.Status {
	case enums.RunStatusPending:
		return true, nil
	case enums.RunStatusInProgress:
		if pickupStopID == nil {
			return false, nil
		}
		passed, err := runs.HasPassedStop(ctx, repo, run, *pickupStopID)
		if err != nil {
			return false, err
		}
		return !passed, nil
	default:
		return false, nil
	}
}

func routeStop(ctx context.Context, repo runs.Repository, stopID, routeID int64, reason string) (*models.RouteStop, error) {
	stop, err := repo.FindRouteStop(ctx, stopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, reason)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route stop")
	}
	if stop.RouteID != routeID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, reason)
	}
	return stop, nil
}

func loadRequest(ctx context.Context, repo Repository, requestID int64) (*models.PartsRequest, error) {
	req, err := repo.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request")
	}
	return req, nil
}

func loadRun(ctx context.Context, repo runs.Repository, runID int64) (*models.RunInstance, error) {
	run, err := repo.FindRun(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "run not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load run")
	}
	return run, nil
}

func requestAssignedEvent(req models.PartsRequest, a Assignment, parentID *int64, automatic bool) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventRequestAssigned,
		AggregateType: enums.AggregatePartsRequest,
		AggregateID:   req.ID,
		Data: payloads.RequestAssignedEvent{
			RequestID:       req.ID,
			RunID:           a.RunID,
			PickupStopID:    a.PickupStopID,
			DropoffStopID:   a.DropoffStopID,
			ParentRequestID: parentID,
			SegmentOrder:    a.SegmentOrder,
			Automatic:       automatic,
		},
	}
}

func actorRef(actor runs.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
}
