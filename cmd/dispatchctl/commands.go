package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/partsrunner-backend/internal/graph"
	"github.com/angelmondragon/partsrunner-backend/internal/routegraph"
	"github.com/angelmondragon/partsrunner-backend/internal/scheduler"
	"github.com/angelmondragon/partsrunner-backend/pkg/auth"
	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

type commandArgs struct {
	Date   string
	From   int64
	To     int64
	Async  bool
	UserID int64
	Role   string
}

// services is the slice of the engine the commands drive. graph and
// scheduler are nil for offline commands.
type services struct {
	graph     routegraph.Service
	scheduler scheduler.Service
	today     func() types.Date
	jwt       config.JWTConfig
	now       func() time.Time
}

type command func(ctx context.Context, svc services, args commandArgs) (any, error)

var commands = map[string]command{
	"rebuild-graph":    rebuildGraph,
	"graph":            showGraph,
	"find-path":        findPath,
	"create-runs":      createRuns,
	"process-requests": processRequests,
	"mint-token":       mintToken,
}

// offline commands run without a database or the engine.
var offline = map[string]bool{"mint-token": true}

func commandList() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func rebuildGraph(ctx context.Context, svc services, args commandArgs) (any, error) {
	if args.Async {
		return svc.graph.RequestRebuild(ctx, "dispatchctl")
	}
	return svc.graph.RebuildCache(ctx)
}

type graphSummary struct {
	RouteCount int             `json:"route_count"`
	EdgeCount  int             `json:"edge_count"`
	Locations  []int64         `json:"locations"`
	Sources    []int64         `json:"sources"`
	Adjacency  graph.Adjacency `json:"adjacency"`
}

func showGraph(ctx context.Context, svc services, _ commandArgs) (any, error) {
	g, err := svc.graph.BuildGraph(ctx)
	if err != nil {
		return nil, err
	}
	return graphSummary{
		RouteCount: g.RouteCount(),
		EdgeCount:  g.EdgeCount(),
		Locations:  g.Nodes(),
		Sources:    g.Sources(),
		Adjacency:  g.Adjacency(),
	}, nil
}

func findPath(ctx context.Context, svc services, args commandArgs) (any, error) {
	if args.From <= 0 || args.To <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "-from and -to are required")
	}
	path, found, err := svc.graph.FindPath(ctx, args.From, args.To)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]any{"from_location_id": args.From, "to_location_id": args.To, "found": false}, nil
	}
	return map[string]any{"found": true, "hop_count": path.HopCount(), "path": path}, nil
}

func createRuns(ctx context.Context, svc services, args commandArgs) (any, error) {
	date, err := resolveDate(args.Date, svc.today)
	if err != nil {
		return nil, err
	}
	created, err := svc.scheduler.CreateRunsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return map[string]any{"date": date, "created": created}, nil
}

func processRequests(ctx context.Context, svc services, args commandArgs) (any, error) {
	date, err := resolveDate(args.Date, svc.today)
	if err != nil {
		return nil, err
	}
	return svc.scheduler.ProcessScheduledRequests(ctx, date)
}

// mintToken issues a bearer token for calling the API as a runner or
// dispatcher in local environments.
func mintToken(_ context.Context, svc services, args commandArgs) (any, error) {
	role := enums.ActorRole(strings.ToLower(strings.TrimSpace(args.Role)))
	if !role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid -role %q", args.Role)
	}
	if args.UserID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "-user is required")
	}
	now := svc.now()
	token, err := auth.MintAccessToken(svc.jwt, now, auth.AccessTokenPayload{UserID: args.UserID, Role: role})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mint token")
	}
	return map[string]any{
		"user_id":      args.UserID,
		"role":         role,
		"access_token": token,
		"expires_at":   now.Add(time.Duration(svc.jwt.ExpirationMinutes) * time.Minute).UTC(),
	}, nil
}

func resolveDate(raw string, today func() types.Date) (types.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return today(), nil
	}
	date, err := types.ParseDate(raw)
	if err != nil {
		return types.Date{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid -date")
	}
	return date, nil
}

func lookup(name string) (command, error) {
	cmd, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	return cmd, nil
}
