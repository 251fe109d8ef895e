// Command dispatchctl runs dispatch engine operations by hand: graph
// rebuilds and path lookups, and run materialization and request binding
// for a given day.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/partsrunner-backend/internal/engine"
	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/db"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
	"github.com/angelmondragon/partsrunner-backend/pkg/redis"
	"github.com/angelmondragon/partsrunner-backend/pkg/types"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "dispatchctl", Format: "console"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "", "command: "+commandList())
	date := flag.String("date", "", "day to operate on (YYYY-MM-DD); defaults to today in the scheduler timezone")
	from := flag.Int64("from", 0, "origin location id (find-path)")
	to := flag.Int64("to", 0, "destination location id (find-path)")
	async := flag.Bool("async", false, "enqueue the rebuild for the worker instead of running it here (rebuild-graph)")
	withRedis := flag.Bool("redis", true, "connect to redis for the rebuild lock and queue")
	userID := flag.Int64("user", 0, "user id to issue the token for (mint-token)")
	role := flag.String("role", "dispatcher", "runner|dispatcher|admin (mint-token)")
	flag.Parse()

	cmdFn, err := lookup(*cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v (want %s)\n", err, commandList())
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "dispatchctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      "console",
		Output:      os.Stderr,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	args := commandArgs{
		Date:   *date,
		From:   *from,
		To:     *to,
		Async:  *async,
		UserID: *userID,
		Role:   *role,
	}
	svc := services{jwt: cfg.JWT, now: time.Now}
	if offline[*cmd] {
		runCommand(ctx, logg, cmdFn, svc, args)
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	var redisClient *redis.Client
	if *withRedis {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer redisClient.Close()
	}

	eng, err := engine.New(engine.Params{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Redis:  redisClient,
	})
	requireResource(ctx, logg, "dispatch engine", err)

	svc.graph = eng.Graph
	svc.scheduler = eng.Scheduler
	svc.today = func() types.Date { return types.Today(eng.Location) }
	runCommand(ctx, logg, cmdFn, svc, args)
}

func runCommand(ctx context.Context, logg *logger.Logger, cmdFn command, svc services, args commandArgs) {
	out, err := cmdFn(ctx, svc, args)
	if err != nil {
		logg.Error(ctx, "command failed", err)
		os.Exit(1)
	}
	if err := writeJSON(os.Stdout, out); err != nil {
		logg.Error(ctx, "write output", err)
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
