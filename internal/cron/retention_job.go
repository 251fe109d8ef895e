package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 14 * 24 * time.Hour
	defaultOutboxAttempts  = 10
	defaultKeepBuilds      = 30
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// outboxPruner matches outbox.Repository.
type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// buildPruner matches routegraph.Repository.
type buildPruner interface {
	PruneBuilds(ctx context.Context, keep int) (int64, error)
}

type RetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	// Builds is optional; without it rebuild history is left alone.
	Builds        buildPruner
	RetentionDays int
	MinAttempts   int
	KeepBuilds    int
}

// NewRetentionJob trims tables that only grow: delivered or parked outbox
// events past the retention window, and route graph rebuild history beyond
// the newest KeepBuilds rows.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &retentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		builds:      params.Builds,
		retention:   defaultOutboxRetention,
		minAttempts: defaultOutboxAttempts,
		keepBuilds:  defaultKeepBuilds,
		now:         time.Now,
	}
	if params.RetentionDays > 0 {
		job.retention = time.Duration(params.RetentionDays) * 24 * time.Hour
	}
	if params.MinAttempts > 0 {
		job.minAttempts = params.MinAttempts
	}
	if params.KeepBuilds > 0 {
		job.keepBuilds = params.KeepBuilds
	}
	return job, nil
}

type retentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	builds      buildPruner
	retention   time.Duration
	minAttempts int
	keepBuilds  int
	now         func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

// Run prunes both tables even when one of them fails.
func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	fields := map[string]any{"cutoff": cutoff, "min_attempts": j.minAttempts}

	var errs error
	var events int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		events, err = j.outbox.DeletePublishedBefore(tx, cutoff, j.minAttempts)
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune outbox: %w", err))
	} else {
		fields["events_deleted"] = events
	}

	if j.builds != nil {
		builds, err := j.builds.PruneBuilds(ctx, j.keepBuilds)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune graph builds: %w", err))
		} else {
			fields["builds_deleted"] = builds
			fields["builds_kept"] = j.keepBuilds
		}
	}

	if errs != nil {
		return errs
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "retention cleanup complete")
	return nil
}
