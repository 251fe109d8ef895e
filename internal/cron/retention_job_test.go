package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

func TestRetentionJobPrunesOutboxAndBuilds(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	events := &fakeOutboxPruner{}
	builds := &fakeBuildPruner{}
	job := newRetentionJob(t, RetentionJobParams{Outbox: events, Builds: builds})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-defaultOutboxRetention)
	if !events.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, events.lastCutoff)
	}
	if events.minAttempts != defaultOutboxAttempts {
		t.Fatalf("expected min attempts %d, got %d", defaultOutboxAttempts, events.minAttempts)
	}
	if builds.keep != defaultKeepBuilds {
		t.Fatalf("expected keep %d, got %d", defaultKeepBuilds, builds.keep)
	}
}

func TestRetentionJobHonorsOverrides(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	events := &fakeOutboxPruner{}
	builds := &fakeBuildPruner{}
	job := newRetentionJob(t, RetentionJobParams{
		Outbox:        events,
		Builds:        builds,
		RetentionDays: 3,
		MinAttempts:   4,
		KeepBuilds:    5,
	})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !events.lastCutoff.Equal(now.Add(-72 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", events.lastCutoff)
	}
	if events.minAttempts != 4 || builds.keep != 5 {
		t.Fatalf("overrides ignored: attempts=%d keep=%d", events.minAttempts, builds.keep)
	}
}

func TestRetentionJobPrunesBuildsWhenOutboxFails(t *testing.T) {
	events := &fakeOutboxPruner{err: errors.New("boom")}
	builds := &fakeBuildPruner{err: errors.New("locked")}
	job := newRetentionJob(t, RetentionJobParams{Outbox: events, Builds: builds})

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if builds.called != 1 {
		t.Fatalf("expected build pruning to run, got %d calls", builds.called)
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", got, err)
	}
}

func TestRetentionJobWithoutBuilds(t *testing.T) {
	events := &fakeOutboxPruner{}
	job := newRetentionJob(t, RetentionJobParams{Outbox: events})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if events.called != 1 {
		t.Fatalf("expected outbox pruned once, got %d", events.called)
	}
}

func TestNewRetentionJobValidates(t *testing.T) {
	if _, err := NewRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}}); err == nil {
		t.Fatal("expected error without outbox repository")
	}
	if _, err := NewRetentionJob(RetentionJobParams{DB: passthroughTx{}, Outbox: &fakeOutboxPruner{}}); err == nil {
		t.Fatal("expected error without logger")
	}
}

func newRetentionJob(t *testing.T, params RetentionJobParams) *retentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	params.DB = passthroughTx{}
	jobIface, err := NewRetentionJob(params)
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	job, ok := jobIface.(*retentionJob)
	if !ok {
		t.Fatalf("expected retentionJob, got %T", jobIface)
	}
	return job
}

type fakeOutboxPruner struct {
	lastCutoff  time.Time
	minAttempts int
	called      int
	err         error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.minAttempts = minAttemptCount
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type fakeBuildPruner struct {
	keep   int
	called int
	err    error
}

func (f *fakeBuildPruner) PruneBuilds(ctx context.Context, keep int) (int64, error) {
	f.called++
	f.keep = keep
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
