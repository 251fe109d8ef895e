package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held || f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	service := newTestService(t, lock, success, failure, after)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	for _, job := range []*testJob{success, failure, after} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "create-runs"}
	service := newTestService(t, &fakeLock{held: true}, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
}

func TestRunJobReturnsJobError(t *testing.T) {
	boom := errors.New("boom")
	target := &testJob{name: "process-scheduled-requests", err: boom}
	other := &testJob{name: "graph-rebuild"}
	service := newTestService(t, &fakeLock{}, other, target)

	if err := service.RunJob(context.Background(), "process-scheduled-requests"); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if other.runs != 0 {
		t.Fatalf("expected only the named job to run")
	}
	if err := service.RunJob(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown job error")
	}
}
