package cron

import (
	"context"
	"reflect"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA)
	registry.Register(jobB)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	// callers get a copy
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryIgnoresDuplicatesAndNil(t *testing.T) {
	first := &stubJob{name: "graph-rebuild"}
	registry := NewRegistry(first, nil, &stubJob{name: "graph-rebuild"}, &stubJob{name: "create-runs"})

	if got := registry.Names(); !reflect.DeepEqual(got, []string{"graph-rebuild", "create-runs"}) {
		t.Fatalf("unexpected names %v", got)
	}
	job, ok := registry.Find("graph-rebuild")
	if !ok || job != first {
		t.Fatalf("expected first registration to win")
	}
}
