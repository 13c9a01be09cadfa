package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "invoice-overdue-sweep"}
	jobB := &stubJob{name: "reseller-tier-refresh"}
	registry.Register(jobA)
	registry.Register(jobB)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	// ensure caller cannot mutate internal slice
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryIgnoresDuplicateNamesAndNil(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "sweep"}, nil, &stubJob{name: "sweep"}, &stubJob{name: "refresh"})
	names := registry.Names()
	if len(names) != 2 || names[0] != "sweep" || names[1] != "refresh" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryOnly(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "invoice-overdue-sweep"}, &stubJob{name: "reseller-tier-refresh"}, &stubJob{name: "scheduled-reports"})

	selected, err := registry.Only("scheduled-reports", " invoice-overdue-sweep ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names := selected.Names(); len(names) != 2 || names[0] != "scheduled-reports" || names[1] != "invoice-overdue-sweep" {
		t.Fatalf("unexpected selection: %v", names)
	}

	all, err := registry.Only()
	if err != nil || len(all.Jobs()) != 3 {
		t.Fatalf("expected empty selection to keep every job, got %v %v", all, err)
	}

	if _, err := registry.Only("reseller-tier-refersh"); err == nil {
		t.Fatalf("expected unknown job name to fail")
	}
}
