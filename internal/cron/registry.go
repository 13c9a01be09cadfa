package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one ledger sweep run by the cron worker each cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the sweeps enabled for this worker, in run order.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry. A second job with the same name is
// ignored.
func (r *Registry) Register(job Job) {
	if job == nil || r.has(job.Name()) {
		return
	}
	r.jobs = append(r.jobs, job)
}

func (r *Registry) has(name string) bool {
	return r.lookup(name) != nil
}

func (r *Registry) lookup(name string) Job {
	for _, existing := range r.jobs {
		if existing.Name() == name {
			return existing
		}
	}
	return nil
}

// Only narrows the registry to the named jobs, keeping the order given.
// An unknown name is an error so a typo on the command line does not run nothing.
func (r *Registry) Only(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	selected := NewRegistry()
	var unknown []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		job := r.lookup(name)
		if job == nil {
			unknown = append(unknown, name)
			continue
		}
		selected.Register(job)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown cron job(s) %s; registered: %s", strings.Join(unknown, ", "), strings.Join(r.Names(), ", "))
	}
	return selected, nil
}

// Names lists the registered job names in run order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
