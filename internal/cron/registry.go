package cron

import "context"

// Job is one unit of scheduled maintenance work, such as purging
// expired idempotency records.
type Job interface {
	// Name identifies the job in logs and metric labels.
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker runs each cycle, in registration
// order.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs. Nil entries are
// dropped so optional jobs can be passed unconditionally.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make([]Job, 0, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job. Nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
