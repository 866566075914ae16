package workerpool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTerminated is returned for work submitted to, or still pending in, a
// terminated pool.
var ErrTerminated = errors.New("worker pool terminated")

// JobError identifies the job a worker failed to complete.
type JobError struct {
	TaskID   uint64
	Type     string
	WorkerID int
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d (%s) failed on worker %d: %v", e.TaskID, e.Type, e.WorkerID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// WorkerError is one worker's failure to acknowledge a seed.
type WorkerError struct {
	WorkerID int
	Err      error
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.WorkerID, e.Err)
}

// SeedError aggregates every worker that failed to acknowledge SetSeed.
// Workers not listed were seeded successfully.
type SeedError struct {
	Failures []WorkerError
}

func (e *SeedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("seeding failed on %d worker(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes each worker failure to errors.Is / errors.As.
func (e *SeedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// ErrSeedTimeout is reported for a worker that did not acknowledge in time.
var ErrSeedTimeout = errors.New("seed acknowledgement timed out")

// ErrWorkerExited is reported for a worker that stopped before acknowledging.
var ErrWorkerExited = errors.New("worker exited")
