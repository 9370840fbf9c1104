package scheduler

import "context"

// Job is a unit of work run by the worker pool
type Job interface {
	// Execute runs the job. It must respect ctx cancellation.
	Execute(ctx context.Context) error

	// Key identifies the data the job touches, e.g. a cache key
	Key() string

	Description() string
}
