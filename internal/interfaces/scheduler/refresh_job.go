package scheduler

import (
	"context"
	"fmt"

	"finsync/internal/domain/ledger"
	"finsync/internal/domain/offline"
)

// RefreshJob reloads one cached collection through the sync engine.
// Anything other than a fresh load counts as a failed job.
type RefreshJob struct {
	refresher ledger.Refresher
}

func NewRefreshJob(r ledger.Refresher) *RefreshJob {
	return &RefreshJob{refresher: r}
}

func (j *RefreshJob) Execute(ctx context.Context) error {
	status, err := j.refresher.Load(ctx)
	if status == offline.StatusFresh {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh %s: %s: %w", j.refresher.Key, status, err)
	}
	return fmt.Errorf("refresh %s: %s", j.refresher.Key, status)
}

func (j *RefreshJob) Key() string {
	return j.refresher.Key
}

func (j *RefreshJob) Description() string {
	return "Refresh " + j.refresher.Key
}

// RefreshJobs turns the service's refreshers into jobs
func RefreshJobs(svc *ledger.Service) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		refreshers := svc.Refreshers()
		jobs := make([]Job, 0, len(refreshers))
		for _, r := range refreshers {
			jobs = append(jobs, NewRefreshJob(r))
		}
		return jobs, nil
	}
}
