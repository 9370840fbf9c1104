package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// JobProvider lists the jobs of one run
type JobProvider func(ctx context.Context) ([]Job, error)

// Config holds scheduler settings
type Config struct {
	Interval     time.Duration
	WorkerCount  int
	JobDelay     time.Duration
	QueueSize    int
	RunOnStartup bool
	JobProvider  JobProvider
}

// Scheduler submits a batch of jobs every interval and whenever Trigger is called
type Scheduler struct {
	workerPool   *WorkerPool
	interval     time.Duration
	runOnStartup bool
	jobProvider  JobProvider
	logger       zerolog.Logger

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	lastRun time.Time
	runs    int
}

func NewScheduler(config Config, logger zerolog.Logger) (*Scheduler, error) {
	if config.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	if config.JobProvider == nil {
		return nil, errors.New("scheduler needs a job provider")
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	logger.Info().
		Dur("interval", config.Interval).
		Int("workers", config.WorkerCount).
		Dur("job_delay", config.JobDelay).
		Msg("Scheduler initialized")

	return &Scheduler{
		workerPool:   NewWorkerPool(config.WorkerCount, config.JobDelay, config.QueueSize, logger),
		interval:     config.Interval,
		runOnStartup: config.RunOnStartup,
		jobProvider:  config.JobProvider,
		logger:       logger,
		trigger:      make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start launches the worker pool and the scheduling loop
func (s *Scheduler) Start() {
	s.workerPool.Start()

	if s.runOnStartup {
		s.Trigger()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	s.logger.Info().Msg("Scheduler started")
}

// Trigger requests an out-of-band run. Triggers that arrive while one is
// already pending collapse into a single run.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runJobs("interval")
		case <-s.trigger:
			s.runJobs("trigger")
		}
	}
}

func (s *Scheduler) runJobs(reason string) {
	jobs, err := s.jobProvider(s.ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list jobs")
		return
	}

	submitted := s.workerPool.SubmitBatch(jobs)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.runs++
	s.mu.Unlock()

	s.logger.Info().Str("reason", reason).Int("jobs", submitted).Msg("Scheduled refresh")
}

// LastRun returns when jobs were last submitted and how many runs happened
func (s *Scheduler) LastRun() (time.Time, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.runs
}

// Stop ends the loop, then drains the worker pool for at most timeout
func (s *Scheduler) Stop(timeout time.Duration) {
	s.cancel()
	s.wg.Wait()
	s.workerPool.ShutdownWithTimeout(timeout)
	s.logger.Info().Msg("Scheduler stopped")
}
