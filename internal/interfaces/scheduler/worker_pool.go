package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	jobTracer          = otel.Tracer("finsync/scheduler")
	jobMeter           = otel.Meter("finsync/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
)

const jobTimeout = 2 * time.Minute

var (
	ErrQueueFull  = errors.New("job queue full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// WorkerPool runs jobs on a fixed number of goroutines fed by a bounded queue
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool.
// jobDelay is the pause a worker takes after each job; queueSize bounds pending jobs.
func NewWorkerPool(workerCount int, jobDelay time.Duration, queueSize int, logger zerolog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		jobDelay:    jobDelay,
		jobs:        make(chan Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info().Int("workers", wp.workerCount).Msg("Starting worker pool")

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	log := wp.logger.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-wp.ctx.Done():
			log.Debug().Msg("Worker shutting down")
			return

		case job, ok := <-wp.jobs:
			if !ok {
				log.Debug().Msg("Job channel closed")
				return
			}

			wp.processJob(id, job)

			if wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job Job) {
	log := wp.logger.With().Int("worker_id", workerID).Str("job_key", job.Key()).Logger()
	log.Debug().Str("job", job.Description()).Msg("Processing job")

	ctx, cancel := context.WithTimeout(wp.ctx, jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.String("job.key", job.Key()),
		),
	)
	defer span.End()

	start := time.Now()

	if err := job.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		jobDuration.Record(ctx, time.Since(start).Seconds())
		log.Warn().Err(err).Str("job", job.Description()).Msg("Job failed")
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	jobDuration.Record(ctx, time.Since(start).Seconds())
	log.Debug().Dur("duration", time.Since(start)).Msg("Job completed")
}

// Submit queues a job without blocking. A full queue drops the job and returns ErrQueueFull.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1)
		wp.logger.Warn().Str("job_key", job.Key()).Msg("Job queue full, dropping job")
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, job.Key())
	}
}

// SubmitBatch queues every job and returns how many were accepted
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	submitted := 0
	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			wp.logger.Warn().Err(err).Str("job_key", job.Key()).Msg("Failed to submit job")
			continue
		}
		submitted++
	}
	wp.logger.Debug().Int("submitted", submitted).Int("total", len(jobs)).Msg("Submitted jobs to worker pool")
	return submitted
}

func (wp *WorkerPool) close() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return false
	}
	wp.closed = true
	close(wp.jobs)
	return true
}

// Shutdown stops accepting jobs, drains the queue and waits for the workers
func (wp *WorkerPool) Shutdown() {
	if !wp.close() {
		return
	}
	wp.logger.Info().Msg("Worker pool: waiting for workers to finish")
	wp.wg.Wait()
	wp.cancel()
	wp.logger.Info().Msg("Worker pool: shutdown complete")
}

// ShutdownWithTimeout is Shutdown that cancels running jobs once timeout passes
func (wp *WorkerPool) ShutdownWithTimeout(timeout time.Duration) {
	if !wp.close() {
		return
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info().Msg("Worker pool: all workers finished")
	case <-time.After(timeout):
		wp.logger.Warn().Dur("timeout", timeout).Msg("Worker pool: timeout reached, cancelling jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()
}
