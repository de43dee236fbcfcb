package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/lecternlabs/lectern/config"
	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/logging"
)

// maxJobRetries bounds requeues of a transiently failing job before it is
// dropped with an error log.
const maxJobRetries = 3

// Pool runs a fixed set of workers consuming the ingest queue. Each job is
// an independent pipeline run owning its lecture id.
type Pool struct {
	queue    JobQueue
	pipeline *Pipeline
	cfg      config.WorkerConfig
	metrics  *Metrics
	logger   logging.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a worker pool over the queue.
func NewPool(queue JobQueue, pl *Pipeline, cfg config.WorkerConfig, metrics *Metrics, logger logging.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	return &Pool{
		queue:    queue,
		pipeline: pl,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With(logging.F("component", "worker_pool")),
	}
}

// Start launches the workers. They run until Stop or context cancellation.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("workers started", logging.F("count", p.cfg.Count))
}

// Stop signals the workers and waits up to the shutdown timeout for
// in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timeout := p.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		p.logger.Info("workers drained")
	case <-time.After(timeout):
		p.logger.Warn("shutdown timeout reached with jobs still running")
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With(logging.F("worker", id))

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", logging.Err(err))
			select {
			case <-time.After(p.cfg.PollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			p.observeDepth(ctx)
			continue
		}

		p.handle(ctx, logger, job)
	}
}

func (p *Pool) handle(ctx context.Context, logger logging.Logger, job *Job) {
	logger.Info("job picked up",
		logging.F("job_id", job.ID),
		logging.F("lecture_id", job.LectureID),
		logging.F("queued_for", time.Since(job.EnqueuedAt).String()))

	_, err := p.pipeline.Run(ctx, job.Request())
	if err == nil {
		return
	}

	if lcerrors.IsRetryable(err) && job.Retries < maxJobRetries {
		job.Retries++
		logger.Warn("job failed transiently, requeueing",
			logging.Err(err),
			logging.F("job_id", job.ID),
			logging.F("retries", job.Retries))
		if enqErr := p.queue.Enqueue(ctx, job); enqErr != nil {
			logger.Error("requeue failed, job lost", logging.Err(enqErr), logging.F("job_id", job.ID))
		}
		return
	}

	logger.Error("job failed",
		logging.Err(err),
		logging.F("job_id", job.ID),
		logging.F("lecture_id", job.LectureID))
}

func (p *Pool) observeDepth(ctx context.Context) {
	depth, err := p.queue.Depth(ctx)
	if err != nil {
		return
	}
	p.metrics.QueueDepth.Set(float64(depth))
}
