package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driveline/market-research-go/internal/cache"
	"github.com/driveline/market-research-go/internal/logging"
	"github.com/driveline/market-research-go/internal/research"
)

// ResearchWorker consumes queued research jobs and drives the orchestrator.
// It decouples research execution from whatever triggered it: the intake
// endpoint enqueues and returns immediately, the worker does the slow part.
type ResearchWorker struct {
	queue        *Queue
	orchestrator *research.Orchestrator
	cache        *cache.RedisValuationCache
	concurrency  int
	pollTimeout  time.Duration
	log          *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResearchWorker creates a worker pool over the queue. The cache may be
// nil; it is only an optimization for subsequent reads.
func NewResearchWorker(queue *Queue, orchestrator *research.Orchestrator, valuationCache *cache.RedisValuationCache, concurrency int, pollTimeout time.Duration) *ResearchWorker {
	ctx, cancel := context.WithCancel(context.Background())
	if concurrency < 1 {
		concurrency = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &ResearchWorker{
		queue:        queue,
		orchestrator: orchestrator,
		cache:        valuationCache,
		concurrency:  concurrency,
		pollTimeout:  pollTimeout,
		log:          logging.ForComponent("research_worker"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the worker goroutines.
func (w *ResearchWorker) Start() {
	w.log.WithField("concurrency", w.concurrency).Info("Starting research workers")
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
}

// Stop gracefully stops all workers, letting in-flight jobs finish their
// current iteration.
func (w *ResearchWorker) Stop() {
	w.log.Info("Stopping research workers")
	w.cancel()
	w.wg.Wait()
	w.log.Info("Research workers stopped")
}

func (w *ResearchWorker) run(id int) {
	defer w.wg.Done()
	log := w.log.WithField("worker", id)

	for {
		select {
		case <-w.ctx.Done():
			log.Info("Worker stopping due to context cancellation")
			return
		default:
		}

		job, err := w.queue.Dequeue(w.ctx, w.pollTimeout)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("Failed to dequeue job")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.process(log, job)
	}
}

// process runs one job through research and persistence, moving its state
// pending -> processing -> completed|failed.
func (w *ResearchWorker) process(log *logrus.Entry, job *ResearchJob) {
	log = log.WithFields(logrus.Fields{"job_id": job.ID, "subject_id": job.SubjectID})

	if err := w.queue.MarkStatus(w.ctx, job, JobStatusProcessing, nil); err != nil {
		log.WithError(err).Warn("Failed to mark job processing")
	}

	valuation, err := w.orchestrator.ResearchSubject(w.ctx, job.SubjectID, job.Query)
	if err != nil {
		log.WithError(err).Error("Research job failed")
		if markErr := w.queue.MarkStatus(w.ctx, job, JobStatusFailed, err); markErr != nil {
			log.WithError(markErr).Warn("Failed to mark job failed")
		}
		return
	}

	if w.cache != nil {
		w.cache.Set(w.ctx, job.SubjectID, valuation)
	}

	if err := w.queue.MarkStatus(w.ctx, job, JobStatusCompleted, nil); err != nil {
		log.WithError(err).Warn("Failed to mark job completed")
	}
	log.WithField("confidence", valuation.OverallConfidence).Info("Research job completed")
}
