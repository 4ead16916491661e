package worker

import (
	"context"
	"sync"

	"github.com/fadilmartias/cv-screening/internal/queue"
	"go.uber.org/zap"
)

// Processor handles one delivered job end to end. A nil return acknowledges
// the delivery; an error requests re-delivery.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// Pool runs a fixed number of workers, each looping dequeue → process →
// ack/nack. Workers share nothing beyond the queue, the job store and the
// breaker registry inside the processor.
type Pool struct {
	queue   queue.Queue
	proc    Processor
	workers int
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewPool(q queue.Queue, proc Processor, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:   q,
		proc:    proc,
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. Cancelling ctx stops them; a job already
// dequeued finishes its current attempt before the worker exits.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		jobID, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Debug("worker exiting", zap.Int("worker", id), zap.Error(err))
			return
		}

		if err := p.proc.Process(ctx, jobID); err != nil {
			p.logger.Warn("processing failed, re-delivering",
				zap.Int("worker", id),
				zap.String("job_id", jobID),
				zap.Error(err))
			p.queue.Nack(jobID)
			continue
		}
		p.queue.Ack(jobID)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}
