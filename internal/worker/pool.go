package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/crosspost/internal/metrics"
	"github.com/kiranshivaraju/crosspost/internal/store"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

// Processor runs one claimed job to completion.
type Processor interface {
	Process(ctx context.Context, job *models.Job)
}

// Pool runs a fixed number of workers that claim pending jobs from the
// database and hand them to the processor. Claiming uses row locking, so
// multiple pools (or multiple replicas of the server) never double-process
// a job.
type Pool struct {
	store        store.Store
	processor    Processor
	count        int
	pollInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(st store.Store, processor Processor, count int, pollInterval time.Duration) *Pool {
	if count < 1 {
		count = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Pool{
		store:        st,
		processor:    processor,
		count:        count,
		pollInterval: pollInterval,
	}
}

// Start launches the workers. They run until Stop is called.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", p.count, "poll_interval", p.pollInterval)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, id)
		}
	}
}

// drain claims and processes jobs back to back until the queue is empty, so
// a burst of submissions is not throttled to one job per tick.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.store.ClaimNextJob(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		if err != nil {
			slog.Error("claiming job", "worker", id, "error", err)
			return
		}

		slog.Info("job claimed", "worker", id, "job_id", job.ID)
		metrics.ActiveWorkers.Inc()
		// A claimed job runs to completion even when Stop cancels the pool
		// context; Stop waits on the WaitGroup. Cancelling mid-job would
		// strand the row in processing, where no worker ever re-claims it.
		p.processor.Process(context.WithoutCancel(ctx), job)
		metrics.ActiveWorkers.Dec()
	}
}
