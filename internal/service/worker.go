package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sequentia/remindflow-backend/internal/queue"
)

// WorkerPool wires the delivery loop together: a dispatcher polls for due
// pending rows and publishes their IDs, and N consumers pull jobs off the
// queue and run delivery passes. Multiple pool processes can run against the
// same store; the claim CAS keeps them from colliding.
type WorkerPool struct {
	Delivery *DeliveryService
	Queue    queue.Queue
	Log      *zap.Logger

	Workers      int
	Limiter      *rate.Limiter
	PollInterval time.Duration
	PollBatch    int

	StaleAfter     time.Duration
	ReaperInterval time.Duration
}

func (p *WorkerPool) pollInterval() time.Duration {
	if p.PollInterval <= 0 {
		return 5 * time.Second
	}
	return p.PollInterval
}

// Run blocks until ctx is cancelled and all goroutines have drained.
func (p *WorkerPool) Run(ctx context.Context) {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs, err := p.Queue.Consume(ctx)
	if err != nil {
		p.Log.Error("failed to start consuming", zap.Error(err))
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.dispatch(ctx)
	}()

	if p.ReaperInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.reap(ctx)
		}()
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.Log.Info("delivery worker started", zap.Int("worker_id", id))
			for {
				select {
				case <-ctx.Done():
					p.Log.Info("delivery worker stopping", zap.Int("worker_id", id))
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					if p.Limiter != nil {
						if err := p.Limiter.Wait(ctx); err != nil {
							return
						}
					}
					if err := p.Delivery.Deliver(ctx, job.MessageID); err != nil {
						p.Log.Error("delivery pass failed",
							zap.Int64("message_id", job.MessageID),
							zap.Error(err),
						)
					}
					if job.Ack != nil {
						job.Ack()
					}
				}
			}
		}(i)
	}

	wg.Wait()
}

// dispatch publishes due pending rows into the queue. Rows that stay pending
// (a transient failure put them back) simply show up again on a later tick.
func (p *WorkerPool) dispatch(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := p.Delivery.Messages.ListDueIDs(ctx, time.Now(), p.PollBatch)
			if err != nil {
				p.Log.Error("failed to list due messages", zap.Error(err))
				continue
			}
			for _, id := range ids {
				if err := p.Queue.Publish(ctx, id); err != nil {
					p.Log.Error("failed to enqueue message", zap.Int64("message_id", id), zap.Error(err))
				}
			}
		}
	}
}

func (p *WorkerPool) reap(ctx context.Context) {
	staleAfter := p.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	ticker := time.NewTicker(p.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-staleAfter)
			if _, err := p.Delivery.ReapStale(ctx, cutoff, p.PollBatch); err != nil {
				p.Log.Error("reaper sweep failed", zap.Error(err))
			}
		}
	}
}
