package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type persistTask struct {
	desc string
	run  func(ctx context.Context) error
}

// Persister decouples the broadcast path from durable writes: handlers
// enqueue work and move on, a single worker drains the queue with bounded
// retries. Items that exhaust their retries are logged with a dead_letter
// marker so live/durable divergence is observable instead of silent.
type Persister struct {
	queue   chan persistTask
	retries int
	backoff time.Duration
}

func NewPersister(queueSize, retries int, backoff time.Duration) *Persister {
	if queueSize <= 0 {
		queueSize = 256
	}
	if retries <= 0 {
		retries = 3
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Persister{
		queue:   make(chan persistTask, queueSize),
		retries: retries,
		backoff: backoff,
	}
}

// Enqueue never blocks the caller. A full queue drops the item with an
// error log; the broadcast has already happened and must not wait.
func (p *Persister) Enqueue(desc string, run func(ctx context.Context) error) {
	select {
	case p.queue <- persistTask{desc: desc, run: run}:
	default:
		log.Error().Str("module", "app.persist").Str("task", desc).Bool("dead_letter", true).Msg("persist queue full, task dropped")
	}
}

// Run drains the queue until ctx is canceled.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.queue:
			p.attempt(ctx, task)
		}
	}
}

func (p *Persister) attempt(ctx context.Context, task persistTask) {
	var err error
	for i := 0; i < p.retries; i++ {
		if err = task.run(ctx); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.backoff * time.Duration(i+1)):
		}
	}
	log.Error().Err(err).Str("module", "app.persist").Str("task", task.desc).Bool("dead_letter", true).Msg("persist failed after retries")
}
