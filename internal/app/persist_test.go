package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPersisterRunsTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPersister(4, 3, time.Millisecond)
	go p.Run(ctx)

	var ran atomic.Int32
	p.Enqueue("noop", func(context.Context) error {
		ran.Add(1)
		return nil
	})

	waitFor(t, func() bool { return ran.Load() == 1 }, "task never ran")
}

func TestPersisterRetriesUntilSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPersister(4, 3, time.Millisecond)
	go p.Run(ctx)

	var attempts atomic.Int32
	p.Enqueue("flaky", func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	waitFor(t, func() bool { return attempts.Load() == 3 }, "task never recovered")
}

// Retries are bounded: after the limit the item is dead-lettered, not
// retried forever.
func TestPersisterDeadLettersAfterRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPersister(4, 3, time.Millisecond)
	go p.Run(ctx)

	var attempts atomic.Int32
	p.Enqueue("doomed", func(context.Context) error {
		attempts.Add(1)
		return errors.New("permanent")
	})

	waitFor(t, func() bool { return attempts.Load() == 3 }, "retries never exhausted")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load(), "dead-lettered task must not run again")
}

// Enqueue never blocks the event path, even with no worker draining.
func TestPersisterEnqueueNeverBlocks(t *testing.T) {
	p := NewPersister(2, 3, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			p.Enqueue("overflow", func(context.Context) error { return nil })
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
