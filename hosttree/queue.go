package hosttree

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned by Submit and Flush after Close.
var ErrQueueClosed = errors.New("export queue closed")

// retrier is implemented by sinks which keep failed operations, like the Applier.
type retrier interface {
	Retry() error
}

// Queue is a Sink which hands the operations to a writer goroutine, so the command loop
// does not wait for the host filesystem. Operations carry copies of the data, the writer
// never touches the volume.
type Queue struct {
	sink    Sink
	batches chan []Op
	flushes chan chan error

	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue in front of sink which buffers up to size batches.
// Run has to be started to process them.
func NewQueue(sink Sink, size int) *Queue {
	return &Queue{
		sink:    sink,
		batches: make(chan []Op, size),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
	}
}

// Submit queues the operations. It blocks while the buffer is full.
func (q *Queue) Submit(ops []Op) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.batches <- ops:
		return nil
	case <-q.done:
		return ErrQueueClosed
	}
}

// Run processes the queued batches until the context is canceled or Close is called.
// Everything queued until then is still applied.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return ctx.Err()
		case <-q.done:
			q.drain()
			return nil
		case ops := <-q.batches:
			q.apply(ops)
		case reply := <-q.flushes:
			reply <- q.drain()
		}
	}
}

// Flush waits until everything submitted before was applied and retries failed operations.
// It returns the errors of the operations which still fail.
func (q *Queue) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case q.flushes <- reply:
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run after it applied the remaining batches.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func (q *Queue) apply(ops []Op) error {
	err := q.sink.Submit(ops)
	if err != nil {
		log.Warnf("Export incomplete: %v", err)
	}
	return err
}

// drain applies all buffered batches.
func (q *Queue) drain() error {
	var err error
	for {
		select {
		case ops := <-q.batches:
			err = q.apply(ops)
		default:
			if r, ok := q.sink.(retrier); ok {
				return r.Retry()
			}
			return err
		}
	}
}
