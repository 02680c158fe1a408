package stream

import (
	"context"
	"io"
	"iter"
)

// deltaBuffer bounds how far the reader may run ahead of the consumer.
const deltaBuffer = 64

// Task is a running ingestion. Deltas must be drained or the task canceled;
// once the buffer is full the reader waits for the consumer.
type Task struct {
	deltas chan string
	done   chan struct{}
	cancel context.CancelFunc

	text string
	err  error
}

// Start begins ingesting src in the background.
func (in *Ingester) Start(ctx context.Context, src io.ReadCloser) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		deltas: make(chan string, deltaBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(t.done)
		defer close(t.deltas)
		defer cancel()

		t.text, t.err = in.Ingest(ctx, src, func(delta string) {
			select {
			case t.deltas <- delta:
			case <-ctx.Done():
			}
		})
	}()
	return t
}

// Deltas yields text fragments in arrival order and is closed when the task
// finishes.
func (t *Task) Deltas() <-chan string {
	return t.deltas
}

// All ranges over the remaining deltas. The sequence cannot be restarted.
func (t *Task) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for d := range t.deltas {
			if !yield(d) {
				return
			}
		}
	}
}

// Cancel stops the task. Wait then reports ErrCanceled unless the response
// had already completed.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed when the task has finished and released its source.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its result.
func (t *Task) Wait() (string, error) {
	<-t.done
	return t.text, t.err
}
