package queue

import (
	"context"
	"sync"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// Memory is a buffered in-process TaskQueue.
type Memory struct {
	tasks chan monitor.ReportTask

	mu     sync.Mutex
	closed bool
}

// NewMemory creates a Memory queue with the given capacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{tasks: make(chan monitor.ReportTask, capacity)}
}

// Enqueue adds a task, blocking while the buffer is full.
func (q *Memory) Enqueue(ctx context.Context, task monitor.ReportTask) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a task is available, the queue is closed and
// drained, or the context is cancelled.
func (q *Memory) Dequeue(ctx context.Context) (monitor.ReportTask, error) {
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return monitor.ReportTask{}, ErrClosed
		}
		return task, nil
	case <-ctx.Done():
		return monitor.ReportTask{}, ctx.Err()
	}
}

// Close stops the queue. Buffered tasks remain readable until drained.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.tasks)
	return nil
}
