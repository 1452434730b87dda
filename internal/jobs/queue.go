package jobs

import (
	"context"
	"sync"
)

// Queue carries tasks from submitters to workers.
type Queue interface {
	// Name identifies the backend (memory, nats).
	Name() string

	// Enqueue adds a task.
	Enqueue(ctx context.Context, task *Task) error

	// Dequeue blocks until a task is available, ctx is done, or the queue closes.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Close stops the queue. Pending Dequeue calls return ErrQueueClosed.
	Close() error
}

// Delivery is a dequeued task. Exactly one of Ack or Nak should be called.
type Delivery struct {
	Task *Task

	ack      func() error
	nak      func() error
	progress func() error
}

// Ack marks the task as handled.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// InProgress tells the queue the task is still being worked on, resetting
// its redelivery timer.
func (d *Delivery) InProgress() error {
	if d.progress == nil {
		return nil
	}
	return d.progress()
}

// Nak asks the queue to redeliver the task.
func (d *Delivery) Nak() error {
	if d.nak == nil {
		return nil
	}
	return d.nak()
}

// MemoryQueue is a buffered channel queue for single-process deployments.
// Nak puts the task back at the end of the queue.
type MemoryQueue struct {
	tasks chan *Task

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewMemoryQueue creates a queue holding up to size tasks (default 1000).
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1000
	}
	return &MemoryQueue{
		tasks: make(chan *Task, size),
		done:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Name() string { return "memory" }

func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case task := <-q.tasks:
		return &Delivery{
			Task: task,
			nak: func() error {
				return q.Enqueue(context.Background(), task)
			},
		}, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// Len returns the number of waiting tasks.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}

var _ Queue = (*MemoryQueue)(nil)
