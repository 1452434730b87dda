package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// work is a single worker loop.
func (s *Scheduler) work(ctx context.Context, id int) {
	logger := s.logger.With("worker", id)
	for {
		d, err := s.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			logger.Error("failed to dequeue task", "error", err)
			continue
		}
		s.execute(ctx, d)
	}
}

// execute runs one delivery. Handler failures are recorded on the task and
// acknowledged; they are not redelivered. A task whose type has no handler
// is returned to the queue for a process that has one.
func (s *Scheduler) execute(ctx context.Context, d *Delivery) {
	task := d.Task
	logger := s.logger.With("task_id", task.ID, "type", task.Type, "key", task.Key)

	h, ok := s.handler(task.Type)
	if !ok {
		logger.Warn("no handler for task type, returning to queue")
		if err := d.Nak(); err != nil {
			logger.Error("failed to nak task", "error", err)
		}
		return
	}

	// Tasks published by another process have no local record yet.
	s.manager.Create(ctx, task)
	_ = s.manager.UpdateStatus(ctx, task.ID, StatusRunning, "")
	logger.Info("task started")
	start := time.Now()

	stop := s.keepAlive(d, logger)
	err := s.safeRun(ctx, h, task)
	stop()
	duration := time.Since(start).Round(time.Millisecond)
	if err != nil {
		logger.Error("task failed", "error", err, "duration", duration)
		_ = s.manager.UpdateStatus(ctx, task.ID, StatusFailed, err.Error())
	} else {
		logger.Info("task completed", "duration", duration)
		_ = s.manager.UpdateStatus(ctx, task.ID, StatusCompleted, "")
	}

	if err := d.Ack(); err != nil {
		logger.Error("failed to ack task", "error", err)
	}
}

// keepAlive reports d in progress every heartbeat until the returned func is
// called, so long handlers are not redelivered to another worker.
func (s *Scheduler) keepAlive(d *Delivery, logger *slog.Logger) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := d.InProgress(); err != nil {
					logger.Warn("failed to report task in progress", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Scheduler) safeRun(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, task)
}
