// Package jobs runs background tasks from a queue.
//
// A task names a handler type and the key of the record it works on. The
// scheduler pulls tasks from a Queue, tracks each one as a Record, and hands
// it to the registered Handler on one of its workers.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueClosed is returned by queue operations after Close.
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueFull is returned when an in-process queue has no free slots.
	ErrQueueFull = errors.New("queue full")

	// ErrNotFound is returned for unknown task ids.
	ErrNotFound = errors.New("task not found")
)

// Task is a unit of queued work.
type Task struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Key     string    `json:"key"`      // id of the record the task works on
	OwnerID string    `json:"owner_id"` // scope for record lookups
	Created time.Time `json:"created"`
}

// NewTask creates a task with a fresh id.
func NewTask(taskType, key, ownerID string) *Task {
	return &Task{
		ID:      uuid.NewString(),
		Type:    taskType,
		Key:     key,
		OwnerID: ownerID,
		Created: time.Now().UTC(),
	}
}

// Handler executes a task. It should respect context cancellation.
type Handler func(ctx context.Context, task *Task) error

// Status represents the current state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record tracks a task through its lifecycle.
type Record struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Key         string     `json:"key"`
	OwnerID     string     `json:"owner_id"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewRecord creates a queued record for a task.
func NewRecord(task *Task) *Record {
	created := task.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &Record{
		ID:        task.ID,
		Type:      task.Type,
		Key:       task.Key,
		OwnerID:   task.OwnerID,
		Status:    StatusQueued,
		CreatedAt: created,
	}
}
