package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultHeartbeat is how often a running task is reported in progress. It
// stays well inside the JetStream ack wait.
const DefaultHeartbeat = time.Minute

// Scheduler submits tasks to a queue and runs workers that execute them.
type Scheduler struct {
	mu        sync.RWMutex
	handlers  map[string]Handler // handlers by task type
	queue     Queue
	manager   *Manager
	workers   int
	heartbeat time.Duration
	logger    *slog.Logger

	running int // workers currently started
}

// SchedulerConfig configures a new scheduler.
type SchedulerConfig struct {
	Queue     Queue         // Defaults to an in-process MemoryQueue
	Manager   *Manager      // Defaults to a fresh Manager
	Workers   int           // Worker goroutines started by Run (default 2)
	Heartbeat time.Duration // In-progress interval for running tasks (default 1m)
	Logger    *slog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue := cfg.Queue
	if queue == nil {
		queue = NewMemoryQueue(0)
	}
	manager := cfg.Manager
	if manager == nil {
		manager = NewManager(logger)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	return &Scheduler{
		handlers:  make(map[string]Handler),
		queue:     queue,
		manager:   manager,
		workers:   workers,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// RegisterHandler sets the handler for a task type.
func (s *Scheduler) RegisterHandler(taskType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[taskType] = h
	s.logger.Debug("task handler registered", "type", taskType)
}

// Manager returns the record manager.
func (s *Scheduler) Manager() *Manager {
	return s.manager
}

// Submit records a task and enqueues it.
func (s *Scheduler) Submit(ctx context.Context, task *Task) (*Record, error) {
	s.mu.RLock()
	_, ok := s.handlers[task.Type]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for task type %q", task.Type)
	}

	rec := s.manager.Create(ctx, task)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		_ = s.manager.UpdateStatus(ctx, task.ID, StatusFailed, err.Error())
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("task submitted", "id", task.ID, "type", task.Type, "key", task.Key)
	return rec, nil
}

// Run starts the workers and blocks until ctx is cancelled or the queue closes.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = s.workers
	s.mu.Unlock()

	s.logger.Info("starting task workers", "count", s.workers, "queue", s.queue.Name())

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.work(ctx, id)
		}(i)
	}
	wg.Wait()

	s.mu.Lock()
	s.running = 0
	s.mu.Unlock()
	s.logger.Info("task workers stopped")
}

// Close closes the underlying queue.
func (s *Scheduler) Close() error {
	return s.queue.Close()
}

// SchedulerStatus reports queue and worker state.
type SchedulerStatus struct {
	Queue    string         `json:"queue"`
	Workers  int            `json:"workers"`
	Running  bool           `json:"running"`
	Handlers []string       `json:"handlers"`
	Tasks    map[Status]int `json:"tasks"`
}

// Status returns the current scheduler status.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handlers := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		handlers = append(handlers, name)
	}
	sort.Strings(handlers)

	return SchedulerStatus{
		Queue:    s.queue.Name(),
		Workers:  s.workers,
		Running:  s.running > 0,
		Handlers: handlers,
		Tasks:    s.manager.Counts(),
	}
}

func (s *Scheduler) handler(taskType string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[taskType]
	return h, ok
}
