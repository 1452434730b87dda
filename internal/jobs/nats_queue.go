package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jackzampolin/picturebook/internal/broker"
)

// Defaults for the JetStream queue.
const (
	DefaultStream   = "PICTUREBOOK_TASKS"
	DefaultSubject  = "picturebook.tasks"
	DefaultConsumer = "picturebook-workers"

	fetchMaxWait = 2 * time.Second
	ackWait      = 10 * time.Minute
)

// NATSQueueConfig configures a NATSQueue.
type NATSQueueConfig struct {
	Conn     *broker.Conn
	Stream   string
	Subject  string
	Consumer string // Durable pull consumer shared by all workers
	Logger   *slog.Logger
}

// NATSQueue is a JetStream work-queue stream consumed through a durable pull
// subscription, so tasks survive restarts and are shared between processes.
type NATSQueue struct {
	conn    *broker.Conn
	subject string
	sub     *nats.Subscription
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewNATSQueue ensures the stream exists and binds the pull consumer.
func NewNATSQueue(cfg NATSQueueConfig) (*NATSQueue, error) {
	if cfg.Conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Consumer == "" {
		cfg.Consumer = DefaultConsumer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := cfg.Conn.EnsureStream(cfg.Stream, cfg.Subject); err != nil {
		return nil, err
	}

	sub, err := cfg.Conn.JS.PullSubscribe(
		cfg.Subject,
		cfg.Consumer,
		nats.BindStream(cfg.Stream),
		nats.AckWait(ackWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pull subscribe to %s: %w", cfg.Subject, err)
	}

	cfg.Logger.Info("task queue consumer ready",
		"stream", cfg.Stream,
		"subject", cfg.Subject,
		"consumer", cfg.Consumer)

	return &NATSQueue{
		conn:    cfg.Conn,
		subject: cfg.Subject,
		sub:     sub,
		logger:  cfg.Logger,
	}, nil
}

func (q *NATSQueue) Name() string { return "nats" }

func (q *NATSQueue) Enqueue(ctx context.Context, task *Task) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if _, err := q.conn.JS.Publish(q.subject, data, nats.MsgId(task.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish task %s: %w", task.ID, err)
	}
	return nil
}

func (q *NATSQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if q.isClosed() {
			return nil, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgs, err := q.sub.Fetch(1, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil, ErrQueueClosed
			}
			q.logger.Error("failed to fetch task", "error", err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		var task Task
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			// Malformed payloads can never succeed; drop them.
			q.logger.Error("dropping malformed task", "error", err)
			if ackErr := msg.Term(); ackErr != nil {
				q.logger.Error("failed to terminate message", "error", ackErr)
			}
			continue
		}
		return &Delivery{
			Task: &task,
			ack:      func() error { return msg.Ack() },
			nak:      func() error { return msg.Nak() },
			progress: func() error { return msg.InProgress() },
		}, nil
	}
}

func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if err := q.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

func (q *NATSQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

var _ Queue = (*NATSQueue)(nil)
