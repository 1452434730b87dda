// Package broker wraps a NATS JetStream connection shared by the task queue,
// the object blob store and the key-value record store.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
)

const (
	connectTimeout   = 10 * time.Second
	maxReconnects    = 5
	connectAttempts  = 5
	connectBaseDelay = time.Second
)

// Conn is a NATS connection with its JetStream context.
type Conn struct {
	NC *nats.Conn
	JS nats.JetStreamContext
}

// Connect dials url, retrying the initial connection with backoff.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := retry.DoWithData(
		func() (*nats.Conn, error) {
			return nats.Connect(url,
				nats.Name("picturebook"),
				nats.Timeout(connectTimeout),
				nats.MaxReconnects(maxReconnects),
			)
		},
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectBaseDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("nats connect failed, retrying", "url", url, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get jetstream context: %w", err)
	}

	logger.Info("connected to nats", "url", url)
	return &Conn{NC: nc, JS: js}, nil
}

// EnsureStream creates a work-queue stream for subjects if it does not exist.
func (c *Conn) EnsureStream(name string, subjects ...string) error {
	_, err := c.JS.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", name, err)
	}
	_, err = c.JS.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

// ObjectStore binds to bucket, creating it if needed.
func (c *Conn) ObjectStore(bucket string) (nats.ObjectStore, error) {
	store, err := c.JS.ObjectStore(bucket)
	if err == nil {
		return store, nil
	}
	store, err = c.JS.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:  bucket,
		Storage: nats.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store %s: %w", bucket, err)
	}
	return store, nil
}

// KeyValue binds to bucket, creating it if needed.
func (c *Conn) KeyValue(bucket string) (nats.KeyValue, error) {
	kv, err := c.JS.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	kv, err = c.JS.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:  bucket,
		Storage: nats.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key-value bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Close drains and closes the connection.
func (c *Conn) Close() {
	if c == nil || c.NC == nil {
		return
	}
	if err := c.NC.Drain(); err != nil {
		c.NC.Close()
	}
}
