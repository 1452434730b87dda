package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/picturebook/internal/testutil"
)

func TestConnect(t *testing.T) {
	url := testutil.NATSServer(t)

	conn, err := Connect(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, conn.EnsureStream("TASKS", "tasks.>"))
	// Idempotent
	require.NoError(t, conn.EnsureStream("TASKS", "tasks.>"))

	info, err := conn.JS.StreamInfo("TASKS")
	require.NoError(t, err)
	require.Equal(t, []string{"tasks.>"}, info.Config.Subjects)

	obj, err := conn.ObjectStore("blobs")
	require.NoError(t, err)
	require.NotNil(t, obj)

	kv, err := conn.KeyValue("records")
	require.NoError(t, err)
	_, err = kv.Put("k", []byte("v"))
	require.NoError(t, err)

	again, err := conn.KeyValue("records")
	require.NoError(t, err)
	entry, err := again.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", string(entry.Value()))
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, "nats://127.0.0.1:1", nil)
	require.Error(t, err)
}
