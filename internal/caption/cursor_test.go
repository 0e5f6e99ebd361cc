package caption

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemoryCursor(t *testing.T) {
	var c MemoryCursor
	for want := uint64(0); want < 4; want++ {
		got, err := c.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}
	ctx := context.Background()

	container, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisCursorSharedAcrossPools(t *testing.T) {
	addr := startRedis(t)

	cursorA, err := NewRedisCursor(RedisCursorConfig{Addr: addr, Key: "test:cursor"})
	require.NoError(t, err)
	defer cursorA.Close()

	cursorB, err := NewRedisCursor(RedisCursorConfig{Addr: addr, Key: "test:cursor"})
	require.NoError(t, err)
	defer cursorB.Close()

	backendA, backendB := &fakeBackend{}, &fakeBackend{}
	poolA := newTestPool(t, backendA, 3, WithCursor(cursorA))
	poolB := newTestPool(t, backendB, 3, WithCursor(cursorB))
	img := testImage(t)

	for i := 0; i < 2; i++ {
		_, err := poolA.Describe(context.Background(), img)
		require.NoError(t, err)
		_, err = poolB.Describe(context.Background(), img)
		require.NoError(t, err)
	}

	// the two processes interleave on one ring
	assert.Equal(t, []string{"key1", "key3"}, backendA.credsUsed())
	assert.Equal(t, []string{"key2", "key1"}, backendB.credsUsed())
}

func TestNewRedisCursorUnreachable(t *testing.T) {
	_, err := NewRedisCursor(RedisCursorConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
