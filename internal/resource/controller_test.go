package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	assert.True(t, c.TryAcquireMemory(60))
	assert.False(t, c.TryAcquireMemory(50))
	assert.Equal(t, int64(60), c.MemoryUsage())

	c.ReleaseMemory(60)
	assert.True(t, c.TryAcquireMemory(100))
	assert.Equal(t, int64(100), c.MemoryUsage())
}

func TestControllerBackgroundSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 1})

	require.NoError(t, c.AcquireBackground(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireBackground(ctx), context.DeadlineExceeded)

	c.ReleaseBackground()
	require.NoError(t, c.AcquireBackground(context.Background()))
	c.ReleaseBackground()
}

func TestNilControllerIsUnlimited(t *testing.T) {
	var c *Controller

	assert.True(t, c.TryAcquireMemory(1<<40))
	c.ReleaseMemory(1 << 40)
	assert.Zero(t, c.MemoryUsage())
	require.NoError(t, c.AcquireBackground(context.Background()))
	c.ReleaseBackground()
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
}

type bytesAt struct{ r *bytes.Reader }

func (b bytesAt) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	return b.r.ReadAt(p, off)
}

func TestReadAll(t *testing.T) {
	data := bytes.Repeat([]byte("fi"), 1000)
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	got, err := c.ReadAll(context.Background(), bytesAt{bytes.NewReader(data)}, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestAcquireIOHonorsCancellation(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.AcquireIO(ctx, 100))
}
