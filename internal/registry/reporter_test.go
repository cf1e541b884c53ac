package registry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
)

type counterSource struct {
	n atomic.Uint64
}

func (c *counterSource) Stats() types.Stats {
	return types.Stats{State: "running", PacketsReceived: c.n.Add(1)}
}

func TestReporter_Lifecycle(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	src := &counterSource{}

	rep := NewReporter(registry, src, *testInstance("r1"), 10*time.Millisecond, logger.NewNullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rep.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		inst, err := registry.Get(context.Background(), "r1")
		return err == nil && inst.Stats.PacketsReceived >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("reporter did not stop")
	}

	assert.False(t, mr.Exists("udplog:instances:r1"), "reporter unregisters on exit")
}

func TestReporter_ReregistersAfterExpiry(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	rep := NewReporter(registry, &counterSource{}, *testInstance("r1"), time.Hour, nil)
	ctx := context.Background()

	rep.beat(ctx)
	require.True(t, rep.registered)

	mr.Del("udplog:instances:r1")
	rep.beat(ctx)
	assert.True(t, rep.registered)
	assert.True(t, mr.Exists("udplog:instances:r1"))
}

func TestReporter_RedisDown(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	mr.Close()

	rep := NewReporter(registry, &counterSource{}, *testInstance("r1"), time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotPanics(t, func() { rep.Run(ctx) })
	assert.False(t, rep.registered)
}
