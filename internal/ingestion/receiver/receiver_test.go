package receiver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/udplog/internal/config"
	"github.com/zsiec/udplog/internal/errors"
	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
	"github.com/zsiec/udplog/internal/queue"
)

func loopbackConfig() *config.ReceiverConfig {
	return &config.ReceiverConfig{
		Address:      "127.0.0.1",
		Port:         0,
		ReuseAddress: true,
	}
}

func startReceiver(t *testing.T, cfg *config.ReceiverConfig, capacity int) (*Receiver, *queue.Ring[types.ReceivedPacket], <-chan error) {
	t.Helper()

	ring, err := queue.NewRing[types.ReceivedPacket](capacity)
	require.NoError(t, err)

	r := New(cfg, ring, logger.NewNullLogger())
	require.NoError(t, r.Bind(context.Background()))
	assert.Equal(t, StateBound, r.State())

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		r.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return r, ring, done
}

func dial(t *testing.T, r *Receiver) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, r.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReceiver_ReceivesDatagrams(t *testing.T) {
	r, ring, _ := startReceiver(t, loopbackConfig(), 64)
	conn := dial(t, r)

	before := time.Now().Unix()
	_, err := conn.Write([]byte("hello"))
	require.NoError(t, err)

	var pkt types.ReceivedPacket
	require.Eventually(t, func() bool {
		var ok bool
		pkt, ok = ring.TryPop()
		return ok
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, "hello", string(pkt.Payload()))
	assert.Equal(t, "127.0.0.1", string(pkt.Addr()))
	assert.GreaterOrEqual(t, pkt.Timestamp, before)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.PacketsReceived)
	assert.Equal(t, uint64(5), stats.BytesReceived)
}

func TestReceiver_TruncatesOversizedDatagrams(t *testing.T) {
	r, ring, _ := startReceiver(t, loopbackConfig(), 64)
	conn := dial(t, r)

	payload := make([]byte, types.MaxPayloadSize+500)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err := conn.Write(payload)
	require.NoError(t, err)

	var pkt types.ReceivedPacket
	require.Eventually(t, func() bool {
		var ok bool
		pkt, ok = ring.TryPop()
		return ok
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, payload[:types.MaxPayloadSize], pkt.Payload())
	assert.Equal(t, uint64(1), r.Stats().PacketsTruncated)
	assert.Equal(t, uint64(len(payload)), r.Stats().BytesReceived)
}

func TestReceiver_DropsWhenQueueFull(t *testing.T) {
	r, ring, _ := startReceiver(t, loopbackConfig(), 2)
	conn := dial(t, r)

	for i := 0; i < 5; i++ {
		_, err := conn.Write([]byte{byte('a' + i)})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return ring.Dropped() == 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 2, ring.Len())
	assert.Equal(t, uint64(5), r.Stats().PacketsReceived)

	// The oldest packets survive.
	first, _ := ring.TryPop()
	assert.Equal(t, "a", string(first.Payload()))
}

func TestReceiver_RateCap(t *testing.T) {
	cfg := loopbackConfig()
	cfg.MaxPacketsPerSecond = 1

	r, ring, _ := startReceiver(t, cfg, 64)
	conn := dial(t, r)

	for i := 0; i < 5; i++ {
		_, err := conn.Write([]byte("x"))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return r.Stats().PacketsRateLimited == 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(5), r.Stats().PacketsReceived)
	assert.Equal(t, 1, ring.Len())
}

func TestReceiver_StopEndsRunCleanly(t *testing.T) {
	r, _, done := startReceiver(t, loopbackConfig(), 64)

	r.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateStopped, r.State())

	// Idempotent.
	r.Stop()
	assert.Equal(t, StateStopped, r.State())
}

func TestReceiver_ReadErrorIsFatal(t *testing.T) {
	ring, err := queue.NewRing[types.ReceivedPacket](4)
	require.NoError(t, err)

	r := New(loopbackConfig(), ring, logger.NewNullLogger())
	require.NoError(t, r.Bind(context.Background()))

	// A deadline in the past makes the next read fail without Stop.
	require.NoError(t, r.conn.SetReadDeadline(time.Now().Add(-time.Second)))

	err = r.Run()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.Equal(t, StateStopped, r.State())
}

func TestReceiver_StateTransitions(t *testing.T) {
	ring, err := queue.NewRing[types.ReceivedPacket](4)
	require.NoError(t, err)

	t.Run("run before bind", func(t *testing.T) {
		r := New(loopbackConfig(), ring, logger.NewNullLogger())
		assert.Equal(t, StateCreated, r.State())
		assert.ErrorIs(t, r.Run(), ErrNotBound)
		assert.Nil(t, r.LocalAddr())
	})

	t.Run("stop before run", func(t *testing.T) {
		r := New(loopbackConfig(), ring, logger.NewNullLogger())
		require.NoError(t, r.Bind(context.Background()))
		r.Stop()
		assert.Equal(t, StateStopped, r.State())
		assert.NoError(t, r.Run())
	})

	t.Run("stop before bind", func(t *testing.T) {
		r := New(loopbackConfig(), ring, logger.NewNullLogger())
		r.Stop()
		assert.Equal(t, StateStopped, r.State())
		assert.Error(t, r.Bind(context.Background()))
	})

	t.Run("double bind", func(t *testing.T) {
		r := New(loopbackConfig(), ring, logger.NewNullLogger())
		require.NoError(t, r.Bind(context.Background()))
		defer r.Stop()
		assert.Error(t, r.Bind(context.Background()))
	})
}

func TestReceiver_BindErrors(t *testing.T) {
	ring, err := queue.NewRing[types.ReceivedPacket](4)
	require.NoError(t, err)

	t.Run("invalid address", func(t *testing.T) {
		r := New(&config.ReceiverConfig{Address: "nope"}, ring, logger.NewNullLogger())
		err := r.Bind(context.Background())
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})

	t.Run("port in use without reuse", func(t *testing.T) {
		holder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		defer holder.Close()

		cfg := &config.ReceiverConfig{
			Address: "127.0.0.1",
			Port:    holder.LocalAddr().(*net.UDPAddr).Port,
		}
		r := New(cfg, ring, logger.NewNullLogger())
		err = r.Bind(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeResource))
		assert.Equal(t, StateCreated, r.State())
	})
}

func TestReceiver_Multicast(t *testing.T) {
	ring, err := queue.NewRing[types.ReceivedPacket](4)
	require.NoError(t, err)

	cfg := &config.ReceiverConfig{Address: "239.255.77.68", Port: 0, ReuseAddress: true}
	r := New(cfg, ring, logger.NewNullLogger())
	if err := r.Bind(context.Background()); err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer r.Stop()

	// The wildcard address is bound, not the group.
	assert.True(t, r.LocalAddr().(*net.UDPAddr).IP.IsUnspecified())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
