package ingestion

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/udplog/internal/config"
	"github.com/zsiec/udplog/internal/errors"
	"github.com/zsiec/udplog/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Receiver:  config.ReceiverConfig{Address: "127.0.0.1", Port: 0, ReuseAddress: true},
		Formatter: config.FormatterConfig{Filter: "*"},
		Output:    config.OutputConfig{Path: filepath.Join(t.TempDir(), "udplog.log")},
		Queues:    config.QueuesConfig{InboundCapacity: 64, OutboundCapacity: 64, IdleSleep: 50 * time.Microsecond},
	}
}

func startManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, logger.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m
}

func send(t *testing.T, m *Manager, payloads ...[]byte) {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, m.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	for _, p := range payloads {
		_, err := conn.Write(p)
		require.NoError(t, err)
		// Pace the sender so the small queues never overflow.
		time.Sleep(time.Millisecond)
	}
}

func TestManager_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	m := startManager(t, cfg)
	assert.Equal(t, StateRunning, m.State())

	send(t, m,
		[]byte("Here we have some ASCII encoded data"),
		[]byte("Тук имаме данни"),
		[]byte{0x18, 0x22, 0xf2, 0xfe, 0xff, 0x11, 0x23, 0x51},
	)

	require.Eventually(t, func() bool { return m.Stats().RecordsWritten == 3 }, 3*time.Second, 5*time.Millisecond)

	m.Stop()
	<-m.Done()
	assert.NoError(t, m.Err())
	assert.Equal(t, StateStopped, m.State())

	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	wantTypes := []string{"ascii", "utf8", "bin"}
	wantData := []string{"Here we have some ASCII encoded data", "Тук имаме данни", "1822f2feff112351"}
	for i, line := range lines {
		fields := strings.SplitN(line, ";", 8)
		require.Len(t, fields, 8)
		assert.Equal(t, "ts", fields[0])
		assert.Equal(t, "addr", fields[2])
		assert.Equal(t, "127.0.0.1", fields[3])
		assert.Equal(t, wantTypes[i], fields[5])
		assert.Equal(t, wantData[i], fields[7])
	}

	stats := m.Stats()
	assert.Equal(t, uint64(3), stats.PacketsReceived)
	assert.Equal(t, uint64(1), stats.RecordsASCII)
	assert.Equal(t, uint64(1), stats.RecordsUTF8)
	assert.Equal(t, uint64(1), stats.RecordsBinary)
	assert.Equal(t, uint64(len(data)), stats.BytesWritten)
	assert.Equal(t, 64, stats.InboundCapacity)
	assert.Equal(t, StateStopped, stats.State)
}

func TestManager_TruncatesOutputOnStart(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Output.Path, []byte("old run\n"), 0644))

	m := startManager(t, cfg)
	m.Stop()

	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestManager_StartErrors(t *testing.T) {
	t.Run("unwritable output", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Output.Path = filepath.Join(t.TempDir(), "missing", "out.log")

		m, err := NewManager(cfg, logger.NewNullLogger())
		require.NoError(t, err)

		err = m.Start(context.Background())
		require.Error(t, err)
		assert.Equal(t, 2, errors.ExitCode(err))
		assert.Equal(t, StateCreated, m.State())
	})

	t.Run("port in use", func(t *testing.T) {
		holder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		defer holder.Close()

		cfg := testConfig(t)
		cfg.Receiver.ReuseAddress = false
		cfg.Receiver.Port = holder.LocalAddr().(*net.UDPAddr).Port

		m, err := NewManager(cfg, logger.NewNullLogger())
		require.NoError(t, err)
		require.Error(t, m.Start(context.Background()))
	})

	t.Run("invalid queue capacity", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Queues.OutboundCapacity = 10

		_, err := NewManager(cfg, logger.NewNullLogger())
		require.Error(t, err)
		assert.Equal(t, 1, errors.ExitCode(err))
	})

	t.Run("double start", func(t *testing.T) {
		m := startManager(t, testConfig(t))
		assert.Error(t, m.Start(context.Background()))
	})
}

func TestManager_StopBeforeStart(t *testing.T) {
	m, err := NewManager(testConfig(t), logger.NewNullLogger())
	require.NoError(t, err)

	m.Stop()
	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.Equal(t, StateStopped, m.State())
	assert.Error(t, m.Start(context.Background()))

	// Second stop is a no-op.
	m.Stop()
}

func TestManager_StageFailureStopsPipeline(t *testing.T) {
	m := startManager(t, testConfig(t))

	// Forcing the receiver's read to fail without Stop simulates a socket
	// error.
	m.fail("receiver", errors.WrapIOError(assert.AnError, "UDP read failed"))

	select {
	case <-m.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop after a stage failure")
	}

	require.Error(t, m.Err())
	assert.True(t, errors.IsType(m.Err(), errors.ErrorTypeIO))
	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, 2, errors.ExitCode(m.Err()))
}

func TestManager_ConcurrentStop(t *testing.T) {
	m := startManager(t, testConfig(t))

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			m.Stop()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("Stop did not return")
		}
	}
	assert.Equal(t, StateStopped, m.State())
}
