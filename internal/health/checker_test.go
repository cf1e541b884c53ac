package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/udplog/internal/logger"
)

type mockChecker struct {
	name  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) error {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestManager(t *testing.T) {
	log := logger.NewNullLogger()

	t.Run("Register and RunChecks", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&mockChecker{name: "checker1"})
		manager.Register(&mockChecker{name: "checker2", err: errors.New("checker2 failed")})
		manager.Register(&mockChecker{name: "checker3", err: Degraded("queue drops")})

		results := manager.RunChecks(context.Background())
		require.Len(t, results, 3)

		assert.Equal(t, StatusOK, results["checker1"].Status)
		assert.Empty(t, results["checker1"].Message)

		assert.Equal(t, StatusDown, results["checker2"].Status)
		assert.Contains(t, results["checker2"].Message, "checker2 failed")

		assert.Equal(t, StatusDegraded, results["checker3"].Status)
		assert.Equal(t, "queue drops", results["checker3"].Message)
	})

	t.Run("GetResults returns copies", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&mockChecker{name: "test"})
		manager.RunChecks(context.Background())

		results := manager.GetResults()
		require.Contains(t, results, "test")
		results["test"].Status = StatusDown

		assert.Equal(t, StatusOK, manager.GetResults()["test"].Status)
	})

	t.Run("GetOverallStatus", func(t *testing.T) {
		tests := []struct {
			name     string
			checkers []Checker
			want     Status
		}{
			{
				name:     "all healthy",
				checkers: []Checker{&mockChecker{name: "c1"}, &mockChecker{name: "c2"}},
				want:     StatusOK,
			},
			{
				name:     "one degraded",
				checkers: []Checker{&mockChecker{name: "c1"}, &mockChecker{name: "c2", err: Degraded("slow")}},
				want:     StatusDegraded,
			},
			{
				name: "down beats degraded",
				checkers: []Checker{
					&mockChecker{name: "c1", err: Degraded("slow")},
					&mockChecker{name: "c2", err: errors.New("error")},
				},
				want: StatusDown,
			},
			{
				name:     "no checkers",
				checkers: []Checker{},
				want:     StatusDown,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				manager := NewManager(log)
				for _, checker := range tt.checkers {
					manager.Register(checker)
				}
				manager.RunChecks(context.Background())
				assert.Equal(t, tt.want, manager.GetOverallStatus())
			})
		}
	})

	t.Run("Timeout handling", func(t *testing.T) {
		manager := NewManager(log)
		manager.SetTimeout(50 * time.Millisecond)
		manager.Register(&mockChecker{name: "slow-checker", delay: 10 * time.Second})

		start := time.Now()
		results := manager.RunChecks(context.Background())
		assert.Less(t, time.Since(start), 5*time.Second)

		check := results["slow-checker"]
		require.NotNil(t, check)
		assert.Equal(t, StatusDown, check.Status)
		assert.Contains(t, check.Message, "timed out")
	})

	t.Run("nil logger", func(t *testing.T) {
		manager := NewManager(nil)
		manager.Register(&mockChecker{name: "c"})
		assert.NotPanics(t, func() { manager.RunChecks(context.Background()) })
	})
}

func TestDegradedWrapped(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "wrapped", err: errors.Join(errors.New("context"), Degraded("inner"))})

	results := manager.RunChecks(context.Background())
	assert.Equal(t, StatusDegraded, results["wrapped"].Status)
	assert.Equal(t, "inner", results["wrapped"].Message)
}

func TestStartPeriodicChecks(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	checker := &mockChecker{name: "counter"}
	manager.Register(checker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.StartPeriodicChecks(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return checker.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic checks did not stop")
	}
}

func TestCheckDurationTracking(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "delayed", delay: 50 * time.Millisecond})

	results := manager.RunChecks(context.Background())

	check := results["delayed"]
	require.NotNil(t, check)
	assert.GreaterOrEqual(t, check.Duration, 50*time.Millisecond)
	assert.GreaterOrEqual(t, check.DurationMS, float64(50))
}
