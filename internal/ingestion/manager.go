// Package ingestion owns the packet pipeline: receiver, format worker and
// sink joined by two bounded queues.
package ingestion

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/zsiec/udplog/internal/config"
	"github.com/zsiec/udplog/internal/errors"
	"github.com/zsiec/udplog/internal/ingestion/format"
	"github.com/zsiec/udplog/internal/ingestion/receiver"
	"github.com/zsiec/udplog/internal/ingestion/sink"
	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/ingestion/worker"
	"github.com/zsiec/udplog/internal/logger"
	"github.com/zsiec/udplog/internal/queue"
)

// Pipeline states reported by Manager.State.
const (
	StateCreated  = "created"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateStopped  = "stopped"
	StateFailed   = "failed"
)

// Manager builds the pipeline, lends its queues and formatter to the stages
// and shuts them down in order: receiver, worker, sink, then the output file.
// A fatal error in any stage triggers the same shutdown.
type Manager struct {
	cfg    *config.Config
	base   logger.Logger
	logger logger.Logger

	inbound   *queue.Ring[types.ReceivedPacket]
	outbound  *queue.Ring[types.FormattedRecord]
	formatter *format.BasicFormatter

	receiver *receiver.Receiver
	worker   *worker.Worker
	sink     *sink.Sink
	writer   *sink.FileWriter

	mu        sync.RWMutex
	state     string
	startedAt time.Time
	err       error

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	receiverDone chan struct{}
	workerDone   chan struct{}
	sinkDone     chan struct{}
}

// NewManager creates the queues, formatter and receiver. Nothing is bound or
// opened until Start.
func NewManager(cfg *config.Config, log logger.Logger) (*Manager, error) {
	inbound, err := queue.NewRing[types.ReceivedPacket](cfg.Queues.InboundCapacity)
	if err != nil {
		return nil, errors.WrapConfigError(err, "invalid inbound queue")
	}
	outbound, err := queue.NewRing[types.FormattedRecord](cfg.Queues.OutboundCapacity)
	if err != nil {
		return nil, errors.WrapConfigError(err, "invalid outbound queue")
	}

	m := &Manager{
		cfg:          cfg,
		base:         log,
		logger:       logger.WithComponent(log, "pipeline"),
		inbound:      inbound,
		outbound:     outbound,
		formatter:    format.NewBasicFormatter(cfg.Formatter.Filter),
		state:        StateCreated,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		receiverDone: make(chan struct{}),
		workerDone:   make(chan struct{}),
		sinkDone:     make(chan struct{}),
	}
	m.receiver = receiver.New(&cfg.Receiver, inbound, log)
	m.worker = worker.New(m.formatter, inbound, outbound, cfg.Queues.IdleSleep, log)

	return m, nil
}

// Start opens the output file, binds the socket and launches the three
// stages. Errors here happen before any goroutine runs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateCreated {
		return errors.NewInternalError("pipeline already started")
	}

	w, err := sink.OpenFile(m.cfg.Output.Path)
	if err != nil {
		return err
	}

	if err := m.receiver.Bind(ctx); err != nil {
		w.Close()
		return err
	}

	m.writer = w
	m.sink = sink.New(m.outbound, w, m.cfg.Queues.IdleSleep, m.base)
	m.state = StateRunning
	m.startedAt = time.Now()

	go m.runReceiver()
	go m.runWorker()
	go m.runSink()
	go m.supervise()

	m.logger.WithFields(map[string]interface{}{
		"listen": m.receiver.LocalAddr().String(),
		"filter": m.formatter.Filter(),
		"output": w.Path(),
	}).Info("Pipeline started")

	return nil
}

func (m *Manager) runReceiver() {
	defer close(m.receiverDone)
	if err := m.receiver.Run(); err != nil {
		m.fail("receiver", err)
	}
}

func (m *Manager) runWorker() {
	defer close(m.workerDone)
	m.worker.Run()
}

func (m *Manager) runSink() {
	defer close(m.sinkDone)
	if err := m.sink.Run(); err != nil {
		m.fail("sink", err)
	}
}

// fail records the first fatal error and starts the shutdown.
func (m *Manager) fail(stage string, err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()

	m.logger.WithError(err).WithField("stage", stage).Error("Pipeline stage failed")
	m.triggerQuit()
}

func (m *Manager) triggerQuit() {
	m.quitOnce.Do(func() { close(m.quit) })
}

func (m *Manager) supervise() {
	<-m.quit

	m.setState(StateStopping)
	m.logger.Info("Stopping pipeline")

	m.receiver.Stop()
	<-m.receiverDone

	m.worker.Stop()
	<-m.workerDone

	m.sink.Stop()
	<-m.sinkDone

	if err := m.writer.Close(); err != nil {
		m.fail("sink", err)
	}

	m.mu.Lock()
	if m.err != nil {
		m.state = StateFailed
	} else {
		m.state = StateStopped
	}
	m.mu.Unlock()

	stats := m.Stats()
	m.logger.WithFields(map[string]interface{}{
		"packets_received": stats.PacketsReceived,
		"records_written":  stats.RecordsWritten,
		"dropped":          stats.Dropped(),
	}).Info("Pipeline stopped")

	close(m.done)
}

// Stop shuts the pipeline down and waits for it. It is safe to call from
// several goroutines and after a stage failure.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state == StateCreated {
		m.state = StateStopped
		m.mu.Unlock()
		m.quitOnce.Do(func() {
			close(m.quit)
			close(m.done)
		})
		return
	}
	m.mu.Unlock()

	m.triggerQuit()
	<-m.done
}

// Done is closed once every stage has returned and the file is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the first fatal stage error, if any.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *Manager) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s string) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// LocalAddr is the bound receiver address, nil before Start.
func (m *Manager) LocalAddr() net.Addr {
	return m.receiver.LocalAddr()
}

func (m *Manager) OutputPath() string {
	return m.cfg.Output.Path
}

// Stats assembles a snapshot from the stage counters and queue depths.
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	state, startedAt, sk := m.state, m.startedAt, m.sink
	m.mu.RUnlock()

	rs := m.receiver.Stats()
	ws := m.worker.Stats()

	s := types.Stats{
		State:              state,
		StartedAt:          startedAt,
		PacketsReceived:    rs.PacketsReceived,
		BytesReceived:      rs.BytesReceived,
		PacketsTruncated:   rs.PacketsTruncated,
		PacketsRateLimited: rs.PacketsRateLimited,
		InboundDropped:     m.inbound.Dropped(),
		OutboundDropped:    m.outbound.Dropped(),
		RecordsASCII:       ws.ASCII,
		RecordsUTF8:        ws.UTF8,
		RecordsBinary:      ws.Binary,
		InboundDepth:       m.inbound.Len(),
		InboundCapacity:    m.inbound.Cap(),
		OutboundDepth:      m.outbound.Len(),
		OutboundCapacity:   m.outbound.Cap(),
	}
	if sk != nil {
		ss := sk.Stats()
		s.RecordsWritten = ss.RecordsWritten
		s.BytesWritten = ss.BytesWritten
	}
	return s
}
