package sink

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
	"github.com/zsiec/udplog/internal/queue"
)

// Stats are the sink's cumulative counters.
type Stats struct {
	RecordsWritten uint64
	BytesWritten   uint64
}

// Sink is the only consumer of the outbound queue.
type Sink struct {
	in        queue.Consumer[types.FormattedRecord]
	w         Writer
	idleSleep time.Duration
	logger    logger.Logger

	stop atomic.Bool

	records atomic.Uint64
	bytes   atomic.Uint64
}

func New(in queue.Consumer[types.FormattedRecord], w Writer, idleSleep time.Duration, log logger.Logger) *Sink {
	return &Sink{
		in:        in,
		w:         w,
		idleSleep: idleSleep,
		logger:    logger.WithComponent(log, "sink"),
	}
}

// Run writes records until Stop is called, then drains what is already
// queued. A write failure ends Run with that error; nothing is retried.
func (s *Sink) Run() error {
	for !s.stop.Load() {
		rec, ok := s.in.TryPop()
		if !ok {
			s.idle()
			continue
		}
		if err := s.write(&rec); err != nil {
			return err
		}
	}

	drained := 0
	for {
		rec, ok := s.in.TryPop()
		if !ok {
			break
		}
		if err := s.write(&rec); err != nil {
			return err
		}
		drained++
	}
	if drained > 0 {
		s.logger.WithField("records", drained).Debug("Drained outbound queue")
	}
	return nil
}

func (s *Sink) write(rec *types.FormattedRecord) error {
	if err := s.w.Write(rec.Bytes()); err != nil {
		return err
	}
	s.records.Add(1)
	s.bytes.Add(uint64(rec.Len()))
	return nil
}

func (s *Sink) idle() {
	if s.idleSleep > 0 {
		time.Sleep(s.idleSleep)
		return
	}
	runtime.Gosched()
}

// Stop asks Run to drain and return.
func (s *Sink) Stop() {
	s.stop.Store(true)
}

func (s *Sink) Stats() Stats {
	return Stats{
		RecordsWritten: s.records.Load(),
		BytesWritten:   s.bytes.Load(),
	}
}
