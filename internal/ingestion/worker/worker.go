// Package worker moves packets from the inbound queue through the formatter
// into the outbound queue.
package worker

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/zsiec/udplog/internal/ingestion/detect"
	"github.com/zsiec/udplog/internal/ingestion/format"
	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
	"github.com/zsiec/udplog/internal/queue"
)

// Stats counts formatted records per content type.
type Stats struct {
	ASCII  uint64
	UTF8   uint64
	Binary uint64
}

// Worker is the only consumer of the inbound queue and the only producer of
// the outbound queue.
type Worker struct {
	formatter format.Formatter
	in        queue.Consumer[types.ReceivedPacket]
	out       queue.Producer[types.FormattedRecord]
	idleSleep time.Duration
	sampled   *logger.SampledLogger

	stop atomic.Bool

	counts [3]atomic.Uint64 // indexed by detect.ContentType
}

// New creates a worker. An idleSleep of zero yields the processor instead of
// sleeping when the inbound queue is empty.
func New(f format.Formatter, in queue.Consumer[types.ReceivedPacket], out queue.Producer[types.FormattedRecord], idleSleep time.Duration, log logger.Logger) *Worker {
	return &Worker{
		formatter: f,
		in:        in,
		out:       out,
		idleSleep: idleSleep,
		sampled:   logger.NewPipelineLogger(logger.WithComponent(log, "worker")),
	}
}

// Run polls until Stop is called. At most one record is in flight.
func (w *Worker) Run() {
	var rec types.FormattedRecord

	for !w.stop.Load() {
		pkt, ok := w.in.TryPop()
		if !ok {
			w.idle()
			continue
		}

		ct := w.formatter.Format(&pkt, &rec)
		w.counts[ct].Add(1)

		if !w.out.Push(rec) {
			w.sampled.Warn(logger.CategoryOutboundDrop, "Outbound queue full, dropping record", map[string]interface{}{
				"queue": "outbound",
				"type":  ct.String(),
			})
		}
	}
}

func (w *Worker) idle() {
	if w.idleSleep > 0 {
		time.Sleep(w.idleSleep)
		return
	}
	runtime.Gosched()
}

// Stop asks Run to return after its current iteration.
func (w *Worker) Stop() {
	w.stop.Store(true)
}

func (w *Worker) Stats() Stats {
	return Stats{
		ASCII:  w.counts[detect.ContentTypeASCII].Load(),
		UTF8:   w.counts[detect.ContentTypeUTF8].Load(),
		Binary: w.counts[detect.ContentTypeBinary].Load(),
	}
}
