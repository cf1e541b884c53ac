package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/zsiec/udplog/internal/ingestion/types"
)

// StatsSource is what PipelineChecker reads. *ingestion.Manager satisfies it.
type StatsSource interface {
	Stats() types.Stats
}

// PipelineChecker reports the ingestion pipeline. It is down once the
// pipeline stops or fails, and degraded when either queue dropped since the
// previous check.
type PipelineChecker struct {
	source StatsSource

	mu          sync.Mutex
	lastDropped uint64
	last        types.Stats
}

func NewPipelineChecker(source StatsSource) *PipelineChecker {
	return &PipelineChecker{source: source}
}

func (p *PipelineChecker) Name() string {
	return "pipeline"
}

func (p *PipelineChecker) Check(ctx context.Context) error {
	s := p.source.Stats()

	p.mu.Lock()
	prev := p.lastDropped
	p.lastDropped = s.Dropped()
	p.last = s
	p.mu.Unlock()

	switch s.State {
	case "running":
	case "failed", "stopped", "stopping":
		return fmt.Errorf("pipeline is %s", s.State)
	default:
		return fmt.Errorf("pipeline not started (state %s)", s.State)
	}

	if d := s.Dropped(); d > prev {
		return Degraded(fmt.Sprintf("%d packets dropped since last check", d-prev))
	}
	return nil
}

// Details returns the counters observed by the latest Check.
func (p *PipelineChecker) Details() map[string]interface{} {
	p.mu.Lock()
	s := p.last
	p.mu.Unlock()

	return map[string]interface{}{
		"state":             s.State,
		"packets_received":  s.PacketsReceived,
		"records_written":   s.RecordsWritten,
		"inbound_dropped":   s.InboundDropped,
		"outbound_dropped":  s.OutboundDropped,
		"packets_truncated": s.PacketsTruncated,
	}
}
