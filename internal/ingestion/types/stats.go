package types

import "time"

// Stats is a point-in-time snapshot of pipeline counters. It is what the
// admin API, the metrics collector, the registry heartbeat and the console
// read; the stages themselves only touch atomic counters.
type Stats struct {
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`

	PacketsReceived    uint64 `json:"packets_received"`
	BytesReceived      uint64 `json:"bytes_received"`
	PacketsTruncated   uint64 `json:"packets_truncated"`
	PacketsRateLimited uint64 `json:"packets_rate_limited"`

	InboundDropped  uint64 `json:"inbound_dropped"`
	OutboundDropped uint64 `json:"outbound_dropped"`

	RecordsASCII  uint64 `json:"records_ascii"`
	RecordsUTF8   uint64 `json:"records_utf8"`
	RecordsBinary uint64 `json:"records_binary"`

	RecordsWritten uint64 `json:"records_written"`
	BytesWritten   uint64 `json:"bytes_written"`

	InboundDepth     int `json:"inbound_depth"`
	InboundCapacity  int `json:"inbound_capacity"`
	OutboundDepth    int `json:"outbound_depth"`
	OutboundCapacity int `json:"outbound_capacity"`
}

// RecordsFormatted is the total across content types.
func (s Stats) RecordsFormatted() uint64 {
	return s.RecordsASCII + s.RecordsUTF8 + s.RecordsBinary
}

// Dropped is the total across both queues.
func (s Stats) Dropped() uint64 {
	return s.InboundDropped + s.OutboundDropped
}

// Uptime is the time since the pipeline started, zero if it never did.
func (s Stats) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}
