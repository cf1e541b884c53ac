package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zsiec/udplog/internal/ingestion/types"
)

const namespace = "udplog"

// StatsSource supplies pipeline snapshots at scrape time.
type StatsSource interface {
	Stats() types.Stats
}

// PipelineCollector exports pipeline counters. It reads a snapshot on every
// scrape, so the pipeline itself never touches Prometheus types.
type PipelineCollector struct {
	source StatsSource

	packetsReceived    *prometheus.Desc
	bytesReceived      *prometheus.Desc
	packetsTruncated   *prometheus.Desc
	packetsRateLimited *prometheus.Desc
	queueDropped       *prometheus.Desc
	recordsFormatted   *prometheus.Desc
	recordsWritten     *prometheus.Desc
	bytesWritten       *prometheus.Desc
	queueDepth         *prometheus.Desc
	queueCapacity      *prometheus.Desc
	up                 *prometheus.Desc
}

func NewPipelineCollector(source StatsSource) *PipelineCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &PipelineCollector{
		source:             source,
		packetsReceived:    desc("packets_received_total", "Datagrams read from the socket."),
		bytesReceived:      desc("bytes_received_total", "Datagram bytes read from the socket, before truncation."),
		packetsTruncated:   desc("packets_truncated_total", "Datagrams cut to the payload limit."),
		packetsRateLimited: desc("packets_rate_limited_total", "Datagrams shed by the ingress rate cap."),
		queueDropped:       desc("queue_dropped_total", "Items dropped because a queue was full.", "queue"),
		recordsFormatted:   desc("records_formatted_total", "Records formatted, by content type.", "type"),
		recordsWritten:     desc("records_written_total", "Records written to the output file."),
		bytesWritten:       desc("bytes_written_total", "Bytes written to the output file."),
		queueDepth:         desc("queue_depth", "Items currently queued.", "queue"),
		queueCapacity:      desc("queue_capacity", "Queue slot count.", "queue"),
		up:                 desc("pipeline_up", "1 while the pipeline is running."),
	}
}

func (c *PipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsReceived
	ch <- c.bytesReceived
	ch <- c.packetsTruncated
	ch <- c.packetsRateLimited
	ch <- c.queueDropped
	ch <- c.recordsFormatted
	ch <- c.recordsWritten
	ch <- c.bytesWritten
	ch <- c.queueDepth
	ch <- c.queueCapacity
	ch <- c.up
}

func (c *PipelineCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.packetsReceived, s.PacketsReceived)
	counter(c.bytesReceived, s.BytesReceived)
	counter(c.packetsTruncated, s.PacketsTruncated)
	counter(c.packetsRateLimited, s.PacketsRateLimited)
	counter(c.queueDropped, s.InboundDropped, "inbound")
	counter(c.queueDropped, s.OutboundDropped, "outbound")
	counter(c.recordsFormatted, s.RecordsASCII, "ascii")
	counter(c.recordsFormatted, s.RecordsUTF8, "utf8")
	counter(c.recordsFormatted, s.RecordsBinary, "bin")
	counter(c.recordsWritten, s.RecordsWritten)
	counter(c.bytesWritten, s.BytesWritten)

	gauge(c.queueDepth, float64(s.InboundDepth), "inbound")
	gauge(c.queueDepth, float64(s.OutboundDepth), "outbound")
	gauge(c.queueCapacity, float64(s.InboundCapacity), "inbound")
	gauge(c.queueCapacity, float64(s.OutboundCapacity), "outbound")

	up := 0.0
	if s.State == "running" {
		up = 1
	}
	gauge(c.up, up)
}

// HTTPMetrics instruments the admin server.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the admin HTTP metrics on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin HTTP requests.",
		}, []string{"method", "path", "status"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Register adds the pipeline collector and the Go/process collectors to reg.
func Register(reg prometheus.Registerer, source StatsSource) error {
	for _, c := range []prometheus.Collector{
		NewPipelineCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
