package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Hot-path event categories. Each fires once per packet in the worst case.
const (
	CategoryInboundDrop  = "inbound_drop"
	CategoryOutboundDrop = "outbound_drop"
	CategoryTruncation   = "truncation"
	CategoryRateLimit    = "rate_limit"
)

// SampledLogger caps how often a category may emit. Suppressed events are
// counted and reported on the next line that gets through.
type SampledLogger struct {
	base Logger

	mu         sync.RWMutex
	categories map[string]*sampler
}

type sampler struct {
	limiter    *rate.Limiter
	seen       atomic.Uint64
	logged     atomic.Uint64
	suppressed atomic.Uint64 // since the last emitted line
}

// SamplerStats holds counters for one category.
type SamplerStats struct {
	Name       string `json:"name"`
	Seen       uint64 `json:"seen"`
	Logged     uint64 `json:"logged"`
	Suppressed uint64 `json:"suppressed"`
}

func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		base:       base,
		categories: make(map[string]*sampler),
	}
}

// WithCategory allows one line per interval for the category after an
// initial burst.
func (s *SampledLogger) WithCategory(name string, interval time.Duration, burst int) *SampledLogger {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.categories[name] = &sampler{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
	return s
}

// NewPipelineLogger returns a sampled logger with the packet pipeline
// categories configured.
func NewPipelineLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		WithCategory(CategoryInboundDrop, time.Second, 5).
		WithCategory(CategoryOutboundDrop, time.Second, 5).
		WithCategory(CategoryTruncation, time.Second, 3).
		WithCategory(CategoryRateLimit, 5*time.Second, 1)
}

// Base returns the unsampled logger.
func (s *SampledLogger) Base() Logger {
	return s.base
}

// Warn logs msg at warn level if the category allows it.
func (s *SampledLogger) Warn(category, msg string, fields map[string]interface{}) {
	s.log(logrus.WarnLevel, category, msg, fields)
}

// Debug logs msg at debug level if the category allows it.
func (s *SampledLogger) Debug(category, msg string, fields map[string]interface{}) {
	s.log(logrus.DebugLevel, category, msg, fields)
}

func (s *SampledLogger) log(level logrus.Level, category, msg string, fields map[string]interface{}) {
	s.mu.RLock()
	smp, ok := s.categories[category]
	s.mu.RUnlock()

	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["category"] = category

	if !ok {
		s.base.WithFields(out).Log(level, msg)
		return
	}

	smp.seen.Add(1)
	if !smp.limiter.Allow() {
		smp.suppressed.Add(1)
		return
	}

	smp.logged.Add(1)
	if n := smp.suppressed.Swap(0); n > 0 {
		out["suppressed"] = n
	}
	s.base.WithFields(out).Log(level, msg)
}

// Stats returns counters for every configured category.
func (s *SampledLogger) Stats() map[string]SamplerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]SamplerStats, len(s.categories))
	for name, smp := range s.categories {
		seen := smp.seen.Load()
		logged := smp.logged.Load()
		stats[name] = SamplerStats{
			Name:       name,
			Seen:       seen,
			Logged:     logged,
			Suppressed: seen - logged,
		}
	}
	return stats
}
