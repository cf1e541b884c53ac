package registry

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
)

const unregisterTimeout = 2 * time.Second

// StatsSource supplies the counters published with each heartbeat.
type StatsSource interface {
	Stats() types.Stats
}

// Reporter keeps one instance record alive. Registry failures are logged and
// retried on the next tick; they never stop the pipeline.
type Reporter struct {
	registry Registry
	source   StatsSource
	instance Instance
	interval time.Duration
	logger   logger.Logger

	registered bool
}

func NewReporter(reg Registry, source StatsSource, inst Instance, interval time.Duration, log logger.Logger) *Reporter {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Reporter{
		registry: reg,
		source:   source,
		instance: inst,
		interval: interval,
		logger:   logger.WithComponent(log, "registry_reporter").WithField("instance_id", inst.ID),
	}
}

// Run registers the instance, heartbeats every interval until ctx is done,
// then unregisters.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.beat(ctx)

	for {
		select {
		case <-ticker.C:
			r.beat(ctx)
		case <-ctx.Done():
			r.unregister()
			return
		}
	}
}

func (r *Reporter) beat(ctx context.Context) {
	stats := r.source.Stats()

	if r.registered {
		err := r.registry.Heartbeat(ctx, r.instance.ID, stats)
		if err == nil {
			return
		}
		if !stderrors.Is(err, ErrInstanceNotFound) {
			r.logger.WithError(err).Warn("Registry heartbeat failed")
			return
		}
		// The key expired, usually after a Redis outage longer than the TTL.
		r.logger.Info("Instance record expired, registering again")
		r.registered = false
	}

	inst := r.instance
	inst.Stats = stats
	if err := r.registry.Register(ctx, &inst); err != nil {
		r.logger.WithError(err).Warn("Registry registration failed")
		return
	}
	r.registered = true
}

func (r *Reporter) unregister() {
	if !r.registered {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
	defer cancel()

	if err := r.registry.Unregister(ctx, r.instance.ID); err != nil && !stderrors.Is(err, ErrInstanceNotFound) {
		r.logger.WithError(err).Warn("Registry unregister failed")
	}
	r.registered = false
}
