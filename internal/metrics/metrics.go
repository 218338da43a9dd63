// Copyright 2025 Certen Protocol
//
// metrics exposes the chunk validation core's Prometheus collectors:
// witness processing latency, endorsement counts and rejection reasons,
// watching the scheduler's long-running state the way a health monitor
// watches liveness, but for counters instead of health callbacks.

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric this core emits. Callers register it
// once against a prometheus.Registerer at startup.
type Collectors struct {
	ReplayDuration     prometheus.Histogram
	EndorsementsSent   prometheus.Counter
	WitnessesRejected  *prometheus.CounterVec
	WitnessesProcessed prometheus.Counter
}

// New constructs the collector set. It does not register them; call
// Register to do that against a specific registerer.
func New() *Collectors {
	return &Collectors{
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chunkvalidator",
			Subsystem: "replay",
			Name:      "duration_seconds",
			Help:      "Time spent replaying a chunk state witness's transitions.",
			Buckets:   prometheus.DefBuckets,
		}),
		EndorsementsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkvalidator",
			Subsystem: "endorse",
			Name:      "sent_total",
			Help:      "Chunk endorsements successfully signed and sent.",
		}),
		WitnessesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkvalidator",
			Subsystem: "scheduler",
			Name:      "witnesses_rejected_total",
			Help:      "Chunk state witnesses rejected, labeled by rejection reason.",
		}, []string{"reason"}),
		WitnessesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkvalidator",
			Subsystem: "scheduler",
			Name:      "witnesses_processed_total",
			Help:      "Chunk state witnesses that passed the committee gate and were submitted for replay.",
		}),
	}
}

// Register registers every collector against reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		c.ReplayDuration,
		c.EndorsementsSent,
		c.WitnessesRejected,
		c.WitnessesProcessed,
	} {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
