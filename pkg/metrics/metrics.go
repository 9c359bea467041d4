package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/veesix-networks/segmentd/pkg/events"
)

const (
	ResultAllocated  = "allocated"
	ResultNoCapacity = "no_capacity"
	ResultError      = "error"
)

var (
	Allocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segmentd_allocations_total",
		Help: "Total number of address allocation attempts by segment type and result",
	}, []string{"type", "result"})

	Releases = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segmentd_releases_total",
		Help: "Total number of addresses returned to their segment",
	})

	SelectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "segmentd_selection_duration_seconds",
		Help:    "Time spent choosing a segment, including occupancy reads",
		Buckets: prometheus.DefBuckets,
	})

	ScopeChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segmentd_scope_changes_total",
		Help: "Total number of pod and account scope changes by kind",
	}, []string{"change"})
)

// Register adds the package collectors to reg. Collectors that are already
// registered are ignored so tests and the daemon can share a registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Allocations, Releases, SelectionDuration, ScopeChanges} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// HandleEvent updates counters from a bus event.
func HandleEvent(e events.Event) {
	switch data := e.Data.(type) {
	case events.AllocatedEvent:
		Allocations.WithLabelValues(data.Type, ResultAllocated).Inc()
	case events.ExhaustedEvent:
		Allocations.WithLabelValues(data.Type, ResultNoCapacity).Inc()
	case events.ReleasedEvent:
		Releases.Inc()
	case events.ScopeChangedEvent:
		ScopeChanges.WithLabelValues(string(data.Change)).Inc()
	}
}

// Subscribe feeds every event published on bus into HandleEvent.
func Subscribe(bus events.Bus) []events.Subscription {
	topics := []string{
		events.TopicSegmentAllocated,
		events.TopicSegmentExhausted,
		events.TopicSegmentReleased,
		events.TopicScopeChanged,
	}
	subs := make([]events.Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, bus.Subscribe(t, HandleEvent))
	}
	return subs
}
