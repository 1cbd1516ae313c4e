package usecase

import (
	"context"

	"storage-sync-worker/internal/shared/eventbus"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "storage_sync"

// Collector is a prometheus.Collector fed from sync events.
type Collector struct {
	changesApplied *prometheus.CounterVec
	changesFailed  *prometheus.CounterVec
	changesSkipped *prometheus.CounterVec
	feedFaults     *prometheus.CounterVec
	feedsOpen      *prometheus.GaugeVec
	recordsPruned  *prometheus.CounterVec
	pruneFaults    *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	labels := []string{"collection"}
	return &Collector{
		changesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "changes_applied_total",
				Help:      "The number of change events mirrored to the target.",
			}, []string{"collection", "operation"},
		),
		changesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "changes_failed_total",
				Help:      "The number of change events that could not be applied.",
			}, labels,
		),
		changesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "changes_skipped_total",
				Help:      "The number of change events with an unsupported operation.",
			}, labels,
		),
		feedFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "feed_faults_total",
				Help:      "The number of times a change feed failed and was reopened.",
			}, labels,
		),
		feedsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "feed_open",
				Help:      "Whether the change feed of a collection is currently open.",
			}, labels,
		),
		recordsPruned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_pruned_total",
				Help:      "The number of outdated source records deleted.",
			}, labels,
		),
		pruneFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "prune_faults_total",
				Help:      "The number of failed pruning cycles.",
			}, labels,
		),
	}
}

// Attach subscribes the collector to every sync event type on bus.
func (c *Collector) Attach(bus *eventbus.EventBus) {
	bus.SubscribeAll(c.handle, eventbus.AllEventTypes...)
}

func (c *Collector) handle(_ context.Context, event eventbus.Event) error {
	coll := event.Source()
	switch event.Type() {
	case eventbus.EventTypeChangeApplied:
		op, _ := event.Data().(string)
		c.changesApplied.WithLabelValues(coll, op).Inc()
	case eventbus.EventTypeChangeFailed:
		c.changesFailed.WithLabelValues(coll).Inc()
	case eventbus.EventTypeChangeSkipped:
		c.changesSkipped.WithLabelValues(coll).Inc()
	case eventbus.EventTypeFeedOpened:
		c.feedsOpen.WithLabelValues(coll).Set(1)
	case eventbus.EventTypeFeedFault:
		c.feedsOpen.WithLabelValues(coll).Set(0)
		c.feedFaults.WithLabelValues(coll).Inc()
	case eventbus.EventTypeRecordsPruned:
		if n, ok := event.Data().(int64); ok {
			c.recordsPruned.WithLabelValues(coll).Add(float64(n))
		}
	case eventbus.EventTypePruneFault:
		c.pruneFaults.WithLabelValues(coll).Inc()
	}
	return nil
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.changesApplied.Describe(ch)
	c.changesFailed.Describe(ch)
	c.changesSkipped.Describe(ch)
	c.feedFaults.Describe(ch)
	c.feedsOpen.Describe(ch)
	c.recordsPruned.Describe(ch)
	c.pruneFaults.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.changesApplied.Collect(ch)
	c.changesFailed.Collect(ch)
	c.changesSkipped.Collect(ch)
	c.feedFaults.Collect(ch)
	c.feedsOpen.Collect(ch)
	c.recordsPruned.Collect(ch)
	c.pruneFaults.Collect(ch)
}
