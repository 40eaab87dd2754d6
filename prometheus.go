package sieve

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusConfig is a config of the Prometheus metrics provided by the buffer.
//
// An instance can be created only by the [Prometheus] function. The zero value is invalid.
type PrometheusConfig struct {
	// Namespace of the metrics.
	Namespace string
	// Subsystem of the metrics.
	Subsystem string
	// Options for the occupancy gauge.
	Occupancy prometheus.GaugeOpts
	// Options for the capacity gauge.
	Capacity prometheus.GaugeOpts
	// Options for the put items counter.
	ItemsPut prometheus.CounterOpts
	// Options for the taken items counter, labeled by consumer.
	ItemsTaken prometheus.CounterOpts
	// Options for the counter of scans that found nothing, labeled by consumer.
	Misses prometheus.CounterOpts
	// Options for the histogram of time spent waiting for a free slot.
	PutWait prometheus.HistogramOpts

	registerer prometheus.Registerer
}

// Prometheus returns a [PrometheusConfig] with the provided registerer. If registerer is nil,
// metrics will not be registered. Many default parameters can be configured by passing
// configuration functions.
func Prometheus(
	registerer prometheus.Registerer,
	configFuncs ...func(c *PrometheusConfig),
) *PrometheusConfig {
	const (
		namespace = "sieve"
		subsystem = ""
	)

	c := PrometheusConfig{
		registerer: registerer,
		Namespace:  namespace,
		Subsystem:  subsystem,
		Occupancy: prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "occupancy",
			Help:      "Number of items in buffer",
		},
		Capacity: prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "capacity",
			Help:      "Capacity of buffer",
		},
		ItemsPut: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_put",
			Help:      "Number of items put into buffer",
		},
		ItemsTaken: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_taken",
			Help:      "Number of items taken from buffer",
		},
		Misses: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "misses",
			Help:      "Number of buffer scans that found no matching item",
		},
		PutWait: prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "put_wait_seconds",
			Help:      "Time spent waiting for a free slot",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	}

	for _, cf := range configFuncs {
		if cf != nil {
			cf(&c)
		}
	}

	return &c
}

func (c *PrometheusConfig) metrics() *metrics {
	m := metrics{
		occupancy:  prometheus.NewGauge(c.Occupancy),
		capacity:   prometheus.NewGauge(c.Capacity),
		itemsPut:   prometheus.NewCounter(c.ItemsPut),
		itemsTaken: prometheus.NewCounterVec(c.ItemsTaken, []string{"consumer"}),
		misses:     prometheus.NewCounterVec(c.Misses, []string{"consumer"}),
		putWait:    prometheus.NewHistogram(c.PutWait),
	}

	if c.registerer != nil {
		c.registerer.MustRegister(
			m.occupancy,
			m.capacity,
			m.itemsPut,
			m.itemsTaken,
			m.misses,
			m.putWait,
		)
	}

	return &m
}

type metrics struct {
	occupancy  prometheus.Gauge
	capacity   prometheus.Gauge
	itemsPut   prometheus.Counter
	itemsTaken *prometheus.CounterVec
	misses     *prometheus.CounterVec
	putWait    prometheus.Histogram
}
