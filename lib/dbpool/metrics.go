package dbpool

import (
	"github.com/VictoriaMetrics/metrics"
	"io"
)

// poolMetrics holds the metrics of one pool. Every pool has its own set, so
// several pools (e.g. in tests) never share counters.
type poolMetrics struct {
	set *metrics.Set

	gets      *metrics.Counter
	batches   *metrics.Counter
	seeks     *metrics.Counter
	canceled  *metrics.Counter
	dropped   *metrics.Counter
	queueFull *metrics.Counter
	panics    *metrics.Counter
	duration  *metrics.Histogram
}

func newPoolMetrics(p *Pool) *poolMetrics {
	set := metrics.NewSet()
	m := &poolMetrics{
		set:       set,
		gets:      set.NewCounter(`dbpool_commands_total{kind="get"}`),
		batches:   set.NewCounter(`dbpool_commands_total{kind="batch"}`),
		seeks:     set.NewCounter(`dbpool_commands_total{kind="seek"}`),
		canceled:  set.NewCounter(`dbpool_canceled_total`),
		dropped:   set.NewCounter(`dbpool_dropped_results_total`),
		queueFull: set.NewCounter(`dbpool_queue_full_total`),
		panics:    set.NewCounter(`dbpool_panics_total`),
		duration:  set.NewHistogram(`dbpool_command_duration_seconds`),
	}

	set.NewGauge(`dbpool_busy_workers`, func() float64 {
		return float64(p.busy.Load())
	})
	set.NewGauge(`dbpool_queued_max`, func() float64 {
		return float64(p.queuedMax.Load())
	})
	set.NewGauge(`dbpool_workers`, func() float64 {
		return float64(p.plan.Workers)
	})
	set.NewGauge(`dbpool_queued`, func() float64 {
		var n int
		for _, q := range p.queues {
			n += len(q)
		}
		return float64(n)
	})
	return m
}

// submitted counts an accepted command
func (m *poolMetrics) submitted(c *command) {
	switch {
	case c.kind == cmdIter:
		m.seeks.Inc()
	case c.keyCount() == 1:
		m.gets.Inc()
	default:
		m.batches.Inc()
	}
}

// WritePrometheus writes the metrics of the pool in Prometheus text format
func (p *Pool) WritePrometheus(w io.Writer) {
	p.metrics.set.WritePrometheus(w)
}
