// Package metrics exposes prometheus collectors for schedule regeneration,
// payments and tenancy status.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/tenancy-billing/billing"
)

const metricPrefix = "tenancy_billing_"

// Collector implements billing.Metrics and the scheduler's status hook.
type Collector struct {
	regenerations   *prometheus.CounterVec
	regenLatency    *prometheus.HistogramVec
	periodOps       *prometheus.CounterVec
	payments        *prometheus.CounterVec
	tenanciesByStat *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		regenerations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "regenerations_total",
				Help: "Schedule regenerations by result",
			},
			[]string{"result"},
		),
		regenLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "regeneration_latency_seconds",
				Help:    "Schedule regeneration latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		periodOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "period_operations_total",
				Help: "Billing period operations applied by kind",
			},
			[]string{"op"},
		),
		payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_total",
				Help: "Recorded payments by result",
			},
			[]string{"result"},
		),
		tenanciesByStat: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tenancies",
				Help: "Tenancies by payment status at the last sweep",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(c.regenerations, c.regenLatency, c.periodOps, c.payments, c.tenanciesByStat)
	return c
}

func (c *Collector) ObserveRegeneration(result string, summary billing.PlanSummary, elapsed time.Duration) {
	c.regenerations.WithLabelValues(result).Inc()
	c.regenLatency.WithLabelValues(result).Observe(elapsed.Seconds())
	if result != billing.ResultApplied {
		return
	}
	c.periodOps.WithLabelValues("create").Add(float64(summary.Creates))
	c.periodOps.WithLabelValues("update").Add(float64(summary.Updates - summary.NoOps))
	c.periodOps.WithLabelValues("noop").Add(float64(summary.NoOps))
	c.periodOps.WithLabelValues("delete").Add(float64(summary.Deletes))
}

func (c *Collector) ObservePayment(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.payments.WithLabelValues(result).Inc()
}

// SetStatusCounts replaces the status gauge with the latest sweep counts.
func (c *Collector) SetStatusCounts(counts map[billing.Status]int) {
	for _, s := range []billing.Status{
		billing.StatusOverdue, billing.StatusUpcoming, billing.StatusPaidUp,
		billing.StatusCompleted, billing.StatusUnknown,
	} {
		c.tenanciesByStat.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
