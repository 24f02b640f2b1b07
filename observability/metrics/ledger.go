package metrics

import (
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
)

// LedgerMetrics records engine outcomes, pool state, ledger events and HTTP
// traffic. All methods are nil-safe.
type LedgerMetrics struct {
	operations       *prometheus.CounterVec
	transferFailures *prometheus.CounterVec
	liquidity        prometheus.Gauge
	payouts          *prometheus.HistogramVec
	events           *prometheus.CounterVec
	requests         *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide metrics registered with the default
// Prometheus registerer.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = NewLedgerMetrics(prometheus.DefaultRegisterer)
	})
	return ledgerRegistry
}

// NewLedgerMetrics builds a metrics set and registers it with reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gk",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		transferFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gk",
			Subsystem: "ledger",
			Name:      "transfer_failures_total",
			Help:      "Asset transfers rejected by the asset ledger.",
		}, []string{"operation"}),
		liquidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gk",
			Subsystem: "ledger",
			Name:      "pool_liquidity",
			Help:      "Current pool liquidity. Negative after an emergency withdrawal.",
		}),
		payouts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gk",
			Subsystem: "ledger",
			Name:      "payout_amount",
			Help:      "Amounts paid out of the pool.",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 10),
		}, []string{"operation"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gk",
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Ledger events emitted by type.",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations,
			m.transferFailures,
			m.liquidity,
			m.payouts,
			m.events,
			m.requests,
			m.requestLatency,
		)
	}
	return m
}

// ObserveOperation counts an engine operation as ok or error.
func (m *LedgerMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(label(operation), outcome(err)).Inc()
}

func (m *LedgerMetrics) ObserveTransferFailure(operation string) {
	if m == nil {
		return
	}
	m.transferFailures.WithLabelValues(label(operation)).Inc()
}

func (m *LedgerMetrics) ObservePayout(operation string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.payouts.WithLabelValues(label(operation)).Observe(value)
}

func (m *LedgerMetrics) SetLiquidity(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.liquidity.Set(value)
}

// Emit implements events.Emitter by counting events per type.
func (m *LedgerMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(label(evt.EventType())).Inc()
}

// ObserveRequest records one HTTP request.
func (m *LedgerMetrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route = label(route)
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
