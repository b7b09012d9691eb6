package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
	settlementCounter      *prometheus.CounterVec
	settlementVolume       *prometheus.CounterVec
	feeCollected           *prometheus.CounterVec
	rateGauge              *prometheus.GaugeVec
	supplyGauge            *prometheus.GaugeVec
	eventSinkFailures      *prometheus.CounterVec
	streamClientsGauge     prometheus.Gauge
	httpInFlight           prometheus.Gauge
	panicCounter           *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of audits where total supply diverged from the sum of balances",
		}, []string{"currency"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement attempts by direction and result",
		}, []string{"direction", "result"})

		settlementVolume = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_volume_units_total",
			Help: "Gross settled amount in display units of the source currency",
		}, []string{"currency"})

		feeCollected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_fees_units_total",
			Help: "Fees paid to monetary authorities in display units",
		}, []string{"currency"})

		rateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_rate",
			Help: "Last observed exchange rate per provider",
		}, []string{"provider"})

		supplyGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_total_supply_units",
			Help: "Total supply per currency in display units",
		}, []string{"currency"})

		eventSinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_sink_failures_total",
			Help: "Events that a sink failed to accept",
		}, []string{"sink"})

		streamClientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "event_stream_clients",
			Help: "Connected WebSocket event stream clients",
		})

		httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		})

		panicCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_panics_recovered_total",
			Help: "Handler panics converted to 500 responses",
		}, []string{"kind"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerImbalanceCounter,
			idempotencyCounter,
			workerRunCounter,
			settlementCounter,
			settlementVolume,
			feeCollected,
			rateGauge,
			supplyGauge,
			eventSinkFailures,
			streamClientsGauge,
			httpInFlight,
			panicCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerImbalance(currency string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(currency).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementSettlement(direction, result string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(direction, result).Inc()
}

// ObserveSettlement records gross volume and fee, both in display units.
func ObserveSettlement(currency string, amount, fee float64) {
	if settlementVolume == nil {
		return
	}
	settlementVolume.WithLabelValues(currency).Add(amount)
	feeCollected.WithLabelValues(currency).Add(fee)
}

func SetExchangeRate(provider string, rate float64) {
	if rateGauge == nil {
		return
	}
	rateGauge.WithLabelValues(provider).Set(rate)
}

func SetTotalSupply(currency string, units float64) {
	if supplyGauge == nil {
		return
	}
	supplyGauge.WithLabelValues(currency).Set(units)
}

func IncrementEventSinkFailure(sink string) {
	if eventSinkFailures == nil {
		return
	}
	eventSinkFailures.WithLabelValues(sink).Inc()
}

func SetStreamClients(n int) {
	if streamClientsGauge == nil {
		return
	}
	streamClientsGauge.Set(float64(n))
}

// TrackInFlight adjusts the in-flight request gauge by delta.
func TrackInFlight(delta float64) {
	if httpInFlight == nil {
		return
	}
	httpInFlight.Add(delta)
}

func IncrementPanic(kind string) {
	if panicCounter == nil {
		return
	}
	panicCounter.WithLabelValues(kind).Inc()
}
