package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for one export run.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Outbound HTTP metrics (explorer and pricing APIs)
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// Solana RPC metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec
	solanaTransactionsSkipped  *prometheus.CounterVec

	// Pipeline metrics
	chainFetchesTotal      *prometheus.CounterVec
	transactionsNormalized *prometheus.CounterVec
	priceLookupsTotal      *prometheus.CounterVec
	pricesUnresolvedTotal  *prometheus.CounterVec
	reportRowsTotal        *prometheus.CounterVec
	runDuration            prometheus.Histogram
}

// NewMetrics creates a new Metrics instance backed by its own registry, so a
// run's numbers never mix with another run in the same process.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_client_request_duration_seconds",
				Help:    "Duration of outbound HTTP requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"api", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_client_requests_total",
				Help: "Total number of outbound HTTP requests by API and status class",
			},
			[]string{"api", "status"},
		),

		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),
		solanaTransactionsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_transactions_skipped_total",
				Help: "Total number of signatures whose transaction could not be resolved",
			},
			[]string{"reason"},
		),

		chainFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_fetches_total",
				Help: "Total number of per-chain transfer fetches by outcome",
			},
			[]string{"chain", "status"},
		),
		transactionsNormalized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_normalized_total",
				Help: "Total number of transfers normalized into the ledger schema",
			},
			[]string{"chain"},
		),
		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_lookups_total",
				Help: "Total number of pricing API lookups by platform and status",
			},
			[]string{"platform", "status"},
		),
		pricesUnresolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prices_unresolved_total",
				Help: "Total number of tokens left unpriced",
			},
			[]string{"chain"},
		),
		reportRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_rows_total",
				Help: "Report rows by table and fate (kept, dropped, filtered)",
			},
			[]string{"table", "fate"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "export_run_duration_seconds",
				Help:    "Duration of a full export run in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
	}
}

// WriteTextfile dumps the collected metrics in the text exposition format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Outbound HTTP metric helpers

// RecordHTTPRequest records an outbound HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(api string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(api, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(api, status).Inc()
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// RecordTransactionSkipped records a signature whose details were unavailable.
func (m *Metrics) RecordTransactionSkipped(reason string) {
	m.solanaTransactionsSkipped.WithLabelValues(reason).Inc()
}

// Pipeline metric helpers

// RecordChainFetch records the outcome of fetching one chain's transfers.
func (m *Metrics) RecordChainFetch(chain, status string) {
	m.chainFetchesTotal.WithLabelValues(chain, status).Inc()
}

// RecordTransactionsNormalized records transfers normalized for a chain.
func (m *Metrics) RecordTransactionsNormalized(chain string, count int) {
	m.transactionsNormalized.WithLabelValues(chain).Add(float64(count))
}

// RecordPriceLookup records a pricing API lookup.
func (m *Metrics) RecordPriceLookup(platform string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.priceLookupsTotal.WithLabelValues(platform, status).Inc()
}

// RecordUnresolvedPrices records tokens left at price zero.
func (m *Metrics) RecordUnresolvedPrices(chain string, count int) {
	m.pricesUnresolvedTotal.WithLabelValues(chain).Add(float64(count))
}

// RecordReportRows records report rows by table and fate.
func (m *Metrics) RecordReportRows(table, fate string, count int) {
	m.reportRowsTotal.WithLabelValues(table, fate).Add(float64(count))
}

// RecordRunDuration records the duration of a full run.
func (m *Metrics) RecordRunDuration(duration float64) {
	m.runDuration.Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	case code == 0:
		return "transport_error"
	default:
		return "unknown"
	}
}
