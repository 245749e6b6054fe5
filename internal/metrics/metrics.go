package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OptimizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptopt_optimizations_total",
			Help: "Total number of optimization requests processed",
		},
		[]string{"strategy", "status"},
	)

	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptopt_strategy_duration_seconds",
			Help:    "End-to-end orchestration duration per strategy",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptopt_upstream_requests_total",
			Help: "Total upstream model calls by outcome",
		},
		[]string{"model", "status"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptopt_tokens_total",
			Help: "Total tokens processed by model and direction",
		},
		[]string{"model", "type"},
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptopt_cost_usd_total",
			Help: "Accumulated estimated cost in USD",
		},
		[]string{"model"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptopt_rate_limit_hits_total",
			Help: "Requests denied by the rate limiter",
		},
		[]string{"operation"},
	)

	RewriteOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptopt_rewrite_outcomes_total",
			Help: "Prompt rewrite outcomes (rewritten, skipped, fallback)",
		},
		[]string{"outcome"},
	)

	SessionFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptopt_session_flushes_total",
			Help: "Write-behind session flushes to durable storage",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "promptopt_circuit_breaker_state",
			Help: "Circuit breaker state per model (0=closed, 1=open, 2=half-open)",
		},
		[]string{"model"},
	)
)

func RecordOptimization(strategy, status string, durationSec float64) {
	OptimizationsTotal.WithLabelValues(strategy, status).Inc()
	StrategyDuration.WithLabelValues(strategy).Observe(durationSec)
}

func RecordUpstreamRequest(model, status string) {
	UpstreamRequestsTotal.WithLabelValues(model, status).Inc()
}

func RecordTokens(model string, inputTokens, outputTokens int) {
	TokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	TokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
}

func RecordCost(model string, costUSD float64) {
	CostTotal.WithLabelValues(model).Add(costUSD)
}

func RecordRateLimitHit(operation string) {
	RateLimitHits.WithLabelValues(operation).Inc()
}

func RecordRewriteOutcome(outcome string) {
	RewriteOutcomes.WithLabelValues(outcome).Inc()
}

func RecordSessionFlush() {
	SessionFlushesTotal.Inc()
}

func SetCircuitBreakerState(model string, state int) {
	CircuitBreakerState.WithLabelValues(model).Set(float64(state))
}
