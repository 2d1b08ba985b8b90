package unifiedllm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "unifai"

// Metrics holds the router's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	exhausted       *prometheus.CounterVec
	tokens          *prometheus.CounterVec
}

// NewMetrics creates the router collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "provider_attempts_total",
				Help:      "Provider attempts by outcome and error kind",
			},
			[]string{"provider", "operation", "outcome", "kind"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "provider_attempt_duration_seconds",
				Help:      "Provider attempt duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fallbacks_total",
				Help:      "Calls served by a provider other than the first",
			},
			[]string{"provider", "operation"},
		),
		exhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "all_providers_failed_total",
				Help:      "Calls on which every provider failed",
			},
			[]string{"operation"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_total",
				Help:      "Tokens reported by providers",
			},
			[]string{"provider", "type"},
		),
	}
}

func (m *Metrics) recordAttempt(provider ProviderIdentity, operation string, kind ErrorKind, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = "failure"
	}
	m.attempts.WithLabelValues(string(provider), operation, outcome, string(kind)).Inc()
	m.attemptDuration.WithLabelValues(string(provider), operation).Observe(d.Seconds())
}

func (m *Metrics) recordFallback(provider ProviderIdentity, operation string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(string(provider), operation).Inc()
}

func (m *Metrics) recordExhausted(operation string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(operation).Inc()
}

func (m *Metrics) recordUsage(provider ProviderIdentity, u Usage) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(string(provider), "prompt").Add(float64(u.PromptTokens))
	m.tokens.WithLabelValues(string(provider), "completion").Add(float64(u.CompletionTokens))
}
