// Package http provides the HTTP transport adapter for the gateway.
package http

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// GatewayMetrics holds the Prometheus instruments spec.md §6 names:
// request counters by (agent, action, decision), a latency histogram, a
// risk-score histogram, PII detection counters by entity type, an active
// policy gauge, and a pending approval gauge. It implements
// service.Metrics so GatewayService can record without importing
// Prometheus directly.
type GatewayMetrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RiskScore        *prometheus.HistogramVec
	PIIFindingsTotal *prometheus.CounterVec
	ActivePolicies   prometheus.Gauge
	PendingApprovals prometheus.Gauge
}

// NewGatewayMetrics creates and registers all metrics with the given registry.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	return &GatewayMetrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinelgate",
				Name:      "requests_total",
				Help:      "Total number of gateway evaluations by agent, action, and decision",
			},
			[]string{"agent_id", "action_type", "decision"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sentinelgate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RiskScore: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sentinelgate",
				Name:      "risk_score",
				Help:      "Distribution of computed risk scores by action type",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.5, 2.0},
			},
			[]string{"action_type"},
		),
		PIIFindingsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinelgate",
				Name:      "pii_findings_total",
				Help:      "Total PII/secret detections by entity type",
			},
			[]string{"entity_type"},
		),
		ActivePolicies: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sentinelgate",
				Name:      "active_policies",
				Help:      "Number of enabled policy rules in the current snapshot",
			},
		),
		PendingApprovals: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sentinelgate",
				Name:      "pending_approvals",
				Help:      "Number of approval records currently PENDING",
			},
		),
	}
}

// ObserveRequest implements service.Metrics.
func (m *GatewayMetrics) ObserveRequest(agentID, actionType, decision string) {
	m.RequestsTotal.WithLabelValues(agentID, actionType, decision).Inc()
}

// ObserveRiskScore implements service.Metrics.
func (m *GatewayMetrics) ObserveRiskScore(actionType string, score float64) {
	m.RiskScore.WithLabelValues(actionType).Observe(score)
}

// ObservePIIFinding implements service.Metrics.
func (m *GatewayMetrics) ObservePIIFinding(entityType string) {
	m.PIIFindingsTotal.WithLabelValues(entityType).Inc()
}

// RunGaugeRefresh periodically recomputes ActivePolicies and
// PendingApprovals, since both are derived from store contents rather than
// observed at request time. Intended to run as a background goroutine
// alongside the approval sweeper and rate-limiter cleanup.
func (m *GatewayMetrics) RunGaugeRefresh(ctx context.Context, store policy.Store, coordinator *approval.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		if snap, err := store.GetSnapshot(ctx); err == nil {
			count := 0
			for i := range snap {
				if snap[i].Enabled {
					count++
				}
			}
			m.ActivePolicies.Set(float64(count))
		}
		if n, err := coordinator.PendingCount(ctx); err == nil {
			m.PendingApprovals.Set(float64(n))
		}
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
