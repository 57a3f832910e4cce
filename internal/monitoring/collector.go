package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

// LeadLister lists leads.
type LeadLister interface {
	ListLeads(ctx context.Context, f model.LeadFilter) ([]*model.Lead, error)
}

// ExecutionLister lists workflow executions.
type ExecutionLister interface {
	ListExecutions(ctx context.Context, f model.ExecutionFilter) ([]*model.Execution, error)
}

// Snapshot is a point-in-time view of pipeline and workflow health.
type Snapshot struct {
	pipeline.Snapshot

	Executions   map[model.ExecutionStatus]int `json:"executions"`
	StalePaused  []*model.Execution            `json:"-"`
	ActiveAlerts int                           `json:"active_alerts"`
	TopLeads     []Priority                    `json:"top_leads"`
	CampaignID   string                        `json:"campaign_id,omitempty"`
}

// Collector gathers snapshots from the store.
type Collector struct {
	leads  LeadLister
	execs  ExecutionLister
	alerts AlertStore

	// StalePausedAge marks paused executions older than this as stalled.
	StalePausedAge time.Duration
}

// NewCollector creates a collector.
func NewCollector(leads LeadLister, execs ExecutionLister, alerts AlertStore) *Collector {
	return &Collector{leads: leads, execs: execs, alerts: alerts, StalePausedAge: 72 * time.Hour}
}

const topLeadCount = 10

// Collect builds a snapshot, optionally scoped to one campaign.
func (c *Collector) Collect(ctx context.Context, campaignID string, now time.Time) (*Snapshot, error) {
	leads, err := c.leads.ListLeads(ctx, model.LeadFilter{CampaignID: campaignID})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list leads")
	}
	execs, err := c.execs.ListExecutions(ctx, model.ExecutionFilter{CampaignID: campaignID})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list executions")
	}
	alerts, err := c.alerts.ListAlerts(ctx, model.AlertFilter{CampaignID: campaignID})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list alerts")
	}

	snap := &Snapshot{
		Snapshot:     pipeline.Measure(leads, now),
		Executions:   make(map[model.ExecutionStatus]int),
		ActiveAlerts: len(alerts),
		CampaignID:   campaignID,
	}
	for _, e := range execs {
		snap.Executions[e.Status]++
		if e.Status == model.ExecutionPaused && now.Sub(e.UpdatedAt) > c.StalePausedAge {
			snap.StalePaused = append(snap.StalePaused, e)
		}
	}

	open := make([]*model.Lead, 0, len(leads))
	for _, l := range leads {
		if !l.Status.Closed() {
			open = append(open, l)
		}
	}
	ranked := Rank(open, now)
	if len(ranked) > topLeadCount {
		ranked = ranked[:topLeadCount]
	}
	snap.TopLeads = ranked
	return snap, nil
}

// Metrics exports snapshots as Prometheus gauges.
type Metrics struct {
	registry *prometheus.Registry

	leadsByStage   *prometheus.GaugeVec
	leadsByTier    *prometheus.GaugeVec
	executions     *prometheus.GaugeVec
	conversion     *prometheus.GaugeVec
	responseRate   prometheus.Gauge
	qualifiedRate  prometheus.Gauge
	revenue        prometheus.Gauge
	activeAlerts   prometheus.Gauge
	lastCollection prometheus.Gauge
}

// NewMetrics registers the outreach gauges on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		leadsByStage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "leads", Help: "Leads by pipeline stage.",
		}, []string{"stage"}),
		leadsByTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "leads_by_tier", Help: "Leads by qualification tier.",
		}, []string{"tier"}),
		executions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "workflow_executions", Help: "Workflow executions by status.",
		}, []string{"status"}),
		conversion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "conversion_rate", Help: "Stage to stage conversion rate.",
		}, []string{"transition"}),
		responseRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "response_rate", Help: "Replies over leads contacted.",
		}),
		qualifiedRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "qualification_rate", Help: "Qualified leads over all leads.",
		}),
		revenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "revenue_pipeline_usd", Help: "Expected revenue of the qualified pipeline.",
		}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "active_alerts", Help: "Unacknowledged alerts.",
		}),
		lastCollection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outreach", Name: "last_collection_timestamp_seconds", Help: "Unix time of the last snapshot.",
		}),
	}
	reg.MustRegister(m.leadsByStage, m.leadsByTier, m.executions, m.conversion,
		m.responseRate, m.qualifiedRate, m.revenue, m.activeAlerts, m.lastCollection)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Observe updates every gauge from snap.
func (m *Metrics) Observe(snap *Snapshot) {
	for stage, n := range snap.ByStage {
		m.leadsByStage.WithLabelValues(string(stage)).Set(float64(n))
	}
	m.leadsByTier.Reset()
	for tier, n := range snap.ByTier {
		m.leadsByTier.WithLabelValues(string(tier)).Set(float64(n))
	}
	m.executions.Reset()
	for status, n := range snap.Executions {
		m.executions.WithLabelValues(string(status)).Set(float64(n))
	}
	for name, rate := range snap.ConversionRates {
		m.conversion.WithLabelValues(name).Set(rate)
	}
	m.responseRate.Set(snap.ResponseRate)
	m.qualifiedRate.Set(snap.QualificationRate)
	m.revenue.Set(snap.RevenuePipeline)
	m.activeAlerts.Set(float64(snap.ActiveAlerts))
	m.lastCollection.Set(float64(snap.GeneratedAt.Unix()))
}
