package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// minContactedForRate keeps the response-rate alert quiet on tiny samples.
const minContactedForRate = 20

// Checker runs periodic health checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *Metrics
	cfg       config.MonitoringConfig
	now       func() time.Time
}

// NewChecker creates a background checker. metrics may be nil.
func NewChecker(collector *Collector, alerter *Alerter, metrics *Metrics, cfg config.MonitoringConfig) *Checker {
	if cfg.StalledPausedMaxAge > 0 {
		collector.StalePausedAge = cfg.StalledPausedMaxAge
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		metrics:   metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := c.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			if _, err := c.Check(ctx); err != nil {
				log.Error("monitoring: check failed", zap.Error(err))
			}
		}
	}
}

// Check collects one snapshot, updates metrics, and raises alerts for
// stalled executions and a weak response rate. It returns the number of
// alerts stored.
func (c *Checker) Check(ctx context.Context) (int, error) {
	now := c.now()
	snap, err := c.collector.Collect(ctx, "", now)
	if err != nil {
		return 0, err
	}
	if c.metrics != nil {
		c.metrics.Observe(snap)
	}

	raised := 0
	for _, e := range snap.StalePaused {
		ok, err := c.alerter.Raise(ctx, &model.Alert{
			Type:           model.AlertWorkflowStalled,
			Severity:       model.SeverityMedium,
			LeadID:         e.LeadID,
			CampaignID:     e.CampaignID,
			ExecutionID:    e.ID,
			Title:          "Workflow paused too long",
			Message:        fmt.Sprintf("execution %s has been paused since %s", e.ID, e.UpdatedAt.Format(time.RFC3339)),
			ActionRequired: true,
			CreatedAt:      now,
		})
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}

	contacted := 0
	for _, step := range snap.Funnel {
		if step.Stage == model.StageOutreach {
			contacted = step.Reached
		}
	}
	floor := c.cfg.ResponseRateFloorPct / 100
	if floor > 0 && contacted >= minContactedForRate && snap.ResponseRate < floor {
		ok, err := c.alerter.Raise(ctx, &model.Alert{
			Type:     model.AlertCampaignMilestone,
			Severity: model.SeverityMedium,
			Title:    "Response rate below floor",
			Message:  fmt.Sprintf("response rate %.0f%% is below %.0f%%", snap.ResponseRate*100, c.cfg.ResponseRateFloorPct),
			Details: map[string]any{
				"response_rate": snap.ResponseRate,
				"contacted":     contacted,
			},
			CreatedAt: now,
		})
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}

	zap.L().Debug("monitoring: check complete",
		zap.Int("leads", snap.Total),
		zap.Int("alerts_raised", raised),
	)
	return raised, nil
}
