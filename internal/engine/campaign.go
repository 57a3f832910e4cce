package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// CreateCampaign validates and stores a new campaign in draft.
func (e *Engine) CreateCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.WorkflowType != "" {
		if _, err := e.orch.Catalog().ForType(c.WorkflowType); err != nil {
			return nil, model.Validationf("engine: campaign workflow %q has no template", c.WorkflowType)
		}
	}
	now := e.orch.Now()
	c.Status = model.CampaignDraft
	c.CreatedAt, c.UpdatedAt = now, now
	if err := e.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	zap.L().Info("engine: campaign created", zap.String("campaign_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

// SetCampaignStatus moves a campaign between draft, active, paused, and
// completed. A completed campaign cannot be reopened.
func (e *Engine) SetCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) (*model.Campaign, error) {
	switch status {
	case model.CampaignActive, model.CampaignPaused, model.CampaignCompleted:
	default:
		return nil, model.Validationf("engine: cannot set campaign status %q", status)
	}
	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == model.CampaignCompleted {
		return nil, model.Validationf("engine: campaign %s is completed", id)
	}
	if c.Status == status {
		return c, nil
	}
	c.Status = status
	c.UpdatedAt = e.orch.Now()
	if err := e.store.UpdateCampaign(ctx, c); err != nil {
		return nil, err
	}
	zap.L().Info("engine: campaign status changed", zap.String("campaign_id", id), zap.String("status", string(status)))
	return c, nil
}
