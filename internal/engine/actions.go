package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

const defaultScoreBonus = 5

func (e *Engine) registerActions() {
	e.orch.RegisterAction(workflow.ActionUpdateLeadScore, e.updateLeadScore)
	e.orch.RegisterAction(workflow.ActionTriggerResearch, e.triggerResearch)
	e.orch.RegisterAction(workflow.ActionCreateOpportunity, e.createOpportunity)
	e.orch.RegisterAction(workflow.ActionAddToCampaign, e.addToCampaign)
}

// updateLeadScore adds params.points (default 5) to the score bonus.
func (e *Engine) updateLeadScore(_ context.Context, ac workflow.ActionContext) error {
	pts := workflow.FloatParam(ac.Params, "points", defaultScoreBonus)
	r := e.qual.AddBonus(ac.Lead, pts, ac.Now)
	zap.L().Debug("engine: score bonus applied",
		zap.String("lead_id", ac.Lead.ID),
		zap.Float64("points", pts),
		zap.String("tier", string(r.Tier)),
	)
	return nil
}

func (e *Engine) triggerResearch(ctx context.Context, ac workflow.ActionContext) error {
	if e.researcher == nil {
		return model.Unavailablef("engine: no research gateway configured")
	}
	l := ac.Lead
	company := l.Company
	if l.Enrichment != nil && l.Enrichment.OrganizationName != "" {
		company = l.Enrichment.OrganizationName
	}
	oppType := workflow.StringParam(ac.Params, "opportunity_type", l.OpportunityType)
	res, err := e.researcher.Fetch(ctx, l.DisplayName(), company, oppType)
	if err != nil {
		return err
	}
	l.Research = res
	l.UpdatedAt = ac.Now
	return nil
}

// createOpportunity opens an opportunity for the lead and pushes it to the
// CRM. A lead that already has one is left alone. A CRM failure keeps the
// local record and is retried by the sync command.
func (e *Engine) createOpportunity(ctx context.Context, ac workflow.ActionContext) error {
	l := ac.Lead
	if l.OpportunityID != "" {
		return nil
	}
	oppType := workflow.StringParam(ac.Params, "type", l.OpportunityType)
	if oppType == "" {
		return model.Validationf("engine: lead %s has no opportunity type", l.ID)
	}
	company := l.Company
	if l.Enrichment != nil && l.Enrichment.OrganizationName != "" {
		company = l.Enrichment.OrganizationName
	}
	opp := &model.Opportunity{
		ID:         uuid.NewString(),
		LeadID:     l.ID,
		Type:       oppType,
		Title:      workflow.StringParam(ac.Params, "title", opportunityTitle(l, oppType)),
		Company:    company,
		Status:     model.OpportunityProspect,
		MatchScore: l.OpportunityScore,
		CreatedAt:  ac.Now,
		UpdatedAt:  ac.Now,
	}
	if err := e.store.CreateOpportunity(ctx, opp); err != nil {
		return eris.Wrapf(err, "engine: create opportunity for %s", l.ID)
	}
	l.OpportunityID = opp.ID
	l.OpportunityStatus = opp.Status
	l.UpdatedAt = ac.Now

	zap.L().Info("engine: opportunity created",
		zap.String("lead_id", l.ID),
		zap.String("opportunity_id", opp.ID),
		zap.String("type", oppType),
	)

	if e.crm == nil {
		return nil
	}
	if err := e.pushOpportunity(ctx, l, opp); err != nil {
		zap.L().Warn("engine: crm push failed, will retry on sync",
			zap.String("opportunity_id", opp.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (e *Engine) pushOpportunity(ctx context.Context, l *model.Lead, opp *model.Opportunity) error {
	extID, err := e.crm.Push(ctx, l, opp)
	if err != nil {
		return err
	}
	if extID == opp.ExternalID {
		return nil
	}
	opp.ExternalID = extID
	opp.UpdatedAt = e.orch.Now()
	return e.store.UpdateOpportunity(ctx, opp)
}

func opportunityTitle(l *model.Lead, oppType string) string {
	return fmt.Sprintf("%s - %s", l.DisplayName(), strings.ReplaceAll(oppType, "_", " "))
}

// addToCampaign moves the lead, and its running execution, into the
// campaign named by params.campaign_id.
func (e *Engine) addToCampaign(ctx context.Context, ac workflow.ActionContext) error {
	id := workflow.StringParam(ac.Params, "campaign_id", "")
	if id == "" {
		return model.Validationf("engine: add_to_campaign needs campaign_id")
	}
	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if !c.Matches(ac.Lead) {
		zap.L().Debug("engine: lead outside campaign audience",
			zap.String("lead_id", ac.Lead.ID),
			zap.String("campaign_id", id),
		)
		return nil
	}
	ac.Lead.CampaignID = c.ID
	ac.Lead.UpdatedAt = ac.Now
	if ac.Execution != nil {
		ac.Execution.CampaignID = c.ID
	}
	return nil
}
