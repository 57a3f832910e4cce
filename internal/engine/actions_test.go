package engine

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/leadtest"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/qualify"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

func actionCtx(l *model.Lead, params map[string]any) workflow.ActionContext {
	return workflow.ActionContext{
		Lead:      l,
		Execution: &model.Execution{ID: "ex-1", LeadID: l.ID},
		Params:    params,
		Now:       leadtest.Now,
	}
}

func TestUpdateLeadScoreAction(t *testing.T) {
	h := newHarness(t)
	l := leadtest.Executive("exec")

	require.NoError(t, h.eng.updateLeadScore(context.Background(), actionCtx(l, map[string]any{"points": 10})))
	assert.InDelta(t, 10, l.ScoreBonus, 0.001)
	require.NotNil(t, l.ScoredAt)

	require.NoError(t, h.eng.updateLeadScore(context.Background(), actionCtx(l, nil)))
	assert.InDelta(t, 15, l.ScoreBonus, 0.001)
}

func TestTriggerResearchAction(t *testing.T) {
	h := newHarness(t)
	l := leadtest.Executive("exec")
	l.OpportunityType = qualify.StrategicAdvisor

	require.NoError(t, h.eng.triggerResearch(context.Background(), actionCtx(l, nil)))
	require.NotNil(t, l.Research)
	assert.Equal(t, qualify.StrategicAdvisor, l.Research.OpportunityType)
	assert.Contains(t, l.Research.Text, "Northwind Financial Corp")

	h.eng.researcher = nil
	err := h.eng.triggerResearch(context.Background(), actionCtx(l, nil))
	assert.True(t, eris.Is(err, model.ErrExternalUnavailable))
}

func TestCreateOpportunityAction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := leadtest.Executive("exec")
	l.OpportunityType = qualify.BoardDirector
	l.OpportunityScore = 87.5
	h.put(t, l)

	require.NoError(t, h.eng.createOpportunity(ctx, actionCtx(l, nil)))
	require.NotEmpty(t, l.OpportunityID)
	assert.Equal(t, model.OpportunityProspect, l.OpportunityStatus)

	opp, err := h.st.OpportunityForLead(ctx, "exec")
	require.NoError(t, err)
	assert.Equal(t, l.OpportunityID, opp.ID)
	assert.Equal(t, "Dana Whitfield - board director", opp.Title)
	assert.Equal(t, "Northwind Financial Corp", opp.Company)
	assert.InDelta(t, 87.5, opp.MatchScore, 0.001)
	assert.Equal(t, "006-exec", opp.ExternalID)

	require.NoError(t, h.eng.createOpportunity(ctx, actionCtx(l, nil)))
	assert.Len(t, h.crm.pushes, 1, "a second run leaves the existing opportunity alone")
}

func TestCreateOpportunityKeepsLocalRecordWhenCRMFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.crm.err = model.Unavailablef("salesforce down")
	l := leadtest.Executive("exec")
	h.put(t, l)

	require.NoError(t, h.eng.createOpportunity(ctx, actionCtx(l, map[string]any{"type": "investor", "title": "Seed round"})))
	opp, err := h.st.OpportunityForLead(ctx, "exec")
	require.NoError(t, err)
	assert.Equal(t, "investor", opp.Type)
	assert.Equal(t, "Seed round", opp.Title)
	assert.Empty(t, opp.ExternalID)
}

func TestCreateOpportunityNeedsType(t *testing.T) {
	h := newHarness(t)
	err := h.eng.createOpportunity(context.Background(), actionCtx(leadtest.Junior("jr"), nil))
	assert.True(t, eris.Is(err, model.ErrValidation))
}

func TestAddToCampaignAction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fin, err := h.eng.CreateCampaign(ctx, &model.Campaign{
		Name:     "Finance leaders",
		Audience: model.Audience{Industries: []string{"financial"}},
	})
	require.NoError(t, err)
	tech, err := h.eng.CreateCampaign(ctx, &model.Campaign{
		Name:     "Tech leaders",
		Audience: model.Audience{Industries: []string{"software"}},
	})
	require.NoError(t, err)

	l := leadtest.Executive("exec")
	ac := actionCtx(l, map[string]any{"campaign_id": fin.ID})
	require.NoError(t, h.eng.addToCampaign(ctx, ac))
	assert.Equal(t, fin.ID, l.CampaignID)
	assert.Equal(t, fin.ID, ac.Execution.CampaignID)

	require.NoError(t, h.eng.addToCampaign(ctx, actionCtx(l, map[string]any{"campaign_id": tech.ID})))
	assert.Equal(t, fin.ID, l.CampaignID, "lead outside the audience stays put")

	err = h.eng.addToCampaign(ctx, actionCtx(l, nil))
	assert.True(t, eris.Is(err, model.ErrValidation))

	err = h.eng.addToCampaign(ctx, actionCtx(l, map[string]any{"campaign_id": "gone"}))
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestSyncOpportunities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.put(t, leadtest.Executive("exec"))
	require.NoError(t, h.st.CreateOpportunity(ctx, &model.Opportunity{
		ID: "opp-1", LeadID: "exec", Type: qualify.BoardDirector, CreatedAt: leadtest.Now,
	}))
	require.NoError(t, h.st.CreateOpportunity(ctx, &model.Opportunity{
		ID: "opp-2", LeadID: "ghost", Type: qualify.Investor, CreatedAt: leadtest.Now,
	}))

	sum, err := h.eng.SyncOpportunities(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Considered: 2, Created: 1, Failed: 1}, sum)

	opp, err := h.st.GetOpportunity(ctx, "opp-1")
	require.NoError(t, err)
	assert.Equal(t, "006-exec", opp.ExternalID)

	sum, err = h.eng.SyncOpportunities(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	h.eng.crm = nil
	_, err = h.eng.SyncOpportunities(ctx, 0)
	assert.True(t, eris.Is(err, model.ErrExternalUnavailable))
}
