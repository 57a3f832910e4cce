package pipeline

import (
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/leadtest"
	"github.com/sells-group/outreach-cli/internal/model"
)

func at(h int) *time.Time {
	t := leadtest.Now.Add(time.Duration(h) * time.Hour)
	return &t
}

func TestDeriveRules(t *testing.T) {
	tests := []struct {
		name string
		lead model.Lead
		want model.Stage
	}{
		{"empty", model.Lead{}, model.StageDiscovery},
		{"scored", model.Lead{ScoredAt: at(0)}, model.StageQualification},
		{"enriched", model.Lead{Enrichment: &model.Enrichment{}}, model.StageQualification},
		{"connection sent", model.Lead{ConnectionSentAt: at(0)}, model.StageOutreach},
		{"accepted", model.Lead{ConnectionSentAt: at(0), ConnectionAcceptedAt: at(1)}, model.StageEngagement},
		{"messaged without accept", model.Lead{FirstMessageAt: at(0)}, model.StageEngagement},
		{"responded", model.Lead{ConnectionAcceptedAt: at(0), LastResponseAt: at(1)}, model.StageNurturing},
		{"qualified beats responded", model.Lead{LastResponseAt: at(1), Qualification: model.TierQualified}, model.StageQualified},
		{"hot is qualified", model.Lead{Qualification: model.TierHot}, model.StageQualified},
		{"potential is not qualified", model.Lead{Qualification: model.TierPotential, ScoredAt: at(0)}, model.StageQualification},
		{"opportunity", model.Lead{Qualification: model.TierHot, OpportunityID: "o1"}, model.StageOpportunity},
		{"opportunity accepted", model.Lead{OpportunityID: "o1", OpportunityStatus: model.OpportunityAccepted}, model.StageConverted},
		{"converted status", model.Lead{Status: model.LeadStatusConverted}, model.StageConverted},
		{"unsubscribed", model.Lead{Status: model.LeadStatusUnsubscribed, Qualification: model.TierHot}, model.StageClosedLost},
		{"not interested", model.Lead{Status: model.LeadStatusNotInterested}, model.StageClosedLost},
		{"declined", model.Lead{OpportunityID: "o1", OpportunityStatus: model.OpportunityDeclined}, model.StageClosedLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.lead
			assert.Equal(t, tt.want, Derive(&l))
		})
	}
}

func randomLead(r *rand.Rand) *model.Lead {
	maybe := func() *time.Time {
		if r.IntN(2) == 0 {
			return nil
		}
		return at(r.IntN(100))
	}
	tiers := []model.Tier{"", model.TierUnqualified, model.TierPotential, model.TierQualified, model.TierHot}
	statuses := []model.LeadStatus{model.LeadStatusDiscovered, model.LeadStatusReplied, model.LeadStatusUnsubscribed, model.LeadStatusConverted, model.LeadStatusNotInterested}
	opps := []model.OpportunityStatus{"", model.OpportunityProspect, model.OpportunityAccepted, model.OpportunityDeclined}
	l := &model.Lead{
		ID:                   "r",
		Status:               statuses[r.IntN(len(statuses))],
		Qualification:        tiers[r.IntN(len(tiers))],
		ScoredAt:             maybe(),
		ConnectionSentAt:     maybe(),
		ConnectionAcceptedAt: maybe(),
		FirstMessageAt:       maybe(),
		LastResponseAt:       maybe(),
		OpportunityStatus:    opps[r.IntN(len(opps))],
	}
	if r.IntN(3) == 0 {
		l.OpportunityID = "o"
	}
	return l
}

func TestDeriveIsPure(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		l := randomLead(r)
		before := l.Clone()
		first := Derive(l)
		assert.Equal(t, first, Derive(l))
		assert.Equal(t, first, Derive(l.Clone()))
		assert.True(t, reflect.DeepEqual(before, l), "Derive must not mutate the lead")
	}
}

func TestAdvanceIdempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 500; i++ {
		l := randomLead(r)
		d := Advance(l)
		Commit(l, d)
		again := Advance(l)
		assert.Empty(t, again.Effects, "second advance must be a no-op")
	}
}

func TestAdvanceEffects(t *testing.T) {
	t.Run("entering qualified starts VIP and alerts", func(t *testing.T) {
		l := leadtest.Executive("a")
		l.LastAdvancedStage = model.StageQualification
		l.Qualification = model.TierQualified
		l.Score = 85

		d := Advance(l)
		assert.Equal(t, model.StageQualified, d.To)
		require.Len(t, d.Effects, 2)
		assert.Equal(t, EffectStartWorkflow, d.Effects[0].Kind)
		assert.Equal(t, model.WorkflowVIPSequence, d.Effects[0].WorkflowType)
		assert.Equal(t, model.TriggerQualificationUpdated, d.Effects[0].Trigger)
		require.NotNil(t, d.Effects[1].Alert)
		assert.Equal(t, model.AlertQualificationUpdated, d.Effects[1].Alert.Type)
		assert.Equal(t, model.SeverityHigh, d.Effects[1].Alert.Severity)
		assert.Equal(t, model.StageQualification, l.LastAdvancedStage, "Advance must not mutate")

		Commit(l, d)
		assert.Equal(t, model.StageQualified, l.LastAdvancedStage)
		assert.Empty(t, Advance(l).Effects)
	})

	t.Run("engagement to nurturing starts response nurture", func(t *testing.T) {
		l := leadtest.Connected("b")
		l.LastAdvancedStage = model.StageEngagement
		l.Record(model.Activity{Kind: model.ActivityResponseReceived, At: leadtest.Now})

		d := Advance(l)
		assert.Equal(t, model.StageNurturing, d.To)
		require.Len(t, d.Effects, 1)
		assert.Equal(t, model.WorkflowResponseNurture, d.Effects[0].WorkflowType)
	})

	t.Run("outreach to nurturing starts nothing", func(t *testing.T) {
		l := leadtest.Junior("b2")
		l.LastAdvancedStage = model.StageOutreach
		l.ConnectionSentAt = at(-24)
		l.Record(model.Activity{Kind: model.ActivityResponseReceived, Channel: "email", At: leadtest.Now})

		d := Advance(l)
		assert.Equal(t, model.StageOutreach, d.From)
		assert.Equal(t, model.StageNurturing, d.To)
		assert.Empty(t, d.Effects)

		Commit(l, d)
		assert.Equal(t, model.StageNurturing, l.LastAdvancedStage)
	})

	t.Run("opportunity raises critical alert", func(t *testing.T) {
		l := leadtest.Executive("c")
		l.LastAdvancedStage = model.StageQualified
		l.Qualification = model.TierHot
		l.OpportunityID = "opp-1"
		l.OpportunityType = "board_director"

		d := Advance(l)
		require.Len(t, d.Effects, 1)
		assert.Equal(t, model.AlertConversionReady, d.Effects[0].Alert.Type)
		assert.Equal(t, model.SeverityCritical, d.Effects[0].Alert.Severity)
	})

	t.Run("unsubscribe cancels", func(t *testing.T) {
		l := leadtest.Connected("d")
		l.LastAdvancedStage = model.StageEngagement
		l.Record(model.Activity{Kind: model.ActivityUnsubscribed, At: leadtest.Now})

		d := Advance(l)
		assert.Equal(t, model.StageClosedLost, d.To)
		require.Len(t, d.Effects, 1)
		assert.Equal(t, EffectCancelExecution, d.Effects[0].Kind)
		assert.Equal(t, model.OutcomeUnsubscribed, d.Effects[0].Outcome)

		Commit(l, d)
		// Terminal stages have no outgoing transitions.
		l.Status = model.LeadStatusReplied
		d = Advance(l)
		assert.Empty(t, d.Effects)
		Commit(l, d)
		assert.Equal(t, model.StageClosedLost, l.LastAdvancedStage)
	})

	t.Run("regression has no effects and keeps watermark", func(t *testing.T) {
		l := leadtest.Executive("e")
		l.LastAdvancedStage = model.StageQualified
		l.Qualification = model.TierPotential

		d := Advance(l)
		assert.True(t, d.Regression())
		assert.Empty(t, d.Effects)
		Commit(l, d)
		assert.Equal(t, model.StageQualified, l.LastAdvancedStage)
	})
}

func TestMeasure(t *testing.T) {
	now := leadtest.Now
	scored := now.Add(-24 * time.Hour)
	leads := []*model.Lead{
		{ID: "1"},
		{ID: "2", ScoredAt: &scored},
		{ID: "3", ScoredAt: &scored, ConnectionSentAt: &scored},
		{ID: "4", ScoredAt: &scored, ConnectionSentAt: &scored, ConnectionAcceptedAt: &scored, LastResponseAt: &scored},
		{ID: "5", ScoredAt: &scored, ConnectionSentAt: &scored, ConnectionAcceptedAt: &scored, Qualification: model.TierQualified, OpportunityID: "o",
			OpportunityStatus: model.OpportunityAccepted, CreatedAt: now.Add(-10 * 24 * time.Hour), UpdatedAt: now},
	}

	s := Measure(leads, now)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.ByStage[model.StageDiscovery])
	assert.Equal(t, 1, s.ByStage[model.StageConverted])
	assert.Equal(t, 0, s.ByStage[model.StageClosedLost])
	assert.InDelta(t, 0.8, s.ConversionRates["discovery_to_qualification"], 0.001)
	assert.InDelta(t, 0.67, s.ConversionRates["outreach_to_engagement"], 0.001)
	assert.InDelta(t, 1.0, s.ConversionRates["opportunity_to_conversion"], 0.001)
	assert.InDelta(t, 0.33, s.ResponseRate, 0.001)
	assert.InDelta(t, 10, s.AvgCycleDays, 0.001)
	assert.InDelta(t, 15000, s.RevenuePipeline, 0.001)

	require.Len(t, s.Funnel, 8)
	assert.Equal(t, 5, s.Funnel[0].Reached)
	// engagement (2) -> nurturing (1) is exactly 50%, not a drop-off
	assert.False(t, s.Funnel[4].DropOff)
}

func TestTrends(t *testing.T) {
	series := []float64{7, 7, 7, 7, 7, 7, 7, 14, 14, 14, 14, 14, 14, 14}
	ma := MovingAverage(series, 7)
	assert.InDelta(t, 7, ma[6], 0.001)
	assert.InDelta(t, 14, ma[13], 0.001)
	assert.InDelta(t, 1.0, GrowthRate(series, 7), 0.001)
	assert.InDelta(t, 0, GrowthRate(series[:5], 7), 0.001)
}
