package qualify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/leadtest"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/scorer"
)

func newTestQualifier(t *testing.T) *Qualifier {
	t.Helper()
	s, err := scorer.New(scorer.DefaultConfig())
	require.NoError(t, err)
	return New(s, DefaultQualificationConfig())
}

func TestQualifyExecutiveIsQualifiedWithBoardMatch(t *testing.T) {
	q := newTestQualifier(t)
	l := leadtest.Executive("a")

	r := q.Qualify(l, leadtest.Now)
	assert.GreaterOrEqual(t, r.Score.Composite, 80.0)
	assert.Less(t, r.Score.Composite, 90.0)
	assert.Equal(t, model.TierQualified, r.Tier)
	assert.Equal(t, ContextComposite, r.Decision.Context)

	top, ok := r.TopMatch()
	require.True(t, ok)
	assert.Equal(t, BoardDirector, top.Type)
	assert.InDelta(t, 87.5, top.Score, 0.01)
	assert.True(t, top.Requirements["senior_title"])
	assert.True(t, top.Requirements["verified_contact"])

	assert.Contains(t, r.QualificationReasons, "C-suite executive")
	assert.Contains(t, r.QualificationReasons, "Verified email address")
	assert.Contains(t, r.RecommendedActions, "Initiate personalized outreach sequence")
	assert.True(t, r.NeedsResearch)
	assert.Equal(t, leadtest.Now.Add(7*24*time.Hour), r.NextReviewAt)

	Apply(l, r)
	assert.Equal(t, model.TierQualified, l.Qualification)
	assert.Equal(t, BoardDirector, l.OpportunityType)
	require.NotNil(t, l.ScoredAt)
}

func TestQualifyJuniorIsUnqualifiedWithoutMatch(t *testing.T) {
	q := newTestQualifier(t)
	l := leadtest.Junior("b")

	r := q.Qualify(l, leadtest.Now)
	assert.Equal(t, model.TierUnqualified, r.Tier)
	assert.Empty(t, r.Matches)
	assert.Contains(t, r.DisqualificationReasons, "No email address")
	assert.Contains(t, r.DisqualificationReasons, "Incomplete profile")
	assert.Contains(t, r.DisqualificationReasons, "Title below target seniority")

	Apply(l, r)
	assert.Empty(t, l.OpportunityType)
}

func TestMatchOpportunitiesOrderingAndThreshold(t *testing.T) {
	matches := MatchOpportunities(leadtest.Executive("a"), leadtest.Now, 0)
	require.Len(t, matches, len(archetypes))
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}

	// Archetypes without a title vocabulary tie; declaration order wins.
	var tied []string
	for _, m := range MatchOpportunities(leadtest.Junior("b"), leadtest.Now, 0) {
		if m.Score == 51 {
			tied = append(tied, m.Type)
		}
	}
	assert.Equal(t, []string{InterimExecutive, StrategicAdvisor, Investor, Partnership}, tied)

	assert.Empty(t, MatchOpportunities(leadtest.Junior("b"), leadtest.Now, 60))
}

func TestClassifierSourceProfiles(t *testing.T) {
	c := NewClassifier(DefaultQualificationConfig())

	tests := []struct {
		name          string
		source        model.LeadSource
		composite     float64
		engagement    float64
		hasEngagement bool
		want          model.Tier
		context       string
	}{
		{"linkedin composite qualified at 75", model.SourceLinkedIn, 76, 0, true, model.TierQualified, ContextComposite},
		{"email combined pulls down", model.SourceEmail, 85, 30, true, model.TierPotential, ContextCombined},
		{"email without sends uses composite", model.SourceEmail, 85, 0, false, model.TierQualified, ContextComposite},
		{"hot", model.SourceImport, 95, 90, true, model.TierHot, ContextCombined},
		{"developing", model.SourceLinkedIn, 45, 0, false, model.TierDeveloping, ContextComposite},
		{"unqualified", model.SourceLinkedIn, 10, 0, false, model.TierUnqualified, ContextComposite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Classify(tt.source, tt.composite, tt.engagement, tt.hasEngagement)
			assert.Equal(t, tt.want, d.Tier)
			assert.Equal(t, tt.context, d.Context)
		})
	}
}

func TestClassifyCompositeOnlyThreshold(t *testing.T) {
	c := NewClassifier(DefaultQualificationConfig())

	tests := []struct {
		source model.LeadSource
		value  float64
		want   model.Tier
	}{
		{model.SourceLinkedIn, 77, model.TierQualified},
		{model.SourceEmail, 77, model.TierQualified},
		{model.SourceImport, 77, model.TierQualified},
		{model.SourceLinkedIn, 74, model.TierPotential},
		{model.SourceEmail, 74, model.TierPotential},
		{model.SourceImport, 75, model.TierQualified},
	}
	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			d := c.Classify(tt.source, tt.value, 0, false)
			assert.Equal(t, ContextComposite, d.Context)
			assert.InDelta(t, 75, d.Threshold, 1e-9)
			assert.Equal(t, tt.want, d.Tier)
		})
	}

	t.Run("combined keeps the source threshold", func(t *testing.T) {
		d := c.Classify(model.SourceEmail, 77, 77, true)
		assert.Equal(t, ContextCombined, d.Context)
		assert.InDelta(t, 80, d.Threshold, 1e-9)
		assert.Equal(t, model.TierPotential, d.Tier)
	})

	t.Run("configured composite threshold", func(t *testing.T) {
		cfg := DefaultQualificationConfig()
		cfg.CompositeQualifiedThreshold = 78
		d := NewClassifier(cfg).Classify(model.SourceEmail, 77, 0, false)
		assert.InDelta(t, 78, d.Threshold, 1e-9)
		assert.Equal(t, model.TierPotential, d.Tier)
	})
}

func TestAddBonusCapsEffectiveComposite(t *testing.T) {
	q := newTestQualifier(t)
	l := leadtest.Executive("a")

	r := q.AddBonus(l, 20, leadtest.Now)
	assert.InDelta(t, 100, r.EffectiveComposite, 0.01)
	assert.Equal(t, model.TierHot, l.Qualification)
	assert.InDelta(t, 100, l.EffectiveScore(), 0.01)
}

func TestOverride(t *testing.T) {
	l := leadtest.Junior("b")
	require.NoError(t, Override(l, model.TierHot, leadtest.Now))
	assert.Equal(t, model.TierHot, l.Qualification)

	err := Override(l, "lukewarm", leadtest.Now)
	assert.True(t, eris.Is(err, model.ErrValidation))
}

func TestOverrideSurvivesRequalify(t *testing.T) {
	q := newTestQualifier(t)
	l := leadtest.Junior("b")
	require.NoError(t, Override(l, model.TierHot, leadtest.Now))
	assert.True(t, q.Stale(l, leadtest.Now), "an override does not count as scoring")

	r := q.Qualify(l, leadtest.Now)
	require.NotEqual(t, model.TierHot, r.Tier)
	Apply(l, r)
	assert.Equal(t, model.TierHot, l.Qualification)
	assert.Equal(t, model.TierHot, l.TierOverride)
	assert.InDelta(t, r.Score.Composite, l.Score, 0.001)
	assert.False(t, q.Stale(l, leadtest.Now))

	ClearOverride(l, q.Qualify(l, leadtest.Now))
	assert.Empty(t, l.TierOverride)
	assert.Equal(t, r.Tier, l.Qualification)
}

func TestRequalifyStale(t *testing.T) {
	q := newTestQualifier(t)
	fresh := leadtest.Executive("fresh")
	Apply(fresh, q.Qualify(fresh, leadtest.Now.Add(-time.Hour)))
	old := leadtest.Executive("old")
	Apply(old, q.Qualify(old, leadtest.Now.Add(-10*24*time.Hour)))
	never := leadtest.Junior("never")
	broken := leadtest.Junior("broken")

	var mu sync.Mutex
	seen := map[string]model.Tier{}
	sum, err := q.RequalifyStale(context.Background(), []*model.Lead{fresh, old, never, broken}, leadtest.Now,
		func(_ context.Context, id string, r Result) (bool, error) {
			if id == "broken" {
				return false, errors.New("store down")
			}
			mu.Lock()
			defer mu.Unlock()
			seen[id] = r.Tier
			return id == "never", nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Considered)
	assert.Equal(t, 2, sum.Requalified)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.TierChanges)
	assert.NotContains(t, seen, "fresh")
	assert.Equal(t, model.TierUnqualified, seen["never"])
}

func TestConfidence(t *testing.T) {
	q := newTestQualifier(t)
	rich := q.Qualify(leadtest.Executive("a"), leadtest.Now)
	sparse := q.Qualify(leadtest.Junior("b"), leadtest.Now)
	assert.Greater(t, rich.Confidence, sparse.Confidence)
	assert.LessOrEqual(t, rich.Confidence, 100.0)
}
