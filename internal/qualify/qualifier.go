package qualify

import (
	"math"
	"time"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/scorer"
)

// Result is the full qualification outcome for one lead.
type Result struct {
	LeadID                  string                   `json:"lead_id"`
	Tier                    model.Tier               `json:"tier"`
	Decision                Decision                 `json:"decision"`
	Score                   scorer.Result            `json:"score"`
	EffectiveComposite      float64                  `json:"effective_composite"`
	EngagementScore         float64                  `json:"engagement_score"`
	Matches                 []model.OpportunityMatch `json:"matches,omitempty"`
	QualificationReasons    []string                 `json:"qualification_reasons,omitempty"`
	DisqualificationReasons []string                 `json:"disqualification_reasons,omitempty"`
	RecommendedActions      []string                 `json:"recommended_actions"`
	Confidence              float64                  `json:"confidence"`
	NeedsResearch           bool                     `json:"needs_research"`
	NextReviewAt            time.Time                `json:"next_review_at"`
	QualifiedAt             time.Time                `json:"qualified_at"`
}

// TopMatch returns the best opportunity match, if any.
func (r Result) TopMatch() (model.OpportunityMatch, bool) {
	if len(r.Matches) == 0 {
		return model.OpportunityMatch{}, false
	}
	return r.Matches[0], true
}

// Qualifier scores, classifies, and matches leads.
type Qualifier struct {
	scorer     *scorer.Scorer
	classifier *Classifier
	cfg        config.QualificationConfig
}

// New returns a Qualifier.
func New(s *scorer.Scorer, cfg config.QualificationConfig) *Qualifier {
	return &Qualifier{scorer: s, classifier: NewClassifier(cfg), cfg: cfg}
}

// Classifier exposes the tier classifier.
func (q *Qualifier) Classifier() *Classifier { return q.classifier }

// Qualify computes a Result without touching the lead.
func (q *Qualifier) Qualify(l *model.Lead, now time.Time) Result {
	sr := q.scorer.Score(l, now)
	effective := math.Min(100, sr.Composite+l.ScoreBonus)
	eng := scorer.EngagementScore(l.Engagement)
	d := q.classifier.Classify(l.Source, effective, eng, l.Engagement.Sent > 0)

	r := Result{
		LeadID:             l.ID,
		Tier:               d.Tier,
		Decision:           d,
		Score:              sr,
		EffectiveComposite: effective,
		EngagementScore:    eng,
		Matches:            MatchOpportunities(l, now, q.cfg.OpportunityMinScore),
		Confidence:         confidence(l, sr),
		NeedsResearch:      needsResearch(l, now, q.cfg.ResearchStaleDays),
		NextReviewAt:       now.Add(reviewInterval(d.Tier)),
		QualifiedAt:        now,
	}
	r.QualificationReasons, r.DisqualificationReasons = reasons(l, sr)
	r.RecommendedActions = recommendedActions(d.Tier, sr)
	return r
}

// Apply writes a Result onto the lead. It is the only writer of the
// qualification fields besides Override. An overridden tier is kept while
// the scores refresh.
func Apply(l *model.Lead, r Result) {
	l.Qualification = r.Tier
	if l.TierOverride != "" {
		l.Qualification = l.TierOverride
	}
	l.Score = r.Score.Composite
	l.EngagementScore = r.EngagementScore
	l.OpportunityType, l.OpportunityScore = "", 0
	if top, ok := r.TopMatch(); ok {
		l.OpportunityType = top.Type
		l.OpportunityScore = top.Score
	}
	at := r.QualifiedAt
	l.ScoredAt = &at
	l.UpdatedAt = at
}

// Override pins an operator-chosen tier. Later re-qualification keeps it
// until ClearOverride.
func Override(l *model.Lead, tier model.Tier, now time.Time) error {
	if !tier.Valid() {
		return model.Validationf("qualify: unknown tier %q", tier)
	}
	l.TierOverride = tier
	l.Qualification = tier
	l.UpdatedAt = now
	return nil
}

// ClearOverride drops the pinned tier and applies r in its place.
func ClearOverride(l *model.Lead, r Result) {
	l.TierOverride = ""
	Apply(l, r)
}

// AddBonus raises the lead's score bonus and re-qualifies it.
func (q *Qualifier) AddBonus(l *model.Lead, points float64, now time.Time) Result {
	l.ScoreBonus += points
	r := q.Qualify(l, now)
	Apply(l, r)
	return r
}

// Stale reports whether a lead needs re-qualification.
func (q *Qualifier) Stale(l *model.Lead, now time.Time) bool {
	if l.Qualification == "" || l.ScoredAt == nil {
		return true
	}
	days := q.cfg.StaleAfterDays
	if days <= 0 {
		days = 7
	}
	return now.Sub(*l.ScoredAt) > time.Duration(days)*24*time.Hour
}

func reviewInterval(t model.Tier) time.Duration {
	day := 24 * time.Hour
	switch t {
	case model.TierHot:
		return 3 * day
	case model.TierQualified:
		return 7 * day
	case model.TierPotential:
		return 14 * day
	case model.TierDeveloping:
		return 30 * day
	default:
		return 90 * day
	}
}

func needsResearch(l *model.Lead, now time.Time, staleDays int) bool {
	if l.Research == nil || l.Research.Text == "" {
		return true
	}
	if staleDays <= 0 {
		staleDays = 30
	}
	return now.Sub(l.Research.GeneratedAt) > time.Duration(staleDays)*24*time.Hour
}

func confidence(l *model.Lead, sr scorer.Result) float64 {
	present := 0
	for _, f := range []string{l.DisplayName(), l.Title, l.Company, l.Industry} {
		if f != "" {
			present++
		}
	}
	c := float64(present) / 4 * 30
	if l.ContactEmail() != "" {
		c += 25
	}
	if l.Phone != "" || (l.Enrichment != nil && len(l.Enrichment.Phones) > 0) {
		c += 15
	}
	if l.Enrichment != nil {
		c += 20
	}
	if l.Research != nil && l.Research.Text != "" {
		c += 10
	}

	var mean float64
	for _, v := range sr.Components {
		mean += v
	}
	mean /= float64(len(sr.Components))
	var variance float64
	for _, v := range sr.Components {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(sr.Components))
	c += math.Max(0, 20-variance/10)

	return math.Round(math.Min(c, 100)*100) / 100
}

var componentLabels = []struct{ key, strong, weak string }{
	{scorer.ComponentProfile, "Complete professional profile", "Incomplete profile"},
	{scorer.ComponentEnrichment, "Rich contact data", "Limited contact data"},
	{scorer.ComponentTitle, "Senior title relevance", "Title below target seniority"},
	{scorer.ComponentCompany, "Strong company profile", ""},
	{scorer.ComponentEngagement, "High engagement potential", ""},
	{scorer.ComponentResearch, "Strong research signals", ""},
}

func reasons(l *model.Lead, sr scorer.Result) (qual, disq []string) {
	for _, c := range componentLabels {
		v := sr.Components[c.key]
		if v >= 80 {
			qual = append(qual, c.strong)
		}
		if v < 40 && c.weak != "" {
			disq = append(disq, c.weak)
		}
	}
	if scorer.ClassifyTitle(l.Title) == scorer.LevelCSuite {
		qual = append(qual, "C-suite executive")
	}
	if l.Enrichment.EmailVerified() {
		qual = append(qual, "Verified email address")
	}
	if l.ContactEmail() == "" {
		disq = append(disq, "No email address")
	}
	return qual, disq
}

func recommendedActions(t model.Tier, sr scorer.Result) []string {
	var out []string
	switch t {
	case model.TierHot:
		out = []string{
			"Prioritize immediate outreach",
			"Schedule executive conversation",
			"Prepare customized opportunity presentation",
		}
	case model.TierQualified:
		out = []string{
			"Initiate personalized outreach sequence",
			"Share relevant thought leadership content",
			"Research specific opportunity alignment",
		}
	case model.TierPotential:
		out = []string{
			"Continue nurturing with valuable content",
			"Monitor for engagement signals",
			"Gather additional qualification data",
		}
	default:
		out = []string{"Keep in long-term nurture pool"}
	}
	if sr.Components[scorer.ComponentEnrichment] < 50 {
		out = append(out, "Enrich contact data")
	}
	if sr.Components[scorer.ComponentResearch] < 50 {
		out = append(out, "Conduct research for personalization")
	}
	return out
}
