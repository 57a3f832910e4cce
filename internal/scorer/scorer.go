package scorer

import (
	"math"
	"time"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Component names reported in Result.Components.
const (
	ComponentProfile    = "profile"
	ComponentEnrichment = "enrichment"
	ComponentTitle      = "title"
	ComponentCompany    = "company"
	ComponentEngagement = "engagement"
	ComponentResearch   = "research"
)

// Result is the outcome of scoring one lead.
type Result struct {
	Composite     float64            `json:"composite"`
	Components    map[string]float64 `json:"components"`
	ConfigVersion string             `json:"config_version"`
	ConfigHash    string             `json:"config_hash"`
}

// Scorer computes composite scores under a fixed weight configuration.
type Scorer struct {
	cfg  config.ScoringConfig
	hash string
}

// New validates cfg and returns a Scorer bound to it.
func New(cfg config.ScoringConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, hash: ConfigHash(cfg)}, nil
}

// Config returns the weights this scorer was built with.
func (s *Scorer) Config() config.ScoringConfig { return s.cfg }

// Score computes the composite and per-component scores. It is pure given
// now and never fails; missing data scores neutral.
func (s *Scorer) Score(l *model.Lead, now time.Time) Result {
	n := s.cfg.NeutralScore
	comps := map[string]float64{
		ComponentProfile:    ProfileScore(l),
		ComponentEnrichment: EnrichmentScore(l.Enrichment, n),
		ComponentTitle:      TitleScore(l.Title, n),
		ComponentCompany:    CompanyScore(l, n),
		ComponentEngagement: EngagementPotential(l, now),
		ComponentResearch:   ResearchScore(l.Research, now, n),
	}

	composite := comps[ComponentProfile]*s.cfg.ProfileWeight +
		comps[ComponentEnrichment]*s.cfg.EnrichmentWeight +
		comps[ComponentTitle]*s.cfg.TitleWeight +
		comps[ComponentCompany]*s.cfg.CompanyWeight +
		comps[ComponentEngagement]*s.cfg.EngagementWeight +
		comps[ComponentResearch]*s.cfg.ResearchWeight

	return Result{
		Composite:     round2(clamp(composite)),
		Components:    comps,
		ConfigVersion: s.cfg.Version,
		ConfigHash:    s.hash,
	}
}

// ProfileScore rewards completeness of the discovered profile.
func ProfileScore(l *model.Lead) float64 {
	var pts float64
	add := func(ok bool, p float64) {
		if ok {
			pts += p
		}
	}
	add(l.DisplayName() != "", 10)
	add(l.Title != "", 15)
	add(l.Company != "", 15)
	add(l.Location != "", 10)
	add(l.Industry != "", 10)
	add(l.ContactEmail() != "", 20)
	add(l.Phone != "", 10)
	add(l.Headline != "", 5)
	add(l.ProfileImageURL != "", 5)
	return clamp(pts)
}

// EnrichmentScore rates the contact payload; no payload is neutral.
func EnrichmentScore(e *model.Enrichment, neutral float64) float64 {
	if e == nil {
		return neutral
	}
	var pts float64
	switch {
	case e.Email != "" && e.EmailStatus == "verified":
		pts += 40
	case e.Email != "" && e.EmailStatus == "likely_to_engage":
		pts += 30
	case e.Email != "":
		pts += 20
	}
	if len(e.Phones) > 0 {
		pts += 20
	}
	if e.OrganizationName != "" {
		pts += 10
	}
	if e.OrganizationWebsite != "" {
		pts += 5
	}
	if e.OrganizationIndustry != "" {
		pts += 5
	}
	if e.OrganizationEmployees > 0 {
		pts += 5
	}
	if e.LinkedInURL != "" {
		pts += 10
	}
	if e.TwitterURL != "" {
		pts += 5
	}
	return clamp(pts)
}

// TitleScore rates seniority plus governance specialties. A missing title
// is neutral; a present but unrecognized one scores its specialty bonus only.
func TitleScore(title string, neutral float64) float64 {
	if title == "" {
		return neutral
	}
	pts := titleLevelPoints[ClassifyTitle(title)]
	pts += 5 * float64(titleSpecialty.Count(Words(title)))
	return clamp(pts)
}

// CompanyScore blends size, industry, and reputation.
func CompanyScore(l *model.Lead, neutral float64) float64 {
	industry, name, employees := l.Industry, l.Company, 0
	if e := l.Enrichment; e != nil {
		if industry == "" {
			industry = e.OrganizationIndustry
		}
		if name == "" {
			name = e.OrganizationName
		}
		employees = e.OrganizationEmployees
	}
	size := SizeScore(l.CompanySize, employees, neutral)
	return clamp(size*0.4 + IndustryScore(industry, neutral)*0.3 + ReputationScore(name, neutral)*0.3)
}

// EngagementPotential rates observed outreach activity relative to now.
func EngagementPotential(l *model.Lead, now time.Time) float64 {
	pts := 50.0

	if l.LastActivityAt != nil {
		switch d := daysSince(*l.LastActivityAt, now); {
		case d <= 7:
			pts += 30
		case d <= 30:
			pts += 20
		case d <= 90:
			pts += 10
		}
	}

	switch {
	case l.ConnectionAcceptedAt != nil:
		pts += 20
	case l.ConnectionSentAt != nil:
		pts += 10
	}

	if l.LastResponseAt != nil {
		pts += 25
		switch d := daysSince(*l.LastResponseAt, now); {
		case d <= 7:
			pts += 15
		case d <= 30:
			pts += 10
		}
		if l.LastResponseSentiment == model.SentimentPositive {
			pts += 10
		}
	}

	pts += SocialScore(l.Social) * 0.2
	return clamp(pts)
}

// SocialScore rates public social activity.
func SocialScore(s *model.SocialSignals) float64 {
	if s == nil {
		return 0
	}
	var pts float64
	if s.RecentPosts > 0 {
		pts += 20
	}
	if s.ProfessionalContent {
		pts += 30
	}
	if s.EngagementRate > 0.05 {
		pts += 25
	}
	if s.ThoughtLeadership {
		pts += 25
	}
	return clamp(pts)
}

// ResearchScore rates research text for positive and governance signals and
// freshness; no research is neutral.
func ResearchScore(r *model.Research, now time.Time, neutral float64) float64 {
	if r == nil || r.Text == "" {
		return neutral
	}
	w := Words(r.Text)
	pts := 50.0
	pts += math.Min(float64(researchPositive.Count(w))*5, 30)
	pts += math.Min(float64(researchGovernance.Count(w))*8, 40)
	if !r.GeneratedAt.IsZero() {
		switch d := daysSince(r.GeneratedAt, now); {
		case d <= 7:
			pts += 15
		case d <= 30:
			pts += 10
		}
	}
	return clamp(pts)
}

// EngagementScore is the email engagement score: 30% open rate, 40% click
// rate, 30% reply rate. No sends scores 0.
func EngagementScore(s model.EngagementStats) float64 {
	if s.Sent <= 0 {
		return 0
	}
	sent := float64(s.Sent)
	rate := func(n int) float64 { return math.Min(float64(n)/sent, 1) }
	return round2(clamp(100 * (0.3*rate(s.Opened) + 0.4*rate(s.Clicked) + 0.3*rate(s.Replied))))
}

func daysSince(t, now time.Time) float64 {
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
