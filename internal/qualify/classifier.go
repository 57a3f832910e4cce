// Package qualify turns composite scores into qualification tiers and
// ranks opportunity archetypes for a lead.
package qualify

import (
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Classification contexts.
const (
	ContextComposite = "composite"
	ContextCombined  = "combined"
)

// DefaultQualificationConfig returns thresholds used when no config is loaded.
func DefaultQualificationConfig() config.QualificationConfig {
	return config.QualificationConfig{
		HotThreshold:        90,
		PotentialThreshold:  60,
		DevelopingThreshold: 40,
		OpportunityMinScore: 60,
		StaleAfterDays:      7,
		ResearchStaleDays:   30,
		BatchConcurrency:    8,

		CompositeQualifiedThreshold: defaultCompositeQualified,
		Sources: map[string]config.SourceProfile{
			string(model.SourceLinkedIn): {Mode: ContextComposite, QualifiedThreshold: 75},
			string(model.SourceEmail):    {Mode: ContextCombined, QualifiedThreshold: 80, CompositeWeight: 0.6, EngagementWeight: 0.4},
			"default":                    {Mode: ContextCombined, QualifiedThreshold: 80, CompositeWeight: 0.6, EngagementWeight: 0.4},
		},
	}
}

const defaultCompositeQualified = 75

var fallbackProfile = config.SourceProfile{Mode: ContextCombined, QualifiedThreshold: 80, CompositeWeight: 0.6, EngagementWeight: 0.4}

// Classifier maps scores to tiers under per-source profiles.
type Classifier struct {
	cfg config.QualificationConfig
}

// NewClassifier returns a Classifier for cfg.
func NewClassifier(cfg config.QualificationConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Decision records how a tier was reached.
type Decision struct {
	Tier      model.Tier `json:"tier"`
	Value     float64    `json:"value"`     // the number compared against thresholds
	Context   string     `json:"context"`   // composite or combined
	Threshold float64    `json:"threshold"` // qualified threshold applied
}

// Profile returns the classification profile for a lead source.
func (c *Classifier) Profile(source model.LeadSource) config.SourceProfile {
	if p, ok := c.cfg.Sources[string(source)]; ok {
		return p
	}
	if p, ok := c.cfg.Sources["default"]; ok {
		return p
	}
	return fallbackProfile
}

// Classify picks a tier. Leads without any engagement attempts are judged
// on composite alone, against the composite threshold, so missing
// engagement data never drags them down.
func (c *Classifier) Classify(source model.LeadSource, composite, engagement float64, hasEngagement bool) Decision {
	p := c.Profile(source)
	d := Decision{Value: composite, Context: ContextComposite, Threshold: p.QualifiedThreshold}
	switch {
	case p.Mode == ContextCombined && hasEngagement:
		cw, ew := p.CompositeWeight, p.EngagementWeight
		if cw+ew <= 0 {
			cw, ew = 0.6, 0.4
		}
		d.Value = (composite*cw + engagement*ew) / (cw + ew)
		d.Context = ContextCombined
	case p.Mode == ContextCombined:
		d.Threshold = c.compositeThreshold()
	}
	d.Tier = c.TierFor(d.Value, d.Threshold)
	return d
}

func (c *Classifier) compositeThreshold() float64 {
	if c.cfg.CompositeQualifiedThreshold > 0 {
		return c.cfg.CompositeQualifiedThreshold
	}
	return defaultCompositeQualified
}

// TierFor maps a value to a tier given the qualified threshold.
func (c *Classifier) TierFor(v, qualified float64) model.Tier {
	switch {
	case v >= c.cfg.HotThreshold:
		return model.TierHot
	case v >= qualified:
		return model.TierQualified
	case v >= c.cfg.PotentialThreshold:
		return model.TierPotential
	case v >= c.cfg.DevelopingThreshold:
		return model.TierDeveloping
	default:
		return model.TierUnqualified
	}
}
