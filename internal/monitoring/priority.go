// Package monitoring ranks leads by urgency, raises deduplicated alerts,
// and exports pipeline health as Prometheus metrics.
package monitoring

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// PriorityTier buckets a priority score.
type PriorityTier string

const (
	PriorityCritical PriorityTier = "critical"
	PriorityHigh     PriorityTier = "high"
	PriorityMedium   PriorityTier = "medium"
	PriorityLow      PriorityTier = "low"
)

const (
	weightScore       = 0.30
	weightEngagement  = 0.25
	weightTier        = 0.20
	weightRecency     = 0.15
	weightOpportunity = 0.10

	recencyDecayPerDay = 5.0
)

var tierScale = map[model.Tier]float64{
	model.TierHot:         100,
	model.TierQualified:   80,
	model.TierPotential:   60,
	model.TierDeveloping:  40,
	model.TierUnqualified: 20,
}

// Priority is a lead's urgency ranking.
type Priority struct {
	LeadID     string             `json:"lead_id"`
	Score      float64            `json:"score"`
	Tier       PriorityTier       `json:"tier"`
	Components map[string]float64 `json:"components"`
}

// PriorityScore ranks one lead at now.
func PriorityScore(l *model.Lead, now time.Time) Priority {
	recency := 0.0
	if l.LastResponseAt != nil {
		days := now.Sub(*l.LastResponseAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		recency = math.Max(0, 100-recencyDecayPerDay*days)
	}

	c := map[string]float64{
		"score":       l.EffectiveScore(),
		"engagement":  clamp(l.EngagementScore),
		"tier":        tierScale[l.Qualification],
		"recency":     recency,
		"opportunity": clamp(l.OpportunityScore),
	}
	total := c["score"]*weightScore +
		c["engagement"]*weightEngagement +
		c["tier"]*weightTier +
		c["recency"]*weightRecency +
		c["opportunity"]*weightOpportunity
	total = math.Round(math.Min(100, total)*100) / 100

	return Priority{LeadID: l.ID, Score: total, Tier: TierFor(total), Components: c}
}

// TierFor maps a priority score to its tier.
func TierFor(score float64) PriorityTier {
	switch {
	case score >= 90:
		return PriorityCritical
	case score >= 75:
		return PriorityHigh
	case score >= 50:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rank scores leads and sorts them most urgent first. Ties keep input order.
func Rank(leads []*model.Lead, now time.Time) []Priority {
	out := make([]Priority, len(leads))
	for i, l := range leads {
		out[i] = PriorityScore(l, now)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
