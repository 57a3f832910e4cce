package pipeline

import (
	"math"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Revenue model for the qualified pipeline.
const (
	avgOpportunityValue = 50_000.0
	opportunityWinRate  = 0.3
	dropOffThreshold    = 0.5
)

// FunnelStep is the number of leads that reached a stage.
type FunnelStep struct {
	Stage   model.Stage `json:"stage"`
	Reached int         `json:"reached"`
	Rate    float64     `json:"rate"`     // fraction of the previous step
	DropOff bool        `json:"drop_off"` // rate below 50%
}

// Snapshot summarizes the whole funnel at a point in time.
type Snapshot struct {
	GeneratedAt               time.Time           `json:"generated_at"`
	Total                     int                 `json:"total"`
	ByStage                   map[model.Stage]int `json:"by_stage"`
	ByTier                    map[model.Tier]int  `json:"by_tier"`
	ConversionRates           map[string]float64  `json:"conversion_rates"`
	QualificationRate         float64             `json:"qualification_rate"`
	ResponseRate              float64             `json:"response_rate"`
	OpportunityConversionRate float64             `json:"opportunity_conversion_rate"`
	AvgCycleDays              float64             `json:"avg_cycle_days"`
	QualifiedPerDay           float64             `json:"qualified_per_day"` // last 30 days
	RevenuePipeline           float64             `json:"revenue_pipeline"`
	Funnel                    []FunnelStep        `json:"funnel"`
}

var funnelStages = []model.Stage{
	model.StageDiscovery, model.StageQualification, model.StageOutreach, model.StageEngagement,
	model.StageNurturing, model.StageQualified, model.StageOpportunity, model.StageConverted,
}

// reached reports whether the lead ever got to stage s, judged from
// milestones rather than its current stage so closed leads still count
// for the stages they passed.
func reached(l *model.Lead, s model.Stage) bool {
	switch s {
	case model.StageDiscovery:
		return true
	case model.StageQualification:
		return l.ScoredAt != nil || l.Enrichment != nil
	case model.StageOutreach:
		return l.ConnectionSentAt != nil || l.FirstMessageAt != nil
	case model.StageEngagement:
		return l.ConnectionAcceptedAt != nil || l.FirstMessageAt != nil
	case model.StageNurturing:
		return l.LastResponseAt != nil
	case model.StageQualified:
		return l.Qualification.AtLeast(model.TierQualified) || l.OpportunityID != ""
	case model.StageOpportunity:
		return l.OpportunityID != ""
	case model.StageConverted:
		return Derive(l) == model.StageConverted
	}
	return false
}

// Measure builds a Snapshot over leads.
func Measure(leads []*model.Lead, now time.Time) Snapshot {
	s := Snapshot{
		GeneratedAt:     now,
		Total:           len(leads),
		ByStage:         make(map[model.Stage]int, len(model.Stages)),
		ByTier:          make(map[model.Tier]int),
		ConversionRates: make(map[string]float64, 4),
	}
	for _, st := range model.Stages {
		s.ByStage[st] = 0
	}

	counts := make(map[model.Stage]int, len(funnelStages))
	var cycleDays float64
	var cycles, recentQualified int
	for _, l := range leads {
		s.ByStage[Derive(l)]++
		if l.Qualification != "" {
			s.ByTier[l.Qualification]++
		}
		for _, st := range funnelStages {
			if reached(l, st) {
				counts[st]++
			}
		}
		if reached(l, model.StageConverted) && !l.CreatedAt.IsZero() {
			cycleDays += l.UpdatedAt.Sub(l.CreatedAt).Hours() / 24
			cycles++
		}
		if l.Qualification.AtLeast(model.TierQualified) && l.ScoredAt != nil && now.Sub(*l.ScoredAt) <= 30*24*time.Hour {
			recentQualified++
		}
	}

	s.ConversionRates["discovery_to_qualification"] = ratio(counts[model.StageQualification], counts[model.StageDiscovery])
	s.ConversionRates["outreach_to_engagement"] = ratio(counts[model.StageEngagement], counts[model.StageOutreach])
	s.ConversionRates["qualified_to_opportunity"] = ratio(counts[model.StageOpportunity], counts[model.StageQualified])
	s.ConversionRates["opportunity_to_conversion"] = ratio(counts[model.StageConverted], counts[model.StageOpportunity])
	s.QualificationRate = ratio(counts[model.StageQualified], s.Total)
	s.ResponseRate = ratio(counts[model.StageNurturing], counts[model.StageOutreach])
	s.OpportunityConversionRate = s.ConversionRates["opportunity_to_conversion"]
	if cycles > 0 {
		s.AvgCycleDays = round2(cycleDays / float64(cycles))
	}
	s.QualifiedPerDay = round2(float64(recentQualified) / 30)
	s.RevenuePipeline = float64(counts[model.StageQualified]) * avgOpportunityValue * opportunityWinRate

	prev := 0
	for i, st := range funnelStages {
		step := FunnelStep{Stage: st, Reached: counts[st], Rate: 1}
		if i > 0 {
			step.Rate = ratio(counts[st], prev)
			step.DropOff = prev > 0 && step.Rate < dropOffThreshold
		}
		s.Funnel = append(s.Funnel, step)
		prev = counts[st]
	}
	return s
}

// MovingAverage smooths a daily series over window days. Early points
// average what is available.
func MovingAverage(series []float64, window int) []float64 {
	if window <= 0 {
		window = 7
	}
	out := make([]float64, len(series))
	var sum float64
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		n := math.Min(float64(i+1), float64(window))
		out[i] = round2(sum / n)
	}
	return out
}

// GrowthRate compares the mean of the last window with the window before
// it. It returns 0 when there is not enough history.
func GrowthRate(series []float64, window int) float64 {
	if window <= 0 || len(series) < 2*window {
		return 0
	}
	var cur, prev float64
	for _, v := range series[len(series)-window:] {
		cur += v
	}
	for _, v := range series[len(series)-2*window : len(series)-window] {
		prev += v
	}
	if prev == 0 {
		return 0
	}
	return round2((cur - prev) / prev)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return round2(float64(num) / float64(den))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
