package qualify

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/scorer"
)

// Archetype names.
const (
	BoardDirector    = "board_director"
	BoardAdvisor     = "board_advisor"
	Consultant       = "consultant"
	Speaker          = "speaker"
	InterimExecutive = "interim_executive"
	StrategicAdvisor = "strategic_advisor"
	Investor         = "investor"
	Partnership      = "partnership"
)

type archetype struct {
	name      string
	patterns  scorer.Phrases
	boosts    scorer.Phrases
	relevance map[string]float64 // industry category -> 0..1
}

// Declaration order breaks score ties.
var archetypes = []archetype{
	{
		name:     BoardDirector,
		patterns: scorer.NewPhrases("chief", "ceo", "cfo", "coo", "cro", "president", "board", "director", "chairman", "chair"),
		boosts:   scorer.NewPhrases("risk", "governance", "compliance", "audit", "board"),
		relevance: map[string]float64{
			"financial_services": 1.0, "banking": 1.0, "insurance": 0.9, "healthcare": 0.8,
			"pharmaceuticals": 0.8, "technology": 0.8, "energy": 0.7,
		},
	},
	{
		name:     BoardAdvisor,
		patterns: scorer.NewPhrases("chief", "president", "vice president", "vp", "director", "head of", "founder", "partner"),
		boosts:   scorer.NewPhrases("strategy", "governance", "risk", "advisory"),
		relevance: map[string]float64{
			"financial_services": 0.9, "technology": 0.9, "healthcare": 0.8, "consulting": 0.8,
		},
	},
	{
		name:     Consultant,
		patterns: scorer.NewPhrases("consultant", "advisor", "adviser", "partner", "principal", "director", "vice president", "vp", "head of"),
		boosts:   scorer.NewPhrases("risk", "compliance", "strategy", "transformation"),
		relevance: map[string]float64{
			"consulting": 1.0, "financial_services": 0.9, "technology": 0.8, "healthcare": 0.8,
		},
	},
	{
		name:     Speaker,
		patterns: scorer.NewPhrases("chief", "president", "vice president", "vp", "director", "head of", "founder", "author"),
		boosts:   scorer.NewPhrases("innovation", "digital", "strategy", "transformation"),
		relevance: map[string]float64{
			"technology": 0.9, "financial_services": 0.9, "consulting": 0.8, "healthcare": 0.7,
		},
	},
	{
		name:      InterimExecutive,
		relevance: map[string]float64{"manufacturing": 0.8, "healthcare": 0.8, "financial_services": 0.7},
	},
	{
		name:      StrategicAdvisor,
		relevance: map[string]float64{"technology": 0.9, "consulting": 0.9, "financial_services": 0.8},
	},
	{
		name:      Investor,
		relevance: map[string]float64{"financial_services": 0.9, "technology": 0.9, "banking": 0.8},
	},
	{
		name:      Partnership,
		relevance: map[string]float64{"technology": 0.8, "consulting": 0.8},
	},
}

// ArchetypeNames lists every archetype in declaration order.
func ArchetypeNames() []string {
	out := make([]string, len(archetypes))
	for i, a := range archetypes {
		out[i] = a.name
	}
	return out
}

// KnownArchetype reports whether name is a declared archetype.
func KnownArchetype(name string) bool {
	for _, a := range archetypes {
		if a.name == name {
			return true
		}
	}
	return false
}

var networkIndustries = map[string]bool{"financial_services": true, "banking": true, "technology": true, "consulting": true}

// MatchOpportunities scores every archetype and returns those at or above
// minScore, best first. Ties keep declaration order.
func MatchOpportunities(l *model.Lead, now time.Time, minScore float64) []model.OpportunityMatch {
	titleWords := scorer.Words(l.Title)
	level := scorer.ClassifyTitle(l.Title)
	industry := l.Industry
	if industry == "" && l.Enrichment != nil {
		industry = l.Enrichment.OrganizationIndustry
	}
	category := scorer.IndustryCategory(industry)
	employees := scorer.EmployeeCount(l.CompanySize)
	if employees == 0 && l.Enrichment != nil {
		employees = l.Enrichment.OrganizationEmployees
	}
	senior := level >= scorer.LevelSeniorExec

	requirements := map[string]bool{
		"senior_title":      level >= scorer.LevelVP,
		"verified_contact":  l.Enrichment.EmailVerified(),
		"relevant_industry": scorer.IndustryScore(industry, 0) >= 80,
		"linkedin_profile":  l.LinkedInURL != "" || (l.Enrichment != nil && l.Enrichment.LinkedInURL != ""),
	}

	var out []model.OpportunityMatch
	for _, a := range archetypes {
		title := 50.0
		if len(a.patterns) > 0 {
			title = 0
			if len(titleWords) > 0 && a.patterns.Any(titleWords) {
				title = 70 + 15*float64(a.boosts.Count(titleWords))
			}
		}

		ind := 0.5
		if r, ok := a.relevance[category]; ok {
			ind = r
		}

		stage := 50.0
		switch a.name {
		case BoardDirector:
			if employees >= 1000 {
				stage += 30
			}
		case Consultant:
			if employees > 0 {
				stage += 20
			}
		}

		network := 50.0
		if senior {
			network += 30
		}
		if networkIndustries[category] {
			network += 20
		}

		avail := 60.0
		if l.LastActivityAt != nil && now.Sub(*l.LastActivityAt) <= 30*24*time.Hour {
			avail += 20
		}
		if l.LastResponseAt != nil {
			avail += 20
		}

		comps := map[string]float64{
			"title":         math.Min(title, 100),
			"industry":      ind * 100,
			"company_stage": math.Min(stage, 100),
			"network":       math.Min(network, 100),
			"availability":  math.Min(avail, 100),
		}
		score := comps["title"]*0.30 + comps["industry"]*0.25 + comps["company_stage"]*0.20 +
			comps["network"]*0.15 + comps["availability"]*0.10
		score = math.Round(score*100) / 100
		if score < minScore {
			continue
		}
		out = append(out, model.OpportunityMatch{
			Type:         a.name,
			Score:        score,
			Requirements: requirements,
			Components:   comps,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
