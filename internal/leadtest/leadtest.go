// Package leadtest builds lead fixtures shared by package tests.
package leadtest

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Now is the fixed clock used across tests.
var Now = time.Date(2026, 4, 6, 14, 0, 0, 0, time.UTC)

// Executive returns a fully profiled, enriched C-suite lead in financial
// services at a 10000+ employee company. It scores in the qualified band.
func Executive(id string) *model.Lead {
	return &model.Lead{
		ID: id,
		Identity: model.Identity{
			FirstName:   "Dana",
			LastName:    "Whitfield",
			FullName:    "Dana Whitfield",
			Title:       "Chief Risk Officer",
			Company:     "Northwind Financial Corp",
			Industry:    "Financial Services",
			Location:    "Charlotte, NC",
			Headline:    "Risk and governance leader",
			Email:       "dana@northwind.example",
			LinkedInURL: "https://linkedin.example/in/dana",
			CompanySize: "10000+",
		},
		Source: model.SourceLinkedIn,
		Enrichment: &model.Enrichment{
			Email:                 "dana@northwind.example",
			EmailStatus:           "verified",
			Phones:                []string{"+1-704-555-0101"},
			LinkedInURL:           "https://linkedin.example/in/dana",
			OrganizationName:      "Northwind Financial Corp",
			OrganizationWebsite:   "https://northwind.example",
			OrganizationIndustry:  "Financial Services",
			OrganizationEmployees: 12000,
			EnrichedAt:            Now.Add(-24 * time.Hour),
		},
		Status:         model.LeadStatusDiscovered,
		SequenceStatus: model.SequenceNone,
		CreatedAt:      Now.Add(-48 * time.Hour),
		UpdatedAt:      Now.Add(-24 * time.Hour),
	}
}

// Junior returns a sparse lead with only a name and a junior title.
func Junior(id string) *model.Lead {
	return &model.Lead{
		ID: id,
		Identity: model.Identity{
			FirstName: "Sam",
			LastName:  "Reyes",
			Title:     "Analyst",
		},
		Source:         model.SourceLinkedIn,
		Status:         model.LeadStatusDiscovered,
		SequenceStatus: model.SequenceNone,
		CreatedAt:      Now.Add(-48 * time.Hour),
		UpdatedAt:      Now.Add(-48 * time.Hour),
	}
}

// Connected returns Executive with a sent and accepted connection.
func Connected(id string) *model.Lead {
	l := Executive(id)
	l.Record(model.Activity{Kind: model.ActivityConnectionSent, At: Now.Add(-6 * time.Hour)})
	l.Record(model.Activity{Kind: model.ActivityConnectionAccepted, At: Now.Add(-5 * time.Hour)})
	return l
}
