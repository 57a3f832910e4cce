package model

import "time"

// OpportunityStatus tracks an opportunity through the proposal cycle.
type OpportunityStatus string

const (
	OpportunityProspect OpportunityStatus = "prospect"
	OpportunityProposed OpportunityStatus = "proposed"
	OpportunityAccepted OpportunityStatus = "accepted"
	OpportunityDeclined OpportunityStatus = "declined"
)

// Valid reports whether s is a known status.
func (s OpportunityStatus) Valid() bool {
	switch s {
	case OpportunityProspect, OpportunityProposed, OpportunityAccepted, OpportunityDeclined:
		return true
	}
	return false
}

// Opportunity is a concrete engagement offered to a lead.
type Opportunity struct {
	ID         string            `json:"id"`
	LeadID     string            `json:"lead_id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Company    string            `json:"company"`
	Status     OpportunityStatus `json:"status"`
	MatchScore float64           `json:"match_score"`
	ExternalID string            `json:"external_id,omitempty"` // CRM record id
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// OpportunityMatch is one ranked archetype fit for a lead.
type OpportunityMatch struct {
	Type         string             `json:"type"`
	Score        float64            `json:"score"`
	Requirements map[string]bool    `json:"requirements,omitempty"`
	Components   map[string]float64 `json:"components,omitempty"`
}

// LeadFilter narrows lead listings.
type LeadFilter struct {
	CampaignID    string
	Status        LeadStatus
	Qualification Tier
	ScoredBefore  time.Time // include leads never scored or scored before this time
	Limit         int
}

// ExecutionFilter narrows execution listings.
type ExecutionFilter struct {
	LeadID     string
	CampaignID string
	TemplateID string
	Statuses   []ExecutionStatus
	Limit      int
}
