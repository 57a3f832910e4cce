package model

import "time"

// AlertType names the condition that raised an alert.
type AlertType string

const (
	AlertHotLead              AlertType = "hot_lead"
	AlertResponseReceived     AlertType = "response_received"
	AlertQualificationUpdated AlertType = "qualification_updated"
	AlertConversionReady      AlertType = "conversion_ready"
	AlertWorkflowStalled      AlertType = "workflow_stalled"
	AlertCampaignMilestone    AlertType = "campaign_milestone"
	AlertInvariantViolation   AlertType = "invariant_violation"
)

// Severity ranks alert urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities, critical highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Alert is an operator-facing notification.
type Alert struct {
	ID             string         `json:"id"`
	Type           AlertType      `json:"type"`
	Severity       Severity       `json:"severity"`
	LeadID         string         `json:"lead_id,omitempty"`
	CampaignID     string         `json:"campaign_id,omitempty"`
	ExecutionID    string         `json:"execution_id,omitempty"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	ActionRequired bool           `json:"action_required"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	CampaignID   string
	LeadID       string
	Type         AlertType
	IncludeAcked bool
	Since        time.Time
	Limit        int
}
