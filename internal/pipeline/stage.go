// Package pipeline derives a lead's funnel stage and decides which side
// effects a stage change triggers.
package pipeline

import (
	"github.com/sells-group/outreach-cli/internal/model"
)

// Derive returns the lead's stage. It is a pure function of lead state:
// the first matching rule wins.
func Derive(l *model.Lead) model.Stage {
	switch {
	case l.Status == model.LeadStatusConverted || l.OpportunityStatus == model.OpportunityAccepted:
		return model.StageConverted
	case l.Status == model.LeadStatusUnsubscribed || l.Status == model.LeadStatusNotInterested ||
		l.OpportunityStatus == model.OpportunityDeclined:
		return model.StageClosedLost
	case l.OpportunityID != "":
		return model.StageOpportunity
	case l.Qualification.AtLeast(model.TierQualified):
		return model.StageQualified
	case l.LastResponseAt != nil:
		return model.StageNurturing
	case l.ConnectionAcceptedAt != nil || l.FirstMessageAt != nil:
		return model.StageEngagement
	case l.ConnectionSentAt != nil:
		return model.StageOutreach
	case l.ScoredAt != nil || l.Enrichment != nil:
		return model.StageQualification
	default:
		return model.StageDiscovery
	}
}
