// Package crm mirrors opportunities into Salesforce.
package crm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/salesforce"
)

// defaultCloseWindow is how far out a new opportunity's close date is set.
const defaultCloseWindow = 90 * 24 * time.Hour

// Syncer pushes an opportunity and its lead to the CRM and returns the
// CRM opportunity id.
type Syncer interface {
	Push(ctx context.Context, l *model.Lead, o *model.Opportunity) (string, error)
}

// Salesforce implements Syncer against a Salesforce org.
type Salesforce struct {
	client salesforce.Client
	guard  *resilience.Guard
	now    func() time.Time
}

// NewSalesforce builds a Salesforce syncer.
func NewSalesforce(c salesforce.Client, guard *resilience.Guard) *Salesforce {
	return &Salesforce{client: c, guard: guard, now: func() time.Time { return time.Now().UTC() }}
}

// StageName maps an opportunity status onto the CRM stage picklist.
func StageName(s model.OpportunityStatus) string {
	switch s {
	case model.OpportunityProposed:
		return salesforce.StageProposal
	case model.OpportunityAccepted:
		return salesforce.StageClosedWon
	case model.OpportunityDeclined:
		return salesforce.StageClosedLost
	}
	return salesforce.StageProspecting
}

// Push creates the opportunity on first sync and updates its stage and
// score afterwards. The lead's contact is matched by email and created
// when missing.
func (s *Salesforce) Push(ctx context.Context, l *model.Lead, o *model.Opportunity) (string, error) {
	if o.ExternalID != "" {
		fields := map[string]any{
			"StageName":   StageName(o.Status),
			"Probability": o.MatchScore,
		}
		err := s.guard.Call(ctx, "salesforce", "update opportunity", func(ctx context.Context) error {
			return salesforce.UpdateOpportunity(ctx, s.client, o.ExternalID, fields)
		})
		return o.ExternalID, err
	}

	contactID, err := s.contact(ctx, l)
	if err != nil {
		return "", err
	}

	fields := map[string]any{
		"Name":        opportunityName(l, o),
		"StageName":   StageName(o.Status),
		"CloseDate":   s.now().Add(defaultCloseWindow).Format("2006-01-02"),
		"LeadSource":  string(l.Source),
		"Type":        o.Type,
		"Probability": o.MatchScore,
		"Description": fmt.Sprintf("Match score %.1f for %s at %s", o.MatchScore, l.DisplayName(), l.Company),
	}
	if contactID != "" {
		fields["ContactId"] = contactID
	}
	id, err := resilience.GuardVal(ctx, s.guard, "salesforce", "create opportunity", func(ctx context.Context) (string, error) {
		return salesforce.CreateOpportunity(ctx, s.client, fields)
	})
	if err != nil {
		return "", err
	}
	zap.L().Info("crm: opportunity created",
		zap.String("lead_id", l.ID),
		zap.String("opportunity_id", o.ID),
		zap.String("external_id", id),
	)
	return id, nil
}

func (s *Salesforce) contact(ctx context.Context, l *model.Lead) (string, error) {
	email := l.ContactEmail()
	if email == "" {
		return "", nil
	}
	existing, err := resilience.GuardVal(ctx, s.guard, "salesforce", "find contact", func(ctx context.Context) (*salesforce.Contact, error) {
		return salesforce.FindContactByEmail(ctx, s.client, email)
	})
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	last := l.LastName
	if last == "" {
		last = l.DisplayName()
	}
	fields := map[string]any{
		"FirstName": l.FirstName,
		"LastName":  last,
		"Email":     email,
		"Title":     l.Title,
	}
	return resilience.GuardVal(ctx, s.guard, "salesforce", "create contact", func(ctx context.Context) (string, error) {
		return salesforce.CreateContact(ctx, s.client, fields)
	})
}

func opportunityName(l *model.Lead, o *model.Opportunity) string {
	if o.Title != "" {
		return o.Title
	}
	return fmt.Sprintf("%s - %s", l.DisplayName(), o.Type)
}
