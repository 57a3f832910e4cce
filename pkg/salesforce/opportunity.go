package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Contact is the subset of a Salesforce Contact used for matching leads.
type Contact struct {
	ID        string `json:"Id" salesforce:"Id"`
	FirstName string `json:"FirstName" salesforce:"FirstName"`
	LastName  string `json:"LastName" salesforce:"LastName"`
	Email     string `json:"Email" salesforce:"Email"`
	Title     string `json:"Title" salesforce:"Title"`
	AccountID string `json:"AccountId" salesforce:"AccountId"`
}

var contactFields = []string{"Id", "FirstName", "LastName", "Email", "Title", "AccountId"}

// Opportunity stage names used by sync.
const (
	StageProspecting = "Prospecting"
	StageProposal    = "Proposal/Price Quote"
	StageClosedWon   = "Closed Won"
	StageClosedLost  = "Closed Lost"
)

// FindContactByEmail returns the Contact with the given email, or nil when
// none exists.
func FindContactByEmail(ctx context.Context, c Client, email string) (*Contact, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Contact WHERE Email = '%s' LIMIT 1",
		strings.Join(contactFields, ", "),
		escapeSoql(email),
	)
	var contacts []Contact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find contact by email %s", email))
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return &contacts[0], nil
}

// CreateContact creates a Contact and returns its id.
func CreateContact(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if s, _ := fields["LastName"].(string); s == "" {
		return "", eris.New("sf: contact LastName is required")
	}
	id, err := c.InsertOne(ctx, "Contact", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create contact")
	}
	return id, nil
}

// CreateOpportunity creates an Opportunity and returns its id.
func CreateOpportunity(ctx context.Context, c Client, fields map[string]any) (string, error) {
	for _, k := range []string{"Name", "StageName", "CloseDate"} {
		if s, _ := fields[k].(string); s == "" {
			return "", eris.New(fmt.Sprintf("sf: opportunity %s is required", k))
		}
	}
	id, err := c.InsertOne(ctx, "Opportunity", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create opportunity")
	}
	return id, nil
}

// UpdateOpportunity writes fields onto an existing Opportunity.
func UpdateOpportunity(ctx context.Context, c Client, id string, fields map[string]any) error {
	if id == "" {
		return eris.New("sf: opportunity id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Opportunity", id, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update opportunity %s", id))
	}
	return nil
}

var soqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeSoql escapes a SOQL string literal.
func escapeSoql(s string) string {
	return soqlEscaper.Replace(s)
}
