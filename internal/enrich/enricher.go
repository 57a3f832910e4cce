// Package enrich adapts the contact-enrichment, research, and reply
// classification services to the lead model.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// Enricher resolves contact details for a discovered identity. It returns
// model.ErrNotFound when the identity is unknown.
type Enricher interface {
	Fetch(ctx context.Context, id model.Identity) (*model.Enrichment, error)
}

// lookupKeyProperty holds the normalized profile URL or email of a row in
// the enrichment database.
const lookupKeyProperty = "Lookup Key"

// NotionEnricher reads enrichment rows from a Notion database.
type NotionEnricher struct {
	client notion.Client
	dbID   string
	guard  *resilience.Guard
	now    func() time.Time
}

// NewNotionEnricher builds a NotionEnricher.
func NewNotionEnricher(c notion.Client, dbID string, guard *resilience.Guard) *NotionEnricher {
	return &NotionEnricher{client: c, dbID: dbID, guard: guard, now: func() time.Time { return time.Now().UTC() }}
}

// LookupKeys returns the keys an identity may be filed under, most
// specific first.
func LookupKeys(id model.Identity) []string {
	var keys []string
	if u := normalizeURL(id.LinkedInURL); u != "" {
		keys = append(keys, u)
	}
	if e := strings.ToLower(strings.TrimSpace(id.Email)); e != "" {
		keys = append(keys, e)
	}
	return keys
}

// Fetch implements Enricher.
func (e *NotionEnricher) Fetch(ctx context.Context, id model.Identity) (*model.Enrichment, error) {
	keys := LookupKeys(id)
	if len(keys) == 0 {
		return nil, model.NotFoundf("enrich: %s has no lookup key", id.FullName)
	}
	for _, key := range keys {
		page, err := resilience.GuardVal(ctx, e.guard, "notion", "enrichment lookup", func(ctx context.Context) (notionapi.Page, error) {
			p, err := notion.FindFirst(ctx, e.client, e.dbID, lookupKeyProperty, key)
			if eris.Is(err, notion.ErrNoMatch) {
				return p, model.NotFoundf("enrich: no row for %s", key)
			}
			return p, err
		})
		if eris.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return pageToEnrichment(page, e.now()), nil
	}
	return nil, model.NotFoundf("enrich: %s not found", strings.Join(keys, ", "))
}

func pageToEnrichment(p notionapi.Page, now time.Time) *model.Enrichment {
	props := p.Properties
	en := &model.Enrichment{
		Email:                 notion.Text(props, "Email"),
		EmailStatus:           strings.ToLower(notion.Text(props, "Email Status")),
		LinkedInURL:           notion.Text(props, "LinkedIn"),
		TwitterURL:            notion.Text(props, "Twitter"),
		OrganizationName:      notion.Text(props, "Organization"),
		OrganizationWebsite:   notion.Text(props, "Website"),
		OrganizationIndustry:  notion.Text(props, "Industry"),
		OrganizationEmployees: int(notion.Number(props, "Employees")),
		Provider:              "notion",
		EnrichedAt:            now,
	}
	if phone := notion.Text(props, "Phone"); phone != "" {
		en.Phones = []string{phone}
	}
	return en
}

func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}
