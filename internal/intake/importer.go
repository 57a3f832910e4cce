package intake

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// Notion intake page statuses.
const (
	StatusQueued   = "Queued"
	StatusImported = "Imported"
	StatusRejected = "Rejected"
)

// LeadImporter persists new leads and reports how many were inserted.
type LeadImporter interface {
	ImportLeads(ctx context.Context, leads []*model.Lead) (int, error)
}

// Summary counts the outcome of one import.
type Summary struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Existing int `json:"existing"`
	Invalid  int `json:"invalid"`
}

// Importer loads leads from files and Notion into the store.
type Importer struct {
	store LeadImporter
	now   func() time.Time
}

// NewImporter builds an Importer.
func NewImporter(store LeadImporter) *Importer {
	return &Importer{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// ImportFile imports every row of a .xlsx or .csv file. Rows whose source
// key is already stored are left untouched.
func (im *Importer) ImportFile(ctx context.Context, path string, opts SheetOptions, campaignID string) (Summary, error) {
	records, err := ReadFile(ctx, path, opts)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	var leads []*model.Lead
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		sum.Read++
		l, err := ToLead(r, model.SourceImport)
		if err != nil {
			sum.Invalid++
			zap.L().Debug("intake: skip row", zap.Int("row", i+2), zap.Error(err))
			continue
		}
		if seen[l.ID] {
			sum.Existing++
			continue
		}
		seen[l.ID] = true
		l.CampaignID = campaignID
		leads = append(leads, l)
	}

	if err := im.persist(ctx, leads, &sum); err != nil {
		return sum, err
	}
	zap.L().Info("intake: file imported",
		zap.String("path", path),
		zap.Int("read", sum.Read),
		zap.Int("inserted", sum.Inserted),
		zap.Int("existing", sum.Existing),
		zap.Int("invalid", sum.Invalid),
	)
	return sum, nil
}

// ImportNotion imports queued pages of the Notion intake database and moves
// each page to Imported, or Rejected when it lacks identity.
func (im *Importer) ImportNotion(ctx context.Context, c notion.Client, dbID, campaignID string) (Summary, error) {
	pages, err := notion.QueryByStatus(ctx, c, dbID, StatusQueued)
	if err != nil {
		return Summary{}, eris.Wrap(err, "intake: query notion")
	}

	var sum Summary
	var leads []*model.Lead
	var accepted, rejected []string
	for _, p := range pages {
		sum.Read++
		l, err := PageToLead(p)
		if err != nil {
			sum.Invalid++
			rejected = append(rejected, string(p.ID))
			continue
		}
		l.CampaignID = campaignID
		leads = append(leads, l)
		accepted = append(accepted, string(p.ID))
	}

	if err := im.persist(ctx, leads, &sum); err != nil {
		return sum, err
	}

	now := im.now()
	mark := func(ids []string, status string) {
		for _, id := range ids {
			if err := notion.SetStatus(ctx, c, id, status, "Imported At", now); err != nil {
				zap.L().Warn("intake: update notion page", zap.String("page_id", id), zap.Error(err))
			}
		}
	}
	mark(accepted, StatusImported)
	mark(rejected, StatusRejected)

	zap.L().Info("intake: notion imported",
		zap.String("database", dbID),
		zap.Int("read", sum.Read),
		zap.Int("inserted", sum.Inserted),
		zap.Int("invalid", sum.Invalid),
	)
	return sum, nil
}

func (im *Importer) persist(ctx context.Context, leads []*model.Lead, sum *Summary) error {
	if len(leads) == 0 {
		return nil
	}
	n, err := im.store.ImportLeads(ctx, leads)
	if err != nil {
		return eris.Wrap(err, "intake: import leads")
	}
	sum.Inserted = n
	sum.Existing += len(leads) - n
	return nil
}

// PageToLead maps a Notion intake page onto a lead.
func PageToLead(p notionapi.Page) (*model.Lead, error) {
	props := p.Properties
	id := model.Identity{
		FullName:    notion.Text(props, "Name"),
		FirstName:   notion.Text(props, "First Name"),
		LastName:    notion.Text(props, "Last Name"),
		Title:       notion.Text(props, "Title"),
		Company:     notion.Text(props, "Company"),
		Industry:    notion.Text(props, "Industry"),
		Location:    notion.Text(props, "Location"),
		Email:       notion.Text(props, "Email"),
		Phone:       notion.Text(props, "Phone"),
		LinkedInURL: notion.Text(props, "LinkedIn"),
		CompanySize: notion.Text(props, "Company Size"),
	}
	return NewLead(id, parseSource(notion.Text(props, "Source"), model.SourceImport))
}
