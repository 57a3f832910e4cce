package intake

import (
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/outreach-cli/internal/model"
)

// leadNamespace scopes the deterministic ids of imported leads.
var leadNamespace = uuid.MustParse("5b0f8f0e-4c1e-4b9a-9a57-2f8d8b1c7e31")

// columns lists the accepted header spellings per lead field.
var columns = map[string][]string{
	"first_name":   {"first name", "firstname", "given name"},
	"last_name":    {"last name", "lastname", "surname", "family name"},
	"full_name":    {"full name", "name"},
	"title":        {"title", "job title", "position"},
	"company":      {"company", "company name", "organization", "organisation"},
	"industry":     {"industry"},
	"location":     {"location", "city", "region"},
	"headline":     {"headline"},
	"email":        {"email", "email address", "work email"},
	"phone":        {"phone", "phone number", "mobile"},
	"linkedin":     {"linkedin", "linkedin url", "profile url", "linkedin profile"},
	"company_size": {"company size", "employees", "headcount"},
	"source":       {"source", "lead source"},
}

func (r Record) get(field string) string {
	for _, k := range columns[field] {
		if v := r[k]; v != "" {
			return v
		}
	}
	return ""
}

// SourceKey is the identity used to deduplicate a lead across imports:
// the profile URL, else the email, else name and company.
func SourceKey(id model.Identity) string {
	if u := normalizeURL(id.LinkedInURL); u != "" {
		return "linkedin:" + u
	}
	if e := strings.ToLower(strings.TrimSpace(id.Email)); e != "" {
		return "email:" + e
	}
	name := strings.ToLower(strings.TrimSpace(id.FullName))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(id.FirstName + " " + id.LastName))
	}
	company := strings.ToLower(strings.TrimSpace(id.Company))
	if name == "" || company == "" {
		return ""
	}
	return "name:" + name + "|" + company
}

// LeadID derives the stable id of a lead from its source key.
func LeadID(key string) string {
	return uuid.NewSHA1(leadNamespace, []byte(key)).String()
}

// ToLead maps a record onto a new lead. Records without enough identity to
// build a source key are rejected.
func ToLead(r Record, defaultSource model.LeadSource) (*model.Lead, error) {
	id := model.Identity{
		FirstName:   r.get("first_name"),
		LastName:    r.get("last_name"),
		FullName:    r.get("full_name"),
		Title:       r.get("title"),
		Company:     r.get("company"),
		Industry:    r.get("industry"),
		Location:    r.get("location"),
		Headline:    r.get("headline"),
		Email:       r.get("email"),
		Phone:       r.get("phone"),
		LinkedInURL: r.get("linkedin"),
		CompanySize: r.get("company_size"),
	}
	return NewLead(id, parseSource(r.get("source"), defaultSource))
}

// NewLead builds a discovered lead with a deterministic id.
func NewLead(id model.Identity, source model.LeadSource) (*model.Lead, error) {
	if id.FullName == "" && (id.FirstName != "" || id.LastName != "") {
		id.FullName = strings.TrimSpace(id.FirstName + " " + id.LastName)
	}
	if id.FirstName == "" && id.FullName != "" {
		parts := strings.Fields(id.FullName)
		id.FirstName = parts[0]
		if len(parts) > 1 && id.LastName == "" {
			id.LastName = strings.Join(parts[1:], " ")
		}
	}
	key := SourceKey(id)
	if key == "" {
		return nil, model.Validationf("intake: row needs a LinkedIn URL, an email, or a name and company")
	}
	return &model.Lead{
		ID:             LeadID(key),
		Identity:       id,
		Source:         source,
		Status:         model.LeadStatusDiscovered,
		SequenceStatus: model.SequenceNone,
	}, nil
}

func parseSource(s string, def model.LeadSource) model.LeadSource {
	switch model.LeadSource(strings.ToLower(strings.TrimSpace(s))) {
	case model.SourceLinkedIn:
		return model.SourceLinkedIn
	case model.SourceEmail:
		return model.SourceEmail
	case model.SourceImport:
		return model.SourceImport
	}
	return def
}

func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}
