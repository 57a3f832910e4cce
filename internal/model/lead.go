package model

import (
	"time"
)

// LeadSource identifies where a lead was discovered.
type LeadSource string

const (
	SourceLinkedIn LeadSource = "linkedin"
	SourceEmail    LeadSource = "email"
	SourceImport   LeadSource = "import"
)

// LeadStatus is the contact status of a lead as reported by outreach activity.
type LeadStatus string

const (
	LeadStatusDiscovered         LeadStatus = "discovered"
	LeadStatusConnectionSent     LeadStatus = "connection_sent"
	LeadStatusConnectionAccepted LeadStatus = "connection_accepted"
	LeadStatusMessaged           LeadStatus = "messaged"
	LeadStatusReplied            LeadStatus = "replied"
	LeadStatusUnsubscribed       LeadStatus = "unsubscribed"
	LeadStatusNotInterested      LeadStatus = "not_interested"
	LeadStatusConverted          LeadStatus = "converted"
)

// SequenceStatus mirrors the state of the lead's outreach sequence.
type SequenceStatus string

const (
	SequenceNone      SequenceStatus = "none"
	SequenceRunning   SequenceStatus = "running"
	SequencePaused    SequenceStatus = "paused"
	SequenceStopped   SequenceStatus = "stopped"
	SequenceCompleted SequenceStatus = "completed"
)

// Sentiment classifies the tone of a response.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Identity holds the discovery-time identity fields of a lead.
type Identity struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	FullName        string `json:"full_name"`
	Title           string `json:"title"`
	Company         string `json:"company"`
	Industry        string `json:"industry"`
	Location        string `json:"location"`
	Headline        string `json:"headline,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	LinkedInURL     string `json:"linkedin_url,omitempty"`
	CompanySize     string `json:"company_size,omitempty"`
}

// Enrichment is the contact payload returned by the enrichment gateway.
type Enrichment struct {
	Email                 string    `json:"email,omitempty"`
	EmailStatus           string    `json:"email_status,omitempty"` // verified, likely_to_engage, unavailable
	Phones                []string  `json:"phones,omitempty"`
	LinkedInURL           string    `json:"linkedin_url,omitempty"`
	TwitterURL            string    `json:"twitter_url,omitempty"`
	OrganizationName      string    `json:"organization_name,omitempty"`
	OrganizationWebsite   string    `json:"organization_website,omitempty"`
	OrganizationIndustry  string    `json:"organization_industry,omitempty"`
	OrganizationEmployees int       `json:"organization_employees,omitempty"`
	Provider              string    `json:"provider,omitempty"`
	EnrichedAt            time.Time `json:"enriched_at"`
}

// EmailVerified reports whether the enrichment carries a verified address.
func (e *Enrichment) EmailVerified() bool {
	return e != nil && e.Email != "" && e.EmailStatus == "verified"
}

// Research is free-text background produced by the research gateway.
type Research struct {
	Text            string    `json:"text"`
	OpportunityType string    `json:"opportunity_type,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	Sources         []string  `json:"sources,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// SocialSignals summarizes public social activity.
type SocialSignals struct {
	RecentPosts         int     `json:"recent_posts"`
	ProfessionalContent bool    `json:"professional_content"`
	EngagementRate      float64 `json:"engagement_rate"`
	ThoughtLeadership   bool    `json:"thought_leadership"`
}

// EngagementStats counts email outreach outcomes.
type EngagementStats struct {
	Sent    int `json:"sent"`
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
	Replied int `json:"replied"`
}

// Lead is a person tracked through the acquisition funnel.
type Lead struct {
	ID string `json:"id"`
	Identity
	Source     LeadSource      `json:"source"`
	CampaignID string          `json:"campaign_id,omitempty"`
	Enrichment *Enrichment     `json:"enrichment,omitempty"`
	Research   *Research       `json:"research,omitempty"`
	Social     *SocialSignals  `json:"social,omitempty"`
	Engagement EngagementStats `json:"engagement"`

	Status         LeadStatus     `json:"status"`
	SequenceStatus SequenceStatus `json:"sequence_status"`

	// Qualification fields. Written only by the qualification classifier
	// or an operator override.
	Qualification    Tier       `json:"qualification,omitempty"`
	Score            float64    `json:"score"`
	ScoreBonus       float64    `json:"score_bonus,omitempty"`
	EngagementScore  float64    `json:"engagement_score"`
	OpportunityType  string     `json:"opportunity_type,omitempty"`
	OpportunityScore float64    `json:"opportunity_score,omitempty"`
	ScoredAt         *time.Time `json:"scored_at,omitempty"`
	// TierOverride pins Qualification until an operator clears it.
	TierOverride Tier `json:"tier_override,omitempty"`

	OpportunityID     string            `json:"opportunity_id,omitempty"`
	OpportunityStatus OpportunityStatus `json:"opportunity_status,omitempty"`

	ConnectionSentAt      *time.Time `json:"connection_sent_at,omitempty"`
	ConnectionAcceptedAt  *time.Time `json:"connection_accepted_at,omitempty"`
	FirstMessageAt        *time.Time `json:"first_message_at,omitempty"`
	LastMessageAt         *time.Time `json:"last_message_at,omitempty"`
	FirstResponseAt       *time.Time `json:"first_response_at,omitempty"`
	LastResponseAt        *time.Time `json:"last_response_at,omitempty"`
	LastResponseSentiment Sentiment  `json:"last_response_sentiment,omitempty"`
	LastActivityAt        *time.Time `json:"last_activity_at,omitempty"`
	UnsubscribedAt        *time.Time `json:"unsubscribed_at,omitempty"`

	Tokens map[string]string `json:"tokens,omitempty"`

	// LastAdvancedStage is the stage whose entry effects have already run.
	LastAdvancedStage Stage `json:"last_advanced_stage,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the best available human name for the lead.
func (l *Lead) DisplayName() string {
	if l.FullName != "" {
		return l.FullName
	}
	switch {
	case l.FirstName != "" && l.LastName != "":
		return l.FirstName + " " + l.LastName
	case l.FirstName != "":
		return l.FirstName
	default:
		return l.LastName
	}
}

// ContactEmail returns the enriched email when present, otherwise the
// discovered one.
func (l *Lead) ContactEmail() string {
	if l.Enrichment != nil && l.Enrichment.Email != "" {
		return l.Enrichment.Email
	}
	return l.Email
}

// Connected reports whether the lead accepted a connection request.
func (l *Lead) Connected() bool {
	return l.ConnectionAcceptedAt != nil
}

// HasResponded reports whether any response was ever recorded.
func (l *Lead) HasResponded() bool {
	return l.LastResponseAt != nil
}

// EffectiveScore is the composite score plus any workflow bonus, capped at 100.
func (l *Lead) EffectiveScore() float64 {
	s := l.Score + l.ScoreBonus
	if s > 100 {
		return 100
	}
	if s < 0 {
		return 0
	}
	return s
}

// ApplyIdentity overwrites identity fields. Once enrichment is attached the
// identity is frozen and any change is refused.
func (l *Lead) ApplyIdentity(id Identity) error {
	if l.Enrichment != nil && l.Identity != id {
		return wrapInvariant("model: identity is immutable after enrichment (lead %s)", l.ID)
	}
	l.Identity = id
	return nil
}

// Clone returns a deep copy of the lead.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	c := *l
	if l.Enrichment != nil {
		e := *l.Enrichment
		e.Phones = append([]string(nil), l.Enrichment.Phones...)
		c.Enrichment = &e
	}
	if l.Research != nil {
		r := *l.Research
		c.Research = &r
	}
	if l.Social != nil {
		s := *l.Social
		c.Social = &s
	}
	if l.Tokens != nil {
		c.Tokens = make(map[string]string, len(l.Tokens))
		for k, v := range l.Tokens {
			c.Tokens[k] = v
		}
	}
	for _, p := range []**time.Time{
		&c.ScoredAt, &c.ConnectionSentAt, &c.ConnectionAcceptedAt, &c.FirstMessageAt,
		&c.LastMessageAt, &c.FirstResponseAt, &c.LastResponseAt, &c.LastActivityAt,
		&c.UnsubscribedAt,
	} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return &c
}
