package model

import (
	"strings"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Audience filters which leads a campaign targets. Empty fields match all.
type Audience struct {
	Industries    []string `json:"industries,omitempty" yaml:"industries"`
	TitleKeywords []string `json:"title_keywords,omitempty" yaml:"title_keywords"`
	MinScore      float64  `json:"min_score,omitempty" yaml:"min_score"`
}

// Campaign groups leads under shared send caps and a default workflow.
type Campaign struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Status       CampaignStatus `json:"status"`
	DailyCap     int            `json:"daily_cap"`  // 0 = unlimited
	WeeklyCap    int            `json:"weekly_cap"` // 0 = unlimited
	Audience     Audience       `json:"audience"`
	WorkflowType WorkflowType   `json:"workflow_type,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Validate checks operator-supplied campaign fields.
func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return wrapValidation("model: campaign name is required")
	}
	if c.DailyCap < 0 || c.WeeklyCap < 0 {
		return wrapValidation("model: campaign caps must be >= 0")
	}
	if c.DailyCap > 0 && c.WeeklyCap > 0 && c.WeeklyCap < c.DailyCap {
		return wrapValidation("model: weekly cap %d is below daily cap %d", c.WeeklyCap, c.DailyCap)
	}
	if c.Audience.MinScore < 0 || c.Audience.MinScore > 100 {
		return wrapValidation("model: audience min_score must be between 0 and 100")
	}
	return nil
}

// Sending reports whether the campaign may dispatch outreach.
func (c *Campaign) Sending() bool {
	return c.Status == CampaignActive
}

// Matches reports whether a lead falls inside the campaign audience.
func (c *Campaign) Matches(l *Lead) bool {
	if l.EffectiveScore() < c.Audience.MinScore {
		return false
	}
	if len(c.Audience.Industries) > 0 {
		ind := strings.ToLower(l.Industry)
		ok := false
		for _, want := range c.Audience.Industries {
			if strings.Contains(ind, strings.ToLower(want)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(c.Audience.TitleKeywords) > 0 {
		title := strings.ToLower(l.Title)
		for _, kw := range c.Audience.TitleKeywords {
			if strings.Contains(title, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	}
	return true
}
