package workflow

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// LeadStore loads and saves leads.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	UpdateLead(ctx context.Context, l *model.Lead) error
}

// CampaignStore loads campaigns for send-cap and status checks.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
}

// AlertSink receives alerts raised by workflow and stage changes.
type AlertSink interface {
	Raise(ctx context.Context, a *model.Alert) (bool, error)
	CheckLead(ctx context.Context, l *model.Lead, now time.Time) error
}

// ActionContext is handed to action handlers. Lead and Execution are the
// live copies held under the lead lock; handlers may mutate them.
type ActionContext struct {
	Lead      *model.Lead
	Execution *model.Execution
	Params    map[string]any
	Now       time.Time
}

// ActionFunc performs one named side effect of an action step.
type ActionFunc func(ctx context.Context, ac ActionContext) error

// Built-in action names.
const (
	ActionUpdateLeadScore   = "update_lead_score"
	ActionTriggerResearch   = "trigger_research"
	ActionCreateOpportunity = "create_opportunity"
	ActionAddToCampaign     = "add_to_campaign"
)

// FloatParam reads a numeric action parameter.
func FloatParam(params map[string]any, key string, def float64) float64 {
	if f, ok := toFloat(params[key]); ok {
		return f
	}
	return def
}

// StringParam reads a string action parameter.
func StringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}
