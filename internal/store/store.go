// Package store persists leads, campaigns, workflow executions, alerts,
// opportunities, and campaign send counters.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

// LeadStore persists leads.
type LeadStore interface {
	CreateLead(ctx context.Context, l *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	UpdateLead(ctx context.Context, l *model.Lead) error
	ListLeads(ctx context.Context, f model.LeadFilter) ([]*model.Lead, error)
	// ImportLeads inserts leads whose id is not yet stored and returns how
	// many were inserted. Existing leads are left untouched.
	ImportLeads(ctx context.Context, leads []*model.Lead) (int, error)
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	UpdateCampaign(ctx context.Context, c *model.Campaign) error
	ListCampaigns(ctx context.Context) ([]*model.Campaign, error)
}

// OpportunityStore persists opportunities. A lead has at most one.
type OpportunityStore interface {
	CreateOpportunity(ctx context.Context, o *model.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)
	OpportunityForLead(ctx context.Context, leadID string) (*model.Opportunity, error)
	UpdateOpportunity(ctx context.Context, o *model.Opportunity) error
	ListOpportunities(ctx context.Context, limit int) ([]*model.Opportunity, error)
}

// Store defines the persistence interface for the outreach system.
type Store interface {
	LeadStore
	CampaignStore
	OpportunityStore
	workflow.Registry
	workflow.SendLimiter
	monitoring.AlertStore

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}
