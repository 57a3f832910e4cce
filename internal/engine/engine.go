// Package engine wires scoring, qualification, enrichment, and the workflow
// orchestrator into the operations the CLI and HTTP surface call.
package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/crm"
	"github.com/sells-group/outreach-cli/internal/dispatch"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/intake"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/qualify"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

// Deps are the collaborators of an Engine. Enricher, Researcher, Analyzer,
// and CRM are optional; a nil gateway turns its phase into a no-op.
type Deps struct {
	Store      store.Store
	Catalog    *workflow.Catalog
	Qualifier  *qualify.Qualifier
	Alerter    *monitoring.Alerter
	Dispatcher dispatch.Dispatcher
	Enricher   enrich.Enricher
	Researcher enrich.Researcher
	Analyzer   workflow.ResponseAnalyzer
	CRM        crm.Syncer
}

// Engine runs lead operations on top of one Orchestrator.
type Engine struct {
	store      store.Store
	orch       *workflow.Orchestrator
	qual       *qualify.Qualifier
	alerts     *monitoring.Alerter
	enricher   enrich.Enricher
	researcher enrich.Researcher
	crm        crm.Syncer
}

// New builds an Engine and registers the built-in workflow actions.
func New(d Deps, opts workflow.Options) *Engine {
	wd := workflow.Deps{
		Catalog:    d.Catalog,
		Registry:   d.Store,
		Leads:      d.Store,
		Campaigns:  d.Store,
		Sends:      d.Store,
		Dispatcher: d.Dispatcher,
		Analyzer:   d.Analyzer,
	}
	if d.Alerter != nil {
		wd.Alerts = d.Alerter
	}
	e := &Engine{
		store:      d.Store,
		orch:       workflow.New(wd, opts),
		qual:       d.Qualifier,
		alerts:     d.Alerter,
		enricher:   d.Enricher,
		researcher: d.Researcher,
		crm:        d.CRM,
	}
	e.registerActions()
	return e
}

// Orchestrator exposes the underlying workflow orchestrator.
func (e *Engine) Orchestrator() *workflow.Orchestrator { return e.orch }

// Store exposes the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Alerter exposes the alerter. It may be nil.
func (e *Engine) Alerter() *monitoring.Alerter { return e.alerts }

// CreateLead stores a new discovered lead. The id is derived from the
// lead's identity so repeated submissions of the same person collide.
func (e *Engine) CreateLead(ctx context.Context, id model.Identity, source model.LeadSource, campaignID string) (*model.Lead, error) {
	if source == "" {
		source = model.SourceImport
	}
	l, err := intake.NewLead(id, source)
	if err != nil {
		return nil, err
	}
	if campaignID != "" {
		if _, err := e.store.GetCampaign(ctx, campaignID); err != nil {
			return nil, err
		}
		l.CampaignID = campaignID
	}
	now := e.orch.Now()
	l.CreatedAt, l.UpdatedAt = now, now
	if err := e.store.CreateLead(ctx, l); err != nil {
		return nil, err
	}
	zap.L().Info("engine: lead created", zap.String("lead_id", l.ID), zap.String("source", string(source)))
	return l, nil
}

// Qualify re-scores a lead and persists the result.
func (e *Engine) Qualify(ctx context.Context, leadID string) (qualify.Result, error) {
	var res qualify.Result
	_, err := e.orch.UpdateLead(ctx, leadID, func(l *model.Lead) error {
		res = e.qual.Qualify(l, e.orch.Now())
		qualify.Apply(l, res)
		return nil
	})
	if err != nil {
		return qualify.Result{}, err
	}
	return res, nil
}

// Override pins an operator-chosen tier. Re-qualification keeps it.
func (e *Engine) Override(ctx context.Context, leadID string, tier model.Tier) (*model.Lead, error) {
	return e.orch.UpdateLead(ctx, leadID, func(l *model.Lead) error {
		return qualify.Override(l, tier, e.orch.Now())
	})
}

// ClearOverride releases a pinned tier and re-qualifies the lead.
func (e *Engine) ClearOverride(ctx context.Context, leadID string) (*model.Lead, error) {
	return e.orch.UpdateLead(ctx, leadID, func(l *model.Lead) error {
		qualify.ClearOverride(l, e.qual.Qualify(l, e.orch.Now()))
		return nil
	})
}

// SetOpportunityStatus records the outcome of the lead's opportunity.
// Accepted converts the lead and declined closes it; the stage change
// cancels any running workflow. The CRM copy is updated best effort.
func (e *Engine) SetOpportunityStatus(ctx context.Context, leadID string, status model.OpportunityStatus) (*model.Lead, error) {
	if !status.Valid() {
		return nil, model.Validationf("engine: unknown opportunity status %q", status)
	}
	var opp *model.Opportunity
	l, err := e.orch.UpdateLead(ctx, leadID, func(l *model.Lead) error {
		if l.OpportunityID == "" {
			return model.Validationf("engine: lead %s has no opportunity", l.ID)
		}
		o, err := e.store.GetOpportunity(ctx, l.OpportunityID)
		if err != nil {
			return err
		}
		now := e.orch.Now()
		o.Status = status
		o.UpdatedAt = now
		if err := e.store.UpdateOpportunity(ctx, o); err != nil {
			return eris.Wrapf(err, "engine: update opportunity %s", o.ID)
		}
		opp = o
		l.OpportunityStatus = status
		if status == model.OpportunityAccepted {
			l.Record(model.Activity{Kind: model.ActivityConverted, At: now})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("engine: opportunity status set",
		zap.String("lead_id", l.ID),
		zap.String("opportunity_id", opp.ID),
		zap.String("status", string(status)),
	)
	if e.crm != nil {
		if err := e.pushOpportunity(ctx, l, opp); err != nil {
			zap.L().Warn("engine: crm push failed, will retry on sync",
				zap.String("opportunity_id", opp.ID),
				zap.Error(err),
			)
		}
	}
	return l, nil
}

// Enrich looks the lead up in the enrichment gateway, attaches the result,
// and re-qualifies. A lead that is already enriched is left alone.
func (e *Engine) Enrich(ctx context.Context, leadID string) (*model.Lead, error) {
	if e.enricher == nil {
		return nil, model.Unavailablef("engine: no enrichment gateway configured")
	}
	l, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if l.Enrichment != nil {
		return l, nil
	}
	enr, err := e.enricher.Fetch(ctx, l.Identity)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: enrich lead %s", leadID)
	}
	return e.orch.UpdateLead(ctx, leadID, func(l *model.Lead) error {
		if l.Enrichment != nil {
			return nil
		}
		l.Enrichment = enr
		r := e.qual.Qualify(l, e.orch.Now())
		qualify.Apply(l, r)
		return nil
	})
}

// Research fetches background text for the lead and re-qualifies.
func (e *Engine) Research(ctx context.Context, leadID string) (*model.Lead, error) {
	if e.researcher == nil {
		return nil, model.Unavailablef("engine: no research gateway configured")
	}
	l, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	company := l.Company
	if l.Enrichment != nil && l.Enrichment.OrganizationName != "" {
		company = l.Enrichment.OrganizationName
	}
	res, err := e.researcher.Fetch(ctx, l.DisplayName(), company, l.OpportunityType)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: research lead %s", leadID)
	}
	return e.orch.UpdateLead(ctx, leadID, func(l *model.Lead) error {
		l.Research = res
		r := e.qual.Qualify(l, e.orch.Now())
		qualify.Apply(l, r)
		return nil
	})
}

// AssignWorkflow starts the workflow matching the lead's tier.
func (e *Engine) AssignWorkflow(ctx context.Context, leadID string) (*model.Execution, error) {
	l, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	wt := model.WorkflowForTier(l.Qualification)
	if l.CampaignID != "" {
		c, err := e.store.GetCampaign(ctx, l.CampaignID)
		if err != nil {
			return nil, err
		}
		if c.WorkflowType != "" && !l.Qualification.AtLeast(model.TierQualified) {
			wt = c.WorkflowType
		}
	}
	return e.orch.StartType(ctx, wt, leadID, model.TriggerQualificationUpdated)
}

// AssignTemplate starts a specific template chosen by an operator.
func (e *Engine) AssignTemplate(ctx context.Context, leadID, templateID string) (*model.Execution, error) {
	return e.orch.Start(ctx, templateID, leadID, model.TriggerManual)
}

// HandleEvent applies one verified inbound provider event.
func (e *Engine) HandleEvent(ctx context.Context, ev dispatch.Event) error {
	if ev.Type == dispatch.EventResponse {
		_, err := e.orch.HandleResponse(ctx, ev.LeadID, ev.Content, ev.Sentiment)
		return err
	}
	a, ok := ev.Activity()
	if !ok {
		return model.Validationf("engine: unhandled event type %q", ev.Type)
	}
	return e.orch.RecordActivity(ctx, ev.LeadID, a)
}
