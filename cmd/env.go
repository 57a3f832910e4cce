package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/crm"
	"github.com/sells-group/outreach-cli/internal/dispatch"
	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/qualify"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/scorer"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/internal/workflow"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/notion"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
	"github.com/sells-group/outreach-cli/pkg/salesforce"
)

// appEnv holds the store, clients, and engine shared by every command.
type appEnv struct {
	Store     store.Store
	Engine    *engine.Engine
	Scorer    *scorer.Scorer
	Qualifier *qualify.Qualifier
	Alerter   *monitoring.Alerter
	Notion    notion.Client // nil without a token
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates the config for mode and builds the engine with every
// gateway that has credentials. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	s, err := scorer.New(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	qual := qualify.New(s, cfg.Qualification)

	cat, err := workflow.BuiltinCatalog()
	if err != nil {
		return nil, eris.Wrap(err, "load builtin templates")
	}
	if cfg.Workflow.TemplateDir != "" {
		if err := cat.LoadDir(cfg.Workflow.TemplateDir); err != nil {
			return nil, eris.Wrap(err, "load templates")
		}
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	retry, breaker := resilience.FromConfig(cfg.Resilience)
	guard := resilience.NewGuard(retry, breaker)
	alerter := monitoring.NewAlerter(st, cfg.Alerting)

	deps := engine.Deps{
		Store:     st,
		Catalog:   cat,
		Qualifier: qual,
		Alerter:   alerter,
	}

	if cfg.Dispatch.WebhookURL != "" {
		deps.Dispatcher = dispatch.NewWebhook(cfg.Dispatch, guard)
	} else {
		zap.L().Warn("dispatch.webhook_url not set, outreach is recorded but not sent")
		deps.Dispatcher = dispatch.NewRecorder()
	}

	env := &appEnv{Store: st, Scorer: s, Qualifier: qual, Alerter: alerter}

	if cfg.Notion.Token != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token)
		if cfg.Notion.EnrichmentDB != "" {
			deps.Enricher = enrich.NewNotionEnricher(env.Notion, cfg.Notion.EnrichmentDB, guard)
		}
	} else {
		zap.L().Debug("OUTREACH_NOTION_TOKEN not set, enrichment lookup disabled")
	}

	if cfg.Perplexity.Key != "" {
		pc := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		deps.Researcher = enrich.NewPerplexityResearcher(pc, cfg.Perplexity.Model, guard)
	}

	if cfg.Anthropic.Key != "" {
		ac := anthropicpkg.NewClient(cfg.Anthropic.Key)
		deps.Analyzer = enrich.NewClaudeAnalyzer(ac, cfg.Anthropic.Model, guard)
	}

	if cfg.Salesforce.Enabled() {
		sf, err := salesforce.Connect(cfg.Salesforce.LoginURL, cfg.Salesforce.Username, cfg.Salesforce.ClientID, cfg.Salesforce.KeyPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "connect salesforce")
		}
		deps.CRM = crm.NewSalesforce(sf, guard)
		zap.L().Info("salesforce sync enabled")
	}

	env.Engine = engine.New(deps, workflow.OptionsFromConfig(cfg.Workflow))
	return env, nil
}
