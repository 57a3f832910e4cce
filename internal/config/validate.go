package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a given command depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite, postgres, or memory, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	sum := c.Scoring.ProfileWeight + c.Scoring.EnrichmentWeight + c.Scoring.TitleWeight +
		c.Scoring.CompanyWeight + c.Scoring.EngagementWeight + c.Scoring.ResearchWeight
	if math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("scoring weights should sum to 1, got %.2f", sum))
	}

	q := c.Qualification
	if !(q.DevelopingThreshold < q.PotentialThreshold && q.PotentialThreshold < q.HotThreshold) {
		errs = append(errs, "qualification thresholds must be increasing: developing < potential < hot")
	}
	if q.CompositeQualifiedThreshold != 0 && (q.CompositeQualifiedThreshold <= q.PotentialThreshold || q.CompositeQualifiedThreshold >= q.HotThreshold) {
		errs = append(errs, "qualification.composite_qualified_threshold must sit between potential and hot")
	}
	for name, p := range q.Sources {
		if p.Mode != "composite" && p.Mode != "combined" {
			errs = append(errs, fmt.Sprintf("qualification.sources.%s.mode must be composite or combined", name))
		}
		if p.QualifiedThreshold <= q.PotentialThreshold || p.QualifiedThreshold >= q.HotThreshold {
			errs = append(errs, fmt.Sprintf("qualification.sources.%s.qualified_threshold must sit between potential and hot", name))
		}
	}

	if c.Workflow.MaxConsecutiveFailures <= 0 {
		errs = append(errs, "workflow.max_consecutive_failures must be > 0")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	case "import":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			errs = append(errs, "notion.lead_db is required")
		}
	case "sync":
		if !c.Salesforce.Enabled() {
			errs = append(errs, "salesforce.client_id, salesforce.username and salesforce.key_path are required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
