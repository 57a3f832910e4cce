// Package scorer computes the weighted composite lead score.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
)

// DefaultConfig returns the v1 scoring weights. Weights sum to 1.
func DefaultConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Version:          "v1",
		ProfileWeight:    0.15,
		EnrichmentWeight: 0.20,
		TitleWeight:      0.25,
		CompanyWeight:    0.20,
		EngagementWeight: 0.10,
		ResearchWeight:   0.10,
		NeutralScore:     50,
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(c config.ScoringConfig) float64 {
	return c.ProfileWeight + c.EnrichmentWeight + c.TitleWeight +
		c.CompanyWeight + c.EngagementWeight + c.ResearchWeight
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	weights := map[string]float64{
		"profile_weight":    c.ProfileWeight,
		"enrichment_weight": c.EnrichmentWeight,
		"title_weight":      c.TitleWeight,
		"company_weight":    c.CompanyWeight,
		"engagement_weight": c.EngagementWeight,
		"research_weight":   c.ResearchWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if sum := WeightSum(c); math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}
	if c.NeutralScore < 0 || c.NeutralScore > 100 {
		errs = append(errs, "neutral_score must be between 0 and 100")
	}
	if strings.TrimSpace(c.Version) == "" {
		errs = append(errs, "version is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a short SHA-256 fingerprint of the weights so scores
// can be traced to the exact configuration that produced them.
func ConfigHash(c config.ScoringConfig) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}
