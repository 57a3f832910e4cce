package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// Researcher produces background notes on a lead for an opportunity type.
type Researcher interface {
	Fetch(ctx context.Context, name, company, opportunityType string) (*model.Research, error)
}

const researchSystemPrompt = "You research senior professionals for board, advisory, and speaking " +
	"opportunities. Answer in under 200 words with plain sentences. Cover current role, " +
	"governance or advisory experience, public speaking, and recent news. Say so when " +
	"information is not publicly available."

// PerplexityResearcher asks the Perplexity search model for a summary.
type PerplexityResearcher struct {
	client perplexity.Client
	model  string
	guard  *resilience.Guard
	now    func() time.Time
}

// NewPerplexityResearcher builds a PerplexityResearcher.
func NewPerplexityResearcher(c perplexity.Client, modelName string, guard *resilience.Guard) *PerplexityResearcher {
	return &PerplexityResearcher{client: c, model: modelName, guard: guard, now: func() time.Time { return time.Now().UTC() }}
}

// ResearchPrompt builds the user prompt for a lead.
func ResearchPrompt(name, company, opportunityType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research %s", name)
	if company != "" {
		fmt.Fprintf(&b, " of %s", company)
	}
	b.WriteString(".")
	if opportunityType != "" {
		fmt.Fprintf(&b, " Focus on fit for a %s role.", strings.ReplaceAll(opportunityType, "_", " "))
	}
	return b.String()
}

// Fetch implements Researcher.
func (r *PerplexityResearcher) Fetch(ctx context.Context, name, company, opportunityType string) (*model.Research, error) {
	if strings.TrimSpace(name) == "" {
		return nil, model.Validationf("enrich: research needs a name")
	}
	temp := 0.2
	maxTokens := 400
	req := perplexity.ChatCompletionRequest{
		Model: r.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: researchSystemPrompt},
			{Role: "user", Content: ResearchPrompt(name, company, opportunityType)},
		},
		Temperature:         &temp,
		MaxTokens:           &maxTokens,
		SearchRecencyFilter: perplexity.RecencyYear,
	}

	resp, err := resilience.GuardVal(ctx, r.guard, "perplexity", "research", func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return r.client.ChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	text := resp.Text()
	if text == "" {
		return nil, resilience.Unavailable("perplexity", eris.New("empty completion"))
	}
	return &model.Research{
		Text:            text,
		OpportunityType: opportunityType,
		Provider:        "perplexity",
		Sources:         resp.Citations,
		GeneratedAt:     r.now(),
	}, nil
}
