package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/workflow"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

const analyzerSystemPrompt = `You classify replies to B2B outreach messages.
Return only a JSON object with these fields:
  "sentiment": "positive" | "neutral" | "negative"
  "interest": "high" | "medium" | "low"
  "question": true if the reply asks something
  "unsubscribe": true if the sender asks to stop receiving messages
  "conflicting": true if the reply mixes interest with refusal
  "keywords": up to five short phrases that drove the decision`

// ClaudeAnalyzer classifies replies with an Anthropic model. Replies the
// model cannot classify fall back to keyword analysis.
type ClaudeAnalyzer struct {
	client anthropic.Client
	model  string
	guard  *resilience.Guard
}

// NewClaudeAnalyzer builds a ClaudeAnalyzer.
func NewClaudeAnalyzer(c anthropic.Client, modelName string, guard *resilience.Guard) *ClaudeAnalyzer {
	return &ClaudeAnalyzer{client: c, model: modelName, guard: guard}
}

type verdict struct {
	Sentiment   string   `json:"sentiment"`
	Interest    string   `json:"interest"`
	Question    bool     `json:"question"`
	Unsubscribe bool     `json:"unsubscribe"`
	Conflicting bool     `json:"conflicting"`
	Keywords    []string `json:"keywords"`
}

// Analyze implements workflow.ResponseAnalyzer.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, content string, hint model.Sentiment) (model.ResponseAnalysis, error) {
	if strings.TrimSpace(content) == "" {
		return workflow.AnalyzeKeywords(content, hint), nil
	}
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   256,
		System:      anthropic.CachedSystem(analyzerSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: content}},
		Temperature: &temp,
	}
	resp, err := resilience.GuardVal(ctx, a.guard, "anthropic", "analyze response", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return model.ResponseAnalysis{}, err
	}
	resp.Usage.LogCost(a.model, "analyze_response")

	v, err := parseVerdict(resp.Text())
	if err != nil {
		return model.ResponseAnalysis{}, err
	}
	return v.analysis(content, hint), nil
}

// parseVerdict extracts the first JSON object in text.
func parseVerdict(text string) (verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return verdict{}, eris.New("enrich: analyzer returned no JSON object")
	}
	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return verdict{}, eris.Wrap(err, "enrich: decode analyzer verdict")
	}
	return v, nil
}

func (v verdict) analysis(content string, hint model.Sentiment) model.ResponseAnalysis {
	a := model.ResponseAnalysis{
		Sentiment:   model.SentimentNeutral,
		Interest:    model.InterestMedium,
		Question:    v.Question || strings.Contains(content, "?"),
		Unsubscribe: v.Unsubscribe,
		Conflicting: v.Conflicting,
		Keywords:    v.Keywords,
		AnalyzedBy:  "anthropic",
	}
	switch model.Sentiment(strings.ToLower(v.Sentiment)) {
	case model.SentimentPositive:
		a.Sentiment = model.SentimentPositive
	case model.SentimentNegative:
		a.Sentiment = model.SentimentNegative
	}
	switch model.InterestLevel(strings.ToLower(v.Interest)) {
	case model.InterestHigh:
		a.Interest = model.InterestHigh
	case model.InterestLow:
		a.Interest = model.InterestLow
	}
	if hint != "" && hint != model.SentimentNeutral && a.Sentiment != model.SentimentNeutral && hint != a.Sentiment {
		a.Conflicting = true
	}
	a.Action = workflow.Decide(a)
	return a
}
