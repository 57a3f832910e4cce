package workflow

import (
	"context"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/scorer"
)

// ResponseAnalyzer classifies an inbound reply.
type ResponseAnalyzer interface {
	Analyze(ctx context.Context, content string, hint model.Sentiment) (model.ResponseAnalysis, error)
}

var (
	unsubscribePhrases = scorer.NewPhrases("unsubscribe", "remove me", "opt out", "stop emailing", "stop contacting", "do not contact")
	negativePhrases    = scorer.NewPhrases("not interested", "no thanks", "no thank you", "busy", "not now", "remove", "not a fit", "pass")
	positivePhrases    = scorer.NewPhrases("interested", "yes", "sure", "absolutely", "great", "excellent", "perfect", "love to", "happy to")
	questionPhrases    = scorer.NewPhrases("how", "what", "when", "where", "why", "tell me more")
)

// KeywordAnalyzer is the default analyzer. Negative phrases are matched
// first and their words are consumed, so "not interested" never also
// counts as "interested".
type KeywordAnalyzer struct{}

// Analyze implements ResponseAnalyzer.
func (KeywordAnalyzer) Analyze(_ context.Context, content string, hint model.Sentiment) (model.ResponseAnalysis, error) {
	return AnalyzeKeywords(content, hint), nil
}

// AnalyzeKeywords runs the keyword classification synchronously.
func AnalyzeKeywords(content string, hint model.Sentiment) model.ResponseAnalysis {
	words := scorer.Words(content)

	unsub, words := consume(words, unsubscribePhrases)
	neg, words := consume(words, negativePhrases)
	pos, words := consume(words, positivePhrases)
	question := strings.Contains(content, "?") || questionPhrases.Any(words)

	a := model.ResponseAnalysis{
		Sentiment:   hint,
		Interest:    model.InterestMedium,
		Question:    question,
		Unsubscribe: len(unsub) > 0,
		AnalyzedBy:  "keywords",
	}
	a.Keywords = append(append(append(a.Keywords, unsub...), neg...), pos...)

	switch {
	case len(neg) > 0:
		a.Interest = model.InterestLow
	case len(pos) > 0:
		a.Interest = model.InterestHigh
	case question:
		a.Interest = model.InterestHigh
	}

	if a.Sentiment == "" || a.Sentiment == model.SentimentNeutral {
		switch {
		case len(neg) > 0 && len(pos) == 0:
			a.Sentiment = model.SentimentNegative
		case len(pos) > 0 && len(neg) == 0:
			a.Sentiment = model.SentimentPositive
		default:
			a.Sentiment = model.SentimentNeutral
		}
	}

	a.Conflicting = (len(neg) > 0 && len(pos) > 0) ||
		(hint == model.SentimentPositive && len(neg) > 0) ||
		(hint == model.SentimentNegative && len(pos) > 0)

	a.Action = Decide(a)
	return a
}

// Decide maps an analysis to the orchestrator's next move.
func Decide(a model.ResponseAnalysis) model.ResponseAction {
	switch {
	case a.Unsubscribe:
		return model.ResponseStop
	case a.Conflicting:
		return model.ResponsePause
	case a.Interest == model.InterestLow || a.Sentiment == model.SentimentNegative:
		return model.ResponseComplete
	case a.Interest == model.InterestHigh || a.Sentiment == model.SentimentPositive:
		return model.ResponseEscalate
	}
	return model.ResponseContinue
}

// consume returns the phrases found in words and a copy of words with the
// matched positions blanked.
func consume(words []string, phrases scorer.Phrases) ([]string, []string) {
	rest := append([]string(nil), words...)
	var matched []string
	for _, p := range phrases {
		hit := false
		for i := 0; len(p) > 0 && i+len(p) <= len(rest); i++ {
			ok := true
			for j, w := range p {
				if rest[i+j] != w {
					ok = false
					break
				}
			}
			if ok {
				for j := range p {
					rest[i+j] = ""
				}
				hit = true
			}
		}
		if hit {
			matched = append(matched, strings.Join(p, " "))
		}
	}
	return matched, rest
}
