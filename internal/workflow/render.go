package workflow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Render substitutes personalization tokens in content. Lead tokens
// override the defaults; unknown placeholders are left as written.
func Render(content string, l *model.Lead, defaultTopic string) string {
	opp := string(l.OpportunityType)
	if opp == "" {
		opp = "advisory"
	}
	opp = strings.ReplaceAll(opp, "_", " ")

	topic := defaultTopic
	if topic == "" {
		topic = "governance"
	}

	first := l.FirstName
	if first == "" {
		if parts := strings.Fields(l.FullName); len(parts) > 0 {
			first = parts[0]
		}
	}

	// Casers carry state and are not shared between goroutines.
	caser := cases.Title(language.English)
	first = caser.String(first)
	if first == "" {
		first = "there"
	}

	vals := map[string]string{
		"first_name":       first,
		"last_name":        caser.String(l.LastName),
		"full_name":        l.DisplayName(),
		"company":          orDefault(l.Company, "your company"),
		"title":            orDefault(l.Title, "your role"),
		"industry":         orDefault(l.Industry, "your industry"),
		"opportunity_type": opp,
		"topic":            topic,
	}
	for k, v := range l.Tokens {
		vals[k] = v
	}

	pairs := make([]string, 0, len(vals)*2)
	for k, v := range vals {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
