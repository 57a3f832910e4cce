package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

func fastGuard() *resilience.Guard {
	return resilience.NewGuard(resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}, resilience.DefaultCircuitBreakerConfig())
}

type mockNotion struct{ mock.Mock }

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	return nil, args.Error(1)
}

func lookup(key string) any {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == lookupKeyProperty && pf.RichText != nil && pf.RichText.Equals == key
	})
}

func enrichmentPage() notionapi.Page {
	return notionapi.Page{ID: "row-1", Properties: notionapi.Properties{
		"Email":        &notionapi.EmailProperty{Email: "dana@northwind.example"},
		"Email Status": &notionapi.SelectProperty{Select: notionapi.Option{Name: "Verified"}},
		"Phone":        &notionapi.PhoneNumberProperty{PhoneNumber: "+1-704-555-0101"},
		"Organization": &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: "Northwind"}}},
		"Employees":    &notionapi.NumberProperty{Number: 12000},
	}}
}

func TestNotionEnricherFallsBackToEmail(t *testing.T) {
	ctx := context.Background()
	mc := new(mockNotion)
	mc.On("QueryDatabase", mock.Anything, "db", lookup("linkedin.com/in/dana")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("QueryDatabase", mock.Anything, "db", lookup("dana@northwind.example")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{enrichmentPage()}}, nil).Once()

	e := NewNotionEnricher(mc, "db", fastGuard())
	en, err := e.Fetch(ctx, model.Identity{LinkedInURL: "https://www.linkedin.com/in/dana/", Email: "Dana@Northwind.example"})
	require.NoError(t, err)
	assert.True(t, en.EmailVerified())
	assert.Equal(t, []string{"+1-704-555-0101"}, en.Phones)
	assert.Equal(t, 12000, en.OrganizationEmployees)
	assert.Equal(t, "notion", en.Provider)
	mc.AssertExpectations(t)
}

func TestNotionEnricherNotFound(t *testing.T) {
	mc := new(mockNotion)
	mc.On("QueryDatabase", mock.Anything, "db", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil)

	e := NewNotionEnricher(mc, "db", fastGuard())
	_, err := e.Fetch(context.Background(), model.Identity{Email: "ghost@example.com"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.Fetch(context.Background(), model.Identity{FullName: "No Keys"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestNotionEnricherUnavailable(t *testing.T) {
	mc := new(mockNotion)
	mc.On("QueryDatabase", mock.Anything, "db", mock.Anything).Return(nil, errors.New("notion: 502 bad gateway"))

	e := NewNotionEnricher(mc, "db", fastGuard())
	_, err := e.Fetch(context.Background(), model.Identity{Email: "a@example.com"})
	assert.ErrorIs(t, err, model.ErrExternalUnavailable)
}

type fakePerplexity struct {
	calls atomic.Int32
	fail  int32
	err   error
	resp  *perplexity.ChatCompletionResponse
	last  perplexity.ChatCompletionRequest
}

func (f *fakePerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.last = req
	if f.calls.Add(1) <= f.fail {
		return nil, f.err
	}
	return f.resp, nil
}

func completion(text string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: text}}}}
}

func TestPerplexityResearcher(t *testing.T) {
	fp := &fakePerplexity{
		fail: 1,
		err:  &perplexity.APIError{StatusCode: 503},
		resp: completion("  Dana chairs the audit committee at two firms. "),
	}
	fp.resp.Citations = []string{"https://news.example/dana"}
	r := NewPerplexityResearcher(fp, "sonar", fastGuard())

	res, err := r.Fetch(context.Background(), "Dana Whitfield", "Northwind", "board_member")
	require.NoError(t, err)
	assert.Equal(t, "Dana chairs the audit committee at two firms.", res.Text)
	assert.Equal(t, "board_member", res.OpportunityType)
	assert.Equal(t, "perplexity", res.Provider)
	assert.Equal(t, []string{"https://news.example/dana"}, res.Sources)
	assert.Equal(t, perplexity.RecencyYear, fp.last.SearchRecencyFilter)
	assert.Equal(t, int32(2), fp.calls.Load())
	assert.Equal(t, "sonar", fp.last.Model)
	assert.Contains(t, fp.last.Messages[1].Content, "board member role")
}

func TestPerplexityResearcherFailures(t *testing.T) {
	fp := &fakePerplexity{fail: 10, err: &perplexity.APIError{StatusCode: 401}}
	r := NewPerplexityResearcher(fp, "", fastGuard())
	_, err := r.Fetch(context.Background(), "Dana", "", "")
	assert.ErrorIs(t, err, model.ErrExternalUnavailable)
	assert.Equal(t, int32(1), fp.calls.Load())

	empty := NewPerplexityResearcher(&fakePerplexity{resp: completion(" ")}, "", fastGuard())
	_, err = empty.Fetch(context.Background(), "Dana", "", "")
	assert.ErrorIs(t, err, model.ErrExternalUnavailable)

	_, err = empty.Fetch(context.Background(), " ", "", "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestResearchPrompt(t *testing.T) {
	assert.Equal(t, "Research Dana of Northwind. Focus on fit for a keynote speaker role.", ResearchPrompt("Dana", "Northwind", "keynote_speaker"))
	assert.Equal(t, "Research Dana.", ResearchPrompt("Dana", "", ""))
}

type fakeClaude struct {
	text string
	err  error
}

func (f fakeClaude) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: f.text}}}, nil
}

func TestClaudeAnalyzer(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		hint   model.Sentiment
		action model.ResponseAction
	}{
		{"interested", `{"sentiment":"positive","interest":"high","keywords":["love to"]}`, "", model.ResponseEscalate},
		{"prose around json", "Here you go:\n{\"sentiment\":\"negative\",\"interest\":\"low\"}\n", "", model.ResponseComplete},
		{"unsubscribe", `{"sentiment":"negative","interest":"low","unsubscribe":true}`, "", model.ResponseStop},
		{"mixed", `{"sentiment":"neutral","interest":"medium","conflicting":true}`, "", model.ResponsePause},
		{"hint disagrees", `{"sentiment":"positive","interest":"high"}`, model.SentimentNegative, model.ResponsePause},
		{"neutral", `{"sentiment":"neutral","interest":"medium"}`, "", model.ResponseContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewClaudeAnalyzer(fakeClaude{text: tt.text}, "claude-haiku-4-5-20251001", fastGuard())
			got, err := a.Analyze(context.Background(), "reply text", tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, "anthropic", got.AnalyzedBy)
		})
	}
}

func TestClaudeAnalyzerErrors(t *testing.T) {
	a := NewClaudeAnalyzer(fakeClaude{text: "I cannot help with that"}, "m", fastGuard())
	_, err := a.Analyze(context.Background(), "hello", "")
	assert.ErrorContains(t, err, "no JSON object")

	down := NewClaudeAnalyzer(fakeClaude{err: &anthropic.APIError{StatusCode: 529, Err: errors.New("overloaded")}}, "m", fastGuard())
	_, err = down.Analyze(context.Background(), "hello", "")
	assert.ErrorIs(t, err, model.ErrExternalUnavailable)

	got, err := down.Analyze(context.Background(), "   ", "")
	require.NoError(t, err)
	assert.Equal(t, "keywords", got.AnalyzedBy)
}
