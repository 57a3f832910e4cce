package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestNewClientReturnsClient(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(0))
	assert.NotNil(t, c)
}

func TestText(t *testing.T) {
	props := notionapi.Properties{
		"Name":     &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Ada "}, {PlainText: "Lovelace "}}},
		"Company":  &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: " Analytical Engines"}}},
		"Email":    &notionapi.EmailProperty{Email: "ada@example.com"},
		"LinkedIn": &notionapi.URLProperty{URL: "https://linkedin.com/in/ada"},
		"Phone":    &notionapi.PhoneNumberProperty{PhoneNumber: "+1 555 0100"},
		"Size":     &notionapi.SelectProperty{Select: notionapi.Option{Name: "51-200"}},
		"Status":   &notionapi.StatusProperty{Status: notionapi.Status{Name: "Queued"}},
		"Score":    &notionapi.NumberProperty{Number: 42},
	}

	assert.Equal(t, "Ada Lovelace", Text(props, "Name"))
	assert.Equal(t, "Analytical Engines", Text(props, "Company"))
	assert.Equal(t, "ada@example.com", Text(props, "Email"))
	assert.Equal(t, "https://linkedin.com/in/ada", Text(props, "LinkedIn"))
	assert.Equal(t, "+1 555 0100", Text(props, "Phone"))
	assert.Equal(t, "51-200", Text(props, "Size"))
	assert.Equal(t, "Queued", Text(props, "Status"))
	assert.Equal(t, "", Text(props, "Missing"))
	assert.Equal(t, "", Text(props, "Score"))
	assert.InDelta(t, 42, Number(props, "Score"), 0.001)
	assert.Zero(t, Number(props, "Name"))
}
