package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	queryFn     func(ctx context.Context, soql string, out any) error
	insertOneFn func(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	updateOneFn func(ctx context.Context, sObjectName, id string, fields map[string]any) error
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, sObjectName, record)
	}
	return "001000000000001", nil
}

func (m *mockClient) UpdateOne(ctx context.Context, sObjectName, id string, fields map[string]any) error {
	if m.updateOneFn != nil {
		return m.updateOneFn(ctx, sObjectName, id, fields)
	}
	return nil
}

func TestFindContactByEmail(t *testing.T) {
	var soql string
	mc := &mockClient{queryFn: func(_ context.Context, q string, out any) error {
		soql = q
		*(out.(*[]Contact)) = []Contact{{ID: "003a", Email: "o'neil@example.com"}}
		return nil
	}}

	c, err := FindContactByEmail(context.Background(), mc, "o'neil@example.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "003a", c.ID)
	assert.Contains(t, soql, `Email = 'o\'neil@example.com'`)
	assert.Contains(t, soql, "FROM Contact")
}

func TestFindContactByEmailMissing(t *testing.T) {
	c, err := FindContactByEmail(context.Background(), &mockClient{}, "none@example.com")
	require.NoError(t, err)
	assert.Nil(t, c)

	mc := &mockClient{queryFn: func(context.Context, string, any) error { return errors.New("boom") }}
	_, err = FindContactByEmail(context.Background(), mc, "x@example.com")
	assert.ErrorContains(t, err, "find contact by email")
}

func TestCreateContact(t *testing.T) {
	var object string
	mc := &mockClient{insertOneFn: func(_ context.Context, o string, _ map[string]any) (string, error) {
		object = o
		return "003new", nil
	}}

	id, err := CreateContact(context.Background(), mc, map[string]any{"LastName": "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "003new", id)
	assert.Equal(t, "Contact", object)

	_, err = CreateContact(context.Background(), mc, map[string]any{"FirstName": "Ada"})
	assert.ErrorContains(t, err, "LastName is required")
}

func TestCreateOpportunity(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		wantErr string
	}{
		{"ok", map[string]any{"Name": "Advisory", "StageName": StageProspecting, "CloseDate": "2026-07-01"}, ""},
		{"no name", map[string]any{"StageName": StageProspecting, "CloseDate": "2026-07-01"}, "Name is required"},
		{"no stage", map[string]any{"Name": "Advisory", "CloseDate": "2026-07-01"}, "StageName is required"},
		{"no close date", map[string]any{"Name": "Advisory", "StageName": StageProspecting}, "CloseDate is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := CreateOpportunity(context.Background(), &mockClient{}, tt.fields)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)
		})
	}

	mc := &mockClient{insertOneFn: func(context.Context, string, map[string]any) (string, error) {
		return "", errors.New("api error")
	}}
	_, err := CreateOpportunity(context.Background(), mc, tests[0].fields)
	assert.ErrorContains(t, err, "create opportunity")
}

func TestUpdateOpportunity(t *testing.T) {
	var gotID string
	mc := &mockClient{updateOneFn: func(_ context.Context, o, id string, _ map[string]any) error {
		assert.Equal(t, "Opportunity", o)
		gotID = id
		return nil
	}}

	require.NoError(t, UpdateOpportunity(context.Background(), mc, "006a", map[string]any{"StageName": StageClosedLost}))
	assert.Equal(t, "006a", gotID)
	assert.ErrorContains(t, UpdateOpportunity(context.Background(), mc, "", map[string]any{"a": 1}), "id is required")
	assert.ErrorContains(t, UpdateOpportunity(context.Background(), mc, "006a", nil), "no fields")
}
