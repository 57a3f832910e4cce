package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/dispatch"
	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/leadtest"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/qualify"
	"github.com/sells-group/outreach-cli/internal/scorer"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

const testSecret = "s3cret"

func newTestAPI(t *testing.T) (*store.Memory, http.Handler) {
	t.Helper()
	st := store.NewMemory()
	cat, err := workflow.BuiltinCatalog()
	require.NoError(t, err)
	s, err := scorer.New(scorer.DefaultConfig())
	require.NoError(t, err)

	eng := engine.New(engine.Deps{
		Store:      st,
		Catalog:    cat,
		Qualifier:  qualify.New(s, qualify.DefaultQualificationConfig()),
		Alerter:    monitoring.NewAlerter(st, config.AlertingConfig{}),
		Dispatcher: dispatch.NewRecorder(),
	}, workflow.Options{Now: func() time.Time { return leadtest.Now }})

	metrics := monitoring.NewMetrics()
	return st, buildRouter(&api{eng: eng, secret: testSecret, metrics: metrics.Handler()}, []string{"https://ops.example"})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := newTestAPI(t)

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.NotFoundf("lead x"), http.StatusNotFound},
		{model.Validationf("bad"), http.StatusBadRequest},
		{model.NewAlreadyActive("l", "e"), http.StatusConflict},
		{model.Unavailablef("notion"), http.StatusBadGateway},
		{eris.Wrap(model.ErrInvariantViolation, "broken"), http.StatusInternalServerError},
		{eris.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCampaignEndpoints(t *testing.T) {
	_, h := newTestAPI(t)

	rr := do(t, h, http.MethodPost, "/api/v1/campaigns", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "Boards Q2", "daily_cap": 25})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var c model.Campaign
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Equal(t, 25, c.DailyCap)

	rr = do(t, h, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, model.CampaignPaused, c.Status)

	rr = do(t, h, http.MethodPost, "/api/v1/campaigns/nope/resume", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/campaigns", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var cs []model.Campaign
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cs))
	assert.Len(t, cs, 1)
}

func TestLeadEndpoints(t *testing.T) {
	_, h := newTestAPI(t)

	rr := do(t, h, http.MethodPost, "/api/v1/leads", map[string]any{
		"full_name":    "Jordan Lake",
		"title":        "Chief Financial Officer",
		"company":      "Harbor Bank",
		"linkedin_url": "https://linkedin.example/in/jordan",
		"source":       "linkedin",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var l model.Lead
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &l))
	assert.Equal(t, "Jordan", l.FirstName)
	assert.Equal(t, model.SourceLinkedIn, l.Source)

	rr = do(t, h, http.MethodPost, "/api/v1/leads", map[string]any{"title": "CTO"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/leads/"+l.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/v1/leads/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/v1/leads/"+l.ID+"/qualification", map[string]string{"tier": "platinum"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodPut, "/api/v1/leads/"+l.ID+"/qualification", map[string]string{"tier": "potential"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &l))
	assert.Equal(t, model.TierPotential, l.Qualification)
	assert.Equal(t, model.TierPotential, l.TierOverride)

	rr = do(t, h, http.MethodPost, "/api/v1/leads/"+l.ID+"/workflow", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var ex model.Execution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ex))
	assert.Equal(t, model.WorkflowWarmFollowUp, ex.WorkflowType)

	rr = do(t, h, http.MethodPost, "/api/v1/leads/"+l.ID+"/workflow", map[string]string{"template_id": "vip_sequence_v1"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/executions/"+ex.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/v1/executions/"+ex.ID+"/pause", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "already paused")
	rr = do(t, h, http.MethodPost, "/api/v1/executions/"+ex.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/v1/executions/"+ex.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ex))
	assert.Equal(t, model.ExecutionCancelled, ex.Status)

	rr = do(t, h, http.MethodGet, "/api/v1/analytics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var an workflow.Analytics
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &an))
	assert.Equal(t, 1, an.Total)

	rr = do(t, h, http.MethodDelete, "/api/v1/leads/"+l.ID+"/qualification", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var cleared model.Lead
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cleared))
	assert.Empty(t, cleared.TierOverride)
	assert.NotNil(t, cleared.ScoredAt)
}

func TestOpportunityStatusEndpoint(t *testing.T) {
	st, h := newTestAPI(t)
	ctx := context.Background()

	l := leadtest.Junior("jr")
	l.OpportunityID = "opp-1"
	l.OpportunityStatus = model.OpportunityProposed
	l.LastAdvancedStage = model.StageOpportunity
	require.NoError(t, st.CreateLead(ctx, l))
	require.NoError(t, st.CreateOpportunity(ctx, &model.Opportunity{
		ID: "opp-1", LeadID: "jr", Type: "advisory_board", Status: model.OpportunityProposed, CreatedAt: leadtest.Now,
	}))

	rr := do(t, h, http.MethodPost, "/api/v1/leads/jr/workflow", map[string]string{"template_id": "cold_outreach_v1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var ex model.Execution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ex))

	rr = do(t, h, http.MethodPut, "/api/v1/leads/jr/opportunity", map[string]string{"status": "won"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/v1/leads/jr/opportunity", map[string]string{"status": "declined"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got model.Lead
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.StageClosedLost, got.LastAdvancedStage)
	assert.Equal(t, model.OpportunityDeclined, got.OpportunityStatus)

	cur, err := st.GetExecution(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCancelled, cur.Status)

	opp, err := st.GetOpportunity(ctx, "opp-1")
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityDeclined, opp.Status)

	rr = do(t, h, http.MethodPut, "/api/v1/leads/missing/opportunity", map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPrioritiesEndpoint(t *testing.T) {
	st, h := newTestAPI(t)
	ctx := context.Background()

	hot := leadtest.Executive("hot")
	hot.Score, hot.Qualification, hot.EngagementScore = 92, model.TierHot, 80
	cold := leadtest.Junior("cold")
	cold.Score, cold.Qualification = 20, model.TierUnqualified
	require.NoError(t, st.CreateLead(ctx, cold))
	require.NoError(t, st.CreateLead(ctx, hot))

	rr := do(t, h, http.MethodGet, "/api/v1/leads/priorities?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ps []monitoring.Priority
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, "hot", ps[0].LeadID)
}

func TestAlertEndpoints(t *testing.T) {
	st, h := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAlert(ctx, &model.Alert{
		ID: "al-1", Type: model.AlertHotLead, Severity: model.SeverityHigh, LeadID: "x", CreatedAt: leadtest.Now,
	}))

	rr := do(t, h, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var alerts []model.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)

	rr = do(t, h, http.MethodPost, "/api/v1/alerts/al-1/ack", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/v1/alerts/none/ack", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/alerts", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alerts))
	assert.Empty(t, alerts)
}

func TestEventWebhook(t *testing.T) {
	st, h := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, st.CreateLead(ctx, leadtest.Junior("jr")))

	post := func(body []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/events", bytes.NewReader(body))
		req.Header.Set(dispatch.SignatureHeader, sig)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	body := []byte(`{"type":"connection_accepted","lead_id":"jr"}`)
	rr := post(body, "deadbeef")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post(body, dispatch.Sign(testSecret, body))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	l, err := st.GetLead(ctx, "jr")
	require.NoError(t, err)
	require.NotNil(t, l.ConnectionAcceptedAt)
	assert.Equal(t, leadtest.Now, *l.ConnectionAcceptedAt)

	missing := []byte(`{"type":"email_opened","lead_id":"ghost"}`)
	rr = post(missing, dispatch.Sign(testSecret, missing))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTemplatesEndpoint(t *testing.T) {
	_, h := newTestAPI(t)
	rr := do(t, h, http.MethodGet, "/api/v1/templates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ts []workflow.Template
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ts))
	assert.Len(t, ts, 5)
}
