package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/leadtest"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

type fakeLeads []*model.Lead

func (f fakeLeads) ListLeads(_ context.Context, lf model.LeadFilter) ([]*model.Lead, error) {
	var out []*model.Lead
	for _, l := range f {
		if lf.CampaignID == "" || l.CampaignID == lf.CampaignID {
			out = append(out, l)
		}
	}
	return out, nil
}

func TestPriorityScore(t *testing.T) {
	now := leadtest.Now
	replied := now.Add(-48 * time.Hour)
	l := &model.Lead{
		ID:               "l1",
		Score:            80,
		EngagementScore:  60,
		Qualification:    model.TierQualified,
		OpportunityScore: 50,
		LastResponseAt:   &replied,
	}

	p := PriorityScore(l, now)
	assert.InDelta(t, 73.5, p.Score, 0.001)
	assert.Equal(t, PriorityMedium, p.Tier)
	assert.InDelta(t, 90, p.Components["recency"], 0.001)

	silent := &model.Lead{ID: "l2", Score: 40}
	assert.InDelta(t, 12, PriorityScore(silent, now).Score, 0.001)
	assert.Zero(t, PriorityScore(silent, now).Components["recency"])
}

func TestPriorityRecencyFloor(t *testing.T) {
	old := leadtest.Now.Add(-60 * 24 * time.Hour)
	l := &model.Lead{ID: "l1", LastResponseAt: &old}
	assert.Zero(t, PriorityScore(l, leadtest.Now).Components["recency"])
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, PriorityCritical, TierFor(90))
	assert.Equal(t, PriorityHigh, TierFor(75))
	assert.Equal(t, PriorityMedium, TierFor(50))
	assert.Equal(t, PriorityLow, TierFor(49.99))
}

func TestRank(t *testing.T) {
	a := &model.Lead{ID: "a", Score: 20}
	b := &model.Lead{ID: "b", Score: 90, Qualification: model.TierHot}
	c := &model.Lead{ID: "c", Score: 20}
	ranked := Rank([]*model.Lead{a, b, c}, leadtest.Now)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{ranked[0].LeadID, ranked[1].LeadID, ranked[2].LeadID})
}

func newAlerter(cfg config.AlertingConfig) (*Alerter, *MemoryAlerts) {
	st := NewMemoryAlerts()
	a := NewAlerter(st, cfg)
	a.now = func() time.Time { return leadtest.Now }
	return a, st
}

func TestRaiseDedupsWithinWindow(t *testing.T) {
	ctx := context.Background()
	a, st := newAlerter(config.AlertingConfig{DedupWindow: 24 * time.Hour})

	first := &model.Alert{Type: model.AlertHotLead, Severity: model.SeverityCritical, LeadID: "l1", CreatedAt: leadtest.Now}
	ok, err := a.Raise(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, first.ID)

	ok, err = a.Raise(ctx, &model.Alert{Type: model.AlertHotLead, LeadID: "l1", CreatedAt: leadtest.Now.Add(23 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, ok)

	// Different lead or type is not a duplicate.
	ok, err = a.Raise(ctx, &model.Alert{Type: model.AlertHotLead, LeadID: "l2", CreatedAt: leadtest.Now})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.Raise(ctx, &model.Alert{Type: model.AlertResponseReceived, LeadID: "l1", CreatedAt: leadtest.Now})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Raise(ctx, &model.Alert{Type: model.AlertHotLead, LeadID: "l1", CreatedAt: leadtest.Now.Add(25 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := st.ListAlerts(ctx, model.AlertFilter{LeadID: "l1", Type: model.AlertHotLead})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCheckLead(t *testing.T) {
	ctx := context.Background()
	a, st := newAlerter(config.AlertingConfig{ResponseWindow: 2 * time.Hour})

	l := leadtest.Connected("l1")
	l.Qualification = model.TierHot
	l.Score = 92
	l.Record(model.Activity{Kind: model.ActivityResponseReceived, At: leadtest.Now.Add(-time.Hour), Content: "yes"})

	require.NoError(t, a.CheckLead(ctx, l, leadtest.Now))
	require.NoError(t, a.CheckLead(ctx, l, leadtest.Now.Add(10*time.Minute)))

	alerts, err := st.ListAlerts(ctx, model.AlertFilter{LeadID: "l1"})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	types := map[model.AlertType]bool{}
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[model.AlertHotLead])
	assert.True(t, types[model.AlertResponseReceived])
}

func TestCheckLeadOutsideResponseWindow(t *testing.T) {
	ctx := context.Background()
	a, st := newAlerter(config.AlertingConfig{ResponseWindow: 2 * time.Hour})

	l := leadtest.Connected("l1")
	l.Record(model.Activity{Kind: model.ActivityResponseReceived, At: leadtest.Now.Add(-3 * time.Hour)})
	require.NoError(t, a.CheckLead(ctx, l, leadtest.Now))

	alerts, err := st.ListAlerts(ctx, model.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestWebhookForwardsBySeverity(t *testing.T) {
	var calls atomic.Int32
	var got model.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, _ := newAlerter(config.AlertingConfig{WebhookURL: srv.URL, MinSeverity: "high"})
	ctx := context.Background()

	_, err := a.Raise(ctx, &model.Alert{Type: model.AlertResponseReceived, Severity: model.SeverityMedium, LeadID: "l1"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load())

	_, err = a.Raise(ctx, &model.Alert{Type: model.AlertHotLead, Severity: model.SeverityCritical, LeadID: "l1", Title: "Hot lead"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Hot lead", got.Title)
}

func TestSlowWebhookDoesNotBlockOtherRaises(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	defer unblock()

	a, st := newAlerter(config.AlertingConfig{WebhookURL: srv.URL, MinSeverity: "high"})
	ctx := context.Background()

	forwarded := make(chan bool, 1)
	go func() {
		ok, _ := a.Raise(ctx, &model.Alert{Type: model.AlertHotLead, Severity: model.SeverityCritical, LeadID: "l1"})
		forwarded <- ok
	}()
	<-entered

	done := make(chan bool, 1)
	go func() {
		ok, _ := a.Raise(ctx, &model.Alert{Type: model.AlertResponseReceived, Severity: model.SeverityMedium, LeadID: "l2"})
		done <- ok
	}()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("raise waited on another alert's webhook")
	}

	unblock()
	assert.True(t, <-forwarded)
	all, err := st.ListAlerts(ctx, model.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWebhookFailureStillStores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a, st := newAlerter(config.AlertingConfig{WebhookURL: srv.URL})
	ok, err := a.Raise(context.Background(), &model.Alert{Type: model.AlertHotLead, Severity: model.SeverityCritical, LeadID: "l1"})
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := st.ListAlerts(context.Background(), model.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestActiveAndAcknowledge(t *testing.T) {
	ctx := context.Background()
	a, _ := newAlerter(config.AlertingConfig{})

	low := &model.Alert{Type: model.AlertCampaignMilestone, Severity: model.SeverityLow, CampaignID: "c1", CreatedAt: leadtest.Now.Add(-3 * time.Hour)}
	oldHigh := &model.Alert{Type: model.AlertWorkflowStalled, Severity: model.SeverityHigh, LeadID: "l1", CreatedAt: leadtest.Now.Add(-2 * time.Hour)}
	newHigh := &model.Alert{Type: model.AlertWorkflowStalled, Severity: model.SeverityHigh, LeadID: "l2", CreatedAt: leadtest.Now.Add(-time.Hour)}
	crit := &model.Alert{Type: model.AlertHotLead, Severity: model.SeverityCritical, LeadID: "l3", CreatedAt: leadtest.Now}
	for _, al := range []*model.Alert{low, oldHigh, newHigh, crit} {
		_, err := a.Raise(ctx, al)
		require.NoError(t, err)
	}

	active, err := a.Active(ctx, model.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, active, 4)
	assert.Equal(t, []string{crit.ID, oldHigh.ID, newHigh.ID, low.ID},
		[]string{active[0].ID, active[1].ID, active[2].ID, active[3].ID})

	require.NoError(t, a.Acknowledge(ctx, crit.ID))
	active, err = a.Active(ctx, model.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, active, 3)

	assert.ErrorIs(t, a.Acknowledge(ctx, "missing"), model.ErrNotFound)
}

func TestCollectAndObserve(t *testing.T) {
	ctx := context.Background()
	now := leadtest.Now

	l1 := leadtest.Connected("l1")
	l1.CampaignID = "c1"
	l2 := leadtest.Junior("l2")
	l2.CampaignID = "c2"

	reg := workflow.NewMemoryRegistry()
	require.NoError(t, reg.CreateExecution(ctx, &model.Execution{
		ID: "e1", LeadID: "l1", CampaignID: "c1", Status: model.ExecutionPaused,
		StartedAt: now.Add(-100 * time.Hour), UpdatedAt: now.Add(-100 * time.Hour),
	}))

	c := NewCollector(fakeLeads{l1, l2}, reg, NewMemoryAlerts())
	snap, err := c.Collect(ctx, "", now)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Executions[model.ExecutionPaused])
	require.Len(t, snap.StalePaused, 1)
	assert.Len(t, snap.TopLeads, 2)

	scoped, err := c.Collect(ctx, "c2", now)
	require.NoError(t, err)
	assert.Equal(t, 1, scoped.Total)
	assert.Empty(t, scoped.Executions)

	m := NewMetrics()
	m.Observe(snap)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executions.WithLabelValues("paused")), 0.001)
	assert.InDelta(t, float64(now.Unix()), testutil.ToFloat64(m.lastCollection), 0.001)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "outreach_workflow_executions"))
}

func TestCheckerRaisesStalledAndResponseFloor(t *testing.T) {
	ctx := context.Background()
	now := leadtest.Now

	var leads fakeLeads
	for i := 0; i < minContactedForRate; i++ {
		l := leadtest.Junior(string(rune('a'+i)) + "-lead")
		l.Record(model.Activity{Kind: model.ActivityConnectionSent, At: now.Add(-24 * time.Hour)})
		leads = append(leads, l)
	}

	reg := workflow.NewMemoryRegistry()
	require.NoError(t, reg.CreateExecution(ctx, &model.Execution{
		ID: "e1", LeadID: leads[0].ID, Status: model.ExecutionPaused,
		StartedAt: now.Add(-80 * time.Hour), UpdatedAt: now.Add(-80 * time.Hour),
	}))

	alerts := NewMemoryAlerts()
	alerter, _ := newAlerter(config.AlertingConfig{})
	alerter.store = alerts
	checker := NewChecker(NewCollector(leads, reg, alerts), alerter, NewMetrics(), config.MonitoringConfig{
		StalledPausedMaxAge:  72 * time.Hour,
		ResponseRateFloorPct: 10,
	})
	checker.now = func() time.Time { return now }

	raised, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, raised)

	stalled, err := alerts.ListAlerts(ctx, model.AlertFilter{Type: model.AlertWorkflowStalled})
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "e1", stalled[0].ExecutionID)

	// A second pass inside the dedup window stores nothing new.
	raised, err = checker.Check(ctx)
	require.NoError(t, err)
	assert.Zero(t, raised)
}
