package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/leadtest"
	"github.com/sells-group/outreach-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// forEachStore runs fn against every backend that needs no server.
func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

func execution(id, leadID string, status model.ExecutionStatus, next time.Time) *model.Execution {
	return &model.Execution{
		ID:           id,
		LeadID:       leadID,
		CampaignID:   "camp",
		TemplateID:   "cold_outreach_v1",
		WorkflowType: model.WorkflowColdOutreach,
		Status:       status,
		NextActionAt: next,
		StartedAt:    next.Add(-time.Hour),
		UpdatedAt:    next.Add(-time.Hour),
	}
}

func TestLeads(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		l := leadtest.Executive("l1")
		l.CampaignID = "camp"
		require.NoError(t, st.CreateLead(ctx, l))
		assert.ErrorIs(t, st.CreateLead(ctx, leadtest.Executive("l1")), model.ErrValidation)

		got, err := st.GetLead(ctx, "l1")
		require.NoError(t, err)
		assert.Equal(t, "Dana Whitfield", got.DisplayName())
		assert.Equal(t, "camp", got.CampaignID)

		got.Score = 77
		scored := leadtest.Now
		got.ScoredAt = &scored
		require.NoError(t, st.UpdateLead(ctx, got))
		again, err := st.GetLead(ctx, "l1")
		require.NoError(t, err)
		assert.InDelta(t, 77, again.Score, 0.001)

		_, err = st.GetLead(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.ErrorIs(t, st.UpdateLead(ctx, &model.Lead{ID: "missing"}), model.ErrNotFound)

		require.NoError(t, st.CreateLead(ctx, leadtest.Junior("l2")))

		byCampaign, err := st.ListLeads(ctx, model.LeadFilter{CampaignID: "camp"})
		require.NoError(t, err)
		require.Len(t, byCampaign, 1)
		assert.Equal(t, "l1", byCampaign[0].ID)

		stale, err := st.ListLeads(ctx, model.LeadFilter{ScoredBefore: leadtest.Now})
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "l2", stale[0].ID)

		all, err := st.ListLeads(ctx, model.LeadFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestImportLeadsSkipsExisting(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		existing := leadtest.Executive("l1")
		existing.Score = 88
		require.NoError(t, st.CreateLead(ctx, existing))

		n, err := st.ImportLeads(ctx, []*model.Lead{leadtest.Executive("l1"), leadtest.Junior("l2"), {Identity: model.Identity{FullName: "No Id"}}})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		kept, err := st.GetLead(ctx, "l1")
		require.NoError(t, err)
		assert.InDelta(t, 88, kept.Score, 0.001)

		all, err := st.ListLeads(ctx, model.LeadFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestCampaigns(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		c := &model.Campaign{Name: "Q3 directors", DailyCap: 10, WeeklyCap: 40}
		require.NoError(t, st.CreateCampaign(ctx, c))
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, model.CampaignDraft, c.Status)

		c.Status = model.CampaignActive
		require.NoError(t, st.UpdateCampaign(ctx, c))
		got, err := st.GetCampaign(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, got.Sending())

		assert.ErrorIs(t, st.CreateCampaign(ctx, &model.Campaign{Name: ""}), model.ErrValidation)
		_, err = st.GetCampaign(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)

		list, err := st.ListCampaigns(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestOpportunityUniquePerLead(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		require.NoError(t, st.CreateLead(ctx, leadtest.Executive("l1")))

		o := &model.Opportunity{LeadID: "l1", Type: "board_director", Title: "Board seat"}
		require.NoError(t, st.CreateOpportunity(ctx, o))
		assert.Equal(t, model.OpportunityProspect, o.Status)

		err := st.CreateOpportunity(ctx, &model.Opportunity{LeadID: "l1", Type: "advisory"})
		assert.ErrorIs(t, err, model.ErrValidation)

		byLead, err := st.OpportunityForLead(ctx, "l1")
		require.NoError(t, err)
		assert.Equal(t, o.ID, byLead.ID)

		byLead.Status = model.OpportunityAccepted
		byLead.ExternalID = "006xx"
		require.NoError(t, st.UpdateOpportunity(ctx, byLead))
		got, err := st.GetOpportunity(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OpportunityAccepted, got.Status)
		assert.Equal(t, "006xx", got.ExternalID)

		list, err := st.ListOpportunities(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = st.OpportunityForLead(ctx, "nobody")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestExecutionsLiveUniqueness(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := leadtest.Now
		require.NoError(t, st.CreateLead(ctx, leadtest.Executive("l1")))

		first := execution("e1", "l1", model.ExecutionActive, now)
		require.NoError(t, st.CreateExecution(ctx, first))

		err := st.CreateExecution(ctx, execution("e2", "l1", model.ExecutionActive, now))
		require.ErrorIs(t, err, model.ErrAlreadyActive)
		assert.Contains(t, err.Error(), "e1")

		live, err := st.LiveExecution(ctx, "l1")
		require.NoError(t, err)
		assert.Equal(t, "e1", live.ID)

		first.Finish(model.ExecutionCompleted, model.OutcomeCompleted, now)
		require.NoError(t, st.UpdateExecution(ctx, first))
		_, err = st.LiveExecution(ctx, "l1")
		assert.ErrorIs(t, err, model.ErrNotFound)

		require.NoError(t, st.CreateExecution(ctx, execution("e3", "l1", model.ExecutionActive, now)))

		finished, err := st.ListExecutions(ctx, model.ExecutionFilter{LeadID: "l1", Statuses: []model.ExecutionStatus{model.ExecutionCompleted}})
		require.NoError(t, err)
		require.Len(t, finished, 1)
		assert.Equal(t, model.OutcomeCompleted, finished[0].Outcome)

		assert.ErrorIs(t, st.UpdateExecution(ctx, execution("nope", "l9", model.ExecutionCancelled, now)), model.ErrNotFound)
	})
}

func TestConcurrentCreateExecution(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		require.NoError(t, st.CreateLead(ctx, leadtest.Executive("l1")))

		const n = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, refused := 0, 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := st.CreateExecution(ctx, execution(string(rune('a'+i)), "l1", model.ExecutionActive, leadtest.Now))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case assert.ErrorIs(t, err, model.ErrAlreadyActive):
					refused++
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, n-1, refused)
	})
}

func TestDueExecutions(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := leadtest.Now
		for _, id := range []string{"l1", "l2", "l3", "l4"} {
			require.NoError(t, st.CreateLead(ctx, leadtest.Junior(id)))
		}
		require.NoError(t, st.CreateExecution(ctx, execution("late", "l1", model.ExecutionActive, now.Add(-time.Minute))))
		require.NoError(t, st.CreateExecution(ctx, execution("early", "l2", model.ExecutionActive, now.Add(-time.Hour))))
		require.NoError(t, st.CreateExecution(ctx, execution("future", "l3", model.ExecutionActive, now.Add(time.Hour))))
		require.NoError(t, st.CreateExecution(ctx, execution("paused", "l4", model.ExecutionPaused, now.Add(-2*time.Hour))))

		due, err := st.DueExecutions(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "early", due[0].ID)
		assert.Equal(t, "late", due[1].ID)

		due, err = st.DueExecutions(ctx, now, 1)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})
}

func TestReserveSendCaps(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		// Monday.
		mon := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
		tue := mon.Add(24 * time.Hour)

		for i := 0; i < 2; i++ {
			ok, err := st.ReserveSend(ctx, "camp", mon, 2, 3)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := st.ReserveSend(ctx, "camp", mon, 2, 3)
		require.NoError(t, err)
		assert.False(t, ok, "daily cap")

		ok, err = st.ReserveSend(ctx, "camp", tue, 2, 3)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = st.ReserveSend(ctx, "camp", tue, 2, 3)
		require.NoError(t, err)
		assert.False(t, ok, "weekly cap")

		ok, err = st.ReserveSend(ctx, "other", tue, 2, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.ReserveSend(ctx, "camp", mon.Add(7*24*time.Hour), 2, 3)
		require.NoError(t, err)
		assert.True(t, ok, "next week")

		ok, err = st.ReserveSend(ctx, "unlimited", mon, 0, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestConcurrentReserveSend(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		var mu sync.Mutex
		granted := 0
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := st.ReserveSend(ctx, "camp", leadtest.Now, 5, 0)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 5, granted)
	})
}

func TestAlerts(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := leadtest.Now
		older := &model.Alert{ID: "a1", Type: model.AlertHotLead, Severity: model.SeverityCritical, LeadID: "l1", CampaignID: "camp", CreatedAt: now.Add(-time.Hour)}
		newer := &model.Alert{ID: "a2", Type: model.AlertHotLead, Severity: model.SeverityCritical, LeadID: "l1", CampaignID: "camp", CreatedAt: now}
		campaignWide := &model.Alert{ID: "a3", Type: model.AlertCampaignMilestone, Severity: model.SeverityLow, CampaignID: "camp", CreatedAt: now}
		for _, a := range []*model.Alert{older, newer, campaignWide} {
			require.NoError(t, st.CreateAlert(ctx, a))
		}

		latest, err := st.LatestAlert(ctx, "l1", "camp", model.AlertHotLead)
		require.NoError(t, err)
		assert.Equal(t, "a2", latest.ID)

		wide, err := st.LatestAlert(ctx, "", "camp", model.AlertCampaignMilestone)
		require.NoError(t, err)
		assert.Equal(t, "a3", wide.ID)

		_, err = st.LatestAlert(ctx, "l2", "camp", model.AlertHotLead)
		assert.ErrorIs(t, err, model.ErrNotFound)

		require.NoError(t, st.AcknowledgeAlert(ctx, "a2", now))
		active, err := st.ListAlerts(ctx, model.AlertFilter{CampaignID: "camp"})
		require.NoError(t, err)
		assert.Len(t, active, 2)

		all, err := st.ListAlerts(ctx, model.AlertFilter{IncludeAcked: true, LeadID: "l1"})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "a2", all[0].ID)
		assert.True(t, all[0].Acknowledged)

		recent, err := st.ListAlerts(ctx, model.AlertFilter{IncludeAcked: true, Since: now.Add(-time.Minute)})
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		assert.ErrorIs(t, st.AcknowledgeAlert(ctx, "missing", now), model.ErrNotFound)
	})
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, configFor("memory", ""))
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, mem)

	lite, err := Open(ctx, configFor("sqlite", filepath.Join(t.TempDir(), "open.db")))
	require.NoError(t, err)
	defer lite.Close() //nolint:errcheck
	assert.NoError(t, lite.Ping(ctx))

	_, err = Open(ctx, configFor("mysql", ""))
	assert.Error(t, err)
}

func configFor(driver, url string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, DatabaseURL: url}
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", withPragmas("a.db"))
	assert.Contains(t, withPragmas("file:a.db?cache=shared"), "cache=shared&_pragma=")
	assert.Equal(t, "a.db?_pragma=foreign_keys(1)", withPragmas("a.db?_pragma=foreign_keys(1)"))
}
