package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

// Both SQL backends keep each record as a JSON document plus the handful of
// columns the queries filter and order on. The document is authoritative.

type scanner interface {
	Scan(dest ...any) error
}

// runner abstracts database/sql and pgx so the record logic is shared.
type runner interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args []any, each func(scanner) error) error
	queryRow(ctx context.Context, query string, args ...any) scanner
}

type dialect struct {
	name string
	// numbered placeholders ($1) instead of ?
	numbered bool
	// row-lock suffix for SELECT inside a reserve transaction
	lockRows string
	// formats a timestamp column value
	ts func(time.Time) any
	// reports a unique constraint violation
	unique func(error) bool
}

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nowUTC() time.Time { return time.Now().UTC() }

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// filter builds a WHERE clause with ? placeholders.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, args ...any) {
	f.conds = append(f.conds, cond)
	f.args = append(f.args, args...)
}

func (f *filter) in(col string, vals []string) {
	if len(vals) == 0 {
		return
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
	f.conds = append(f.conds, col+" IN ("+marks+")")
	for _, v := range vals {
		f.args = append(f.args, v)
	}
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

var liveStatusList = func() []string {
	out := make([]string, len(model.LiveStatuses))
	for i, s := range model.LiveStatuses {
		out[i] = string(s)
	}
	return out
}()

// docStore implements Store on top of a runner.
type docStore struct {
	d   dialect
	r   runner
	txn func(ctx context.Context, fn func(runner) error) error
}

func (s *docStore) exec(ctx context.Context, q string, args ...any) (int64, error) {
	return s.r.exec(ctx, s.d.rebind(q), args...)
}

func (s *docStore) getDoc(ctx context.Context, dst any, q string, args ...any) error {
	var data []byte
	if err := s.r.queryRow(ctx, s.d.rebind(q), args...).Scan(&data); err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func listDocs[T any](ctx context.Context, s *docStore, q string, args []any) ([]*T, error) {
	var out []*T
	err := s.r.query(ctx, s.d.rebind(q), args, func(row scanner) error {
		var data []byte
		if err := row.Scan(&data); err != nil {
			return err
		}
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func (s *docStore) wrap(err error, op string) error {
	return eris.Wrapf(err, "%s: %s", s.d.name, op)
}

func limitClause(limit, def int) string {
	if limit <= 0 {
		limit = def
	}
	return " LIMIT " + strconv.Itoa(limit)
}

// --- Leads ---

func (s *docStore) CreateLead(ctx context.Context, l *model.Lead) error {
	prepareLead(l)
	data, err := json.Marshal(l)
	if err != nil {
		return s.wrap(err, "marshal lead")
	}
	_, err = s.exec(ctx,
		`INSERT INTO leads (id, campaign_id, status, qualification, email, scored_at, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CampaignID, string(l.Status), string(l.Qualification), l.ContactEmail(),
		s.tsPtr(l.ScoredAt), string(data), s.d.ts(l.CreatedAt), s.d.ts(l.UpdatedAt),
	)
	if s.d.unique(err) {
		return model.Validationf("lead %s already exists", l.ID)
	}
	return s.wrap(err, "insert lead")
}

func (s *docStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	var l model.Lead
	err := s.getDoc(ctx, &l, `SELECT data FROM leads WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, model.NotFoundf("lead %s", id)
	}
	if err != nil {
		return nil, s.wrap(err, "get lead "+id)
	}
	return &l, nil
}

func (s *docStore) UpdateLead(ctx context.Context, l *model.Lead) error {
	data, err := json.Marshal(l)
	if err != nil {
		return s.wrap(err, "marshal lead")
	}
	n, err := s.exec(ctx,
		`UPDATE leads SET campaign_id = ?, status = ?, qualification = ?, email = ?, scored_at = ?, data = ?, updated_at = ?
		 WHERE id = ?`,
		l.CampaignID, string(l.Status), string(l.Qualification), l.ContactEmail(),
		s.tsPtr(l.ScoredAt), string(data), s.d.ts(l.UpdatedAt), l.ID,
	)
	if err != nil {
		return s.wrap(err, "update lead "+l.ID)
	}
	if n == 0 {
		return model.NotFoundf("lead %s", l.ID)
	}
	return nil
}

func (s *docStore) ListLeads(ctx context.Context, f model.LeadFilter) ([]*model.Lead, error) {
	var w filter
	if f.CampaignID != "" {
		w.add("campaign_id = ?", f.CampaignID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Qualification != "" {
		w.add("qualification = ?", string(f.Qualification))
	}
	if !f.ScoredBefore.IsZero() {
		w.add("(scored_at IS NULL OR scored_at < ?)", s.d.ts(f.ScoredBefore))
	}
	q := `SELECT data FROM leads` + w.where() + ` ORDER BY created_at, id` + limitClause(f.Limit, 100000)
	leads, err := listDocs[model.Lead](ctx, s, q, w.args)
	return leads, s.wrap(err, "list leads")
}

func (s *docStore) ImportLeads(ctx context.Context, leads []*model.Lead) (int, error) {
	n := 0
	for _, l := range leads {
		prepareLead(l)
		data, err := json.Marshal(l)
		if err != nil {
			return n, s.wrap(err, "marshal lead")
		}
		added, err := s.exec(ctx,
			`INSERT INTO leads (id, campaign_id, status, qualification, email, scored_at, data, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
			l.ID, l.CampaignID, string(l.Status), string(l.Qualification), l.ContactEmail(),
			s.tsPtr(l.ScoredAt), string(data), s.d.ts(l.CreatedAt), s.d.ts(l.UpdatedAt),
		)
		if err != nil {
			return n, s.wrap(err, "import lead "+l.ID)
		}
		n += int(added)
	}
	return n, nil
}

func (s *docStore) tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return s.d.ts(*t)
}

// --- Campaigns ---

func (s *docStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	prepareCampaign(c)
	data, err := json.Marshal(c)
	if err != nil {
		return s.wrap(err, "marshal campaign")
	}
	_, err = s.exec(ctx,
		`INSERT INTO campaigns (id, status, data, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, string(c.Status), string(data), s.d.ts(c.CreatedAt),
	)
	if s.d.unique(err) {
		return model.Validationf("campaign %s already exists", c.ID)
	}
	return s.wrap(err, "insert campaign")
}

func (s *docStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	err := s.getDoc(ctx, &c, `SELECT data FROM campaigns WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, model.NotFoundf("campaign %s", id)
	}
	if err != nil {
		return nil, s.wrap(err, "get campaign "+id)
	}
	return &c, nil
}

func (s *docStore) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return s.wrap(err, "marshal campaign")
	}
	n, err := s.exec(ctx, `UPDATE campaigns SET status = ?, data = ? WHERE id = ?`, string(c.Status), string(data), c.ID)
	if err != nil {
		return s.wrap(err, "update campaign "+c.ID)
	}
	if n == 0 {
		return model.NotFoundf("campaign %s", c.ID)
	}
	return nil
}

func (s *docStore) ListCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	cs, err := listDocs[model.Campaign](ctx, s, `SELECT data FROM campaigns ORDER BY created_at`, nil)
	return cs, s.wrap(err, "list campaigns")
}

// --- Opportunities ---

func (s *docStore) CreateOpportunity(ctx context.Context, o *model.Opportunity) error {
	prepareOpportunity(o)
	data, err := json.Marshal(o)
	if err != nil {
		return s.wrap(err, "marshal opportunity")
	}
	_, err = s.exec(ctx,
		`INSERT INTO opportunities (id, lead_id, status, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.LeadID, string(o.Status), string(data), s.d.ts(o.CreatedAt),
	)
	if s.d.unique(err) {
		return model.Validationf("lead %s already has an opportunity", o.LeadID)
	}
	return s.wrap(err, "insert opportunity")
}

func (s *docStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	var o model.Opportunity
	err := s.getDoc(ctx, &o, `SELECT data FROM opportunities WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, model.NotFoundf("opportunity %s", id)
	}
	if err != nil {
		return nil, s.wrap(err, "get opportunity "+id)
	}
	return &o, nil
}

func (s *docStore) OpportunityForLead(ctx context.Context, leadID string) (*model.Opportunity, error) {
	var o model.Opportunity
	err := s.getDoc(ctx, &o, `SELECT data FROM opportunities WHERE lead_id = ?`, leadID)
	if isNoRows(err) {
		return nil, model.NotFoundf("opportunity for lead %s", leadID)
	}
	if err != nil {
		return nil, s.wrap(err, "opportunity for lead "+leadID)
	}
	return &o, nil
}

func (s *docStore) UpdateOpportunity(ctx context.Context, o *model.Opportunity) error {
	data, err := json.Marshal(o)
	if err != nil {
		return s.wrap(err, "marshal opportunity")
	}
	n, err := s.exec(ctx, `UPDATE opportunities SET status = ?, data = ? WHERE id = ?`, string(o.Status), string(data), o.ID)
	if err != nil {
		return s.wrap(err, "update opportunity "+o.ID)
	}
	if n == 0 {
		return model.NotFoundf("opportunity %s", o.ID)
	}
	return nil
}

func (s *docStore) ListOpportunities(ctx context.Context, limit int) ([]*model.Opportunity, error) {
	opps, err := listDocs[model.Opportunity](ctx, s, `SELECT data FROM opportunities ORDER BY created_at DESC`+limitClause(limit, 1000), nil)
	return opps, s.wrap(err, "list opportunities")
}

// --- Executions ---

func (s *docStore) CreateExecution(ctx context.Context, e *model.Execution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return s.wrap(err, "marshal execution")
	}
	_, err = s.exec(ctx,
		`INSERT INTO workflow_executions (id, lead_id, campaign_id, template_id, status, next_action_at, data, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LeadID, e.CampaignID, e.TemplateID, string(e.Status), s.d.ts(e.NextActionAt),
		string(data), s.d.ts(e.StartedAt), s.d.ts(e.UpdatedAt),
	)
	if s.d.unique(err) {
		return s.alreadyActive(ctx, e)
	}
	return s.wrap(err, "insert execution")
}

func (s *docStore) alreadyActive(ctx context.Context, e *model.Execution) error {
	live, err := s.LiveExecution(ctx, e.LeadID)
	if err != nil {
		return model.Validationf("execution %s already exists", e.ID)
	}
	return model.NewAlreadyActive(e.LeadID, live.ID)
}

func (s *docStore) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	var e model.Execution
	err := s.getDoc(ctx, &e, `SELECT data FROM workflow_executions WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, model.NotFoundf("execution %s", id)
	}
	if err != nil {
		return nil, s.wrap(err, "get execution "+id)
	}
	return &e, nil
}

func (s *docStore) LiveExecution(ctx context.Context, leadID string) (*model.Execution, error) {
	var w filter
	w.add("lead_id = ?", leadID)
	w.in("status", liveStatusList)
	var e model.Execution
	err := s.getDoc(ctx, &e, `SELECT data FROM workflow_executions`+w.where()+` LIMIT 1`, w.args...)
	if isNoRows(err) {
		return nil, model.NotFoundf("live execution for lead %s", leadID)
	}
	if err != nil {
		return nil, s.wrap(err, "live execution for "+leadID)
	}
	return &e, nil
}

func (s *docStore) UpdateExecution(ctx context.Context, e *model.Execution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return s.wrap(err, "marshal execution")
	}
	n, err := s.exec(ctx,
		`UPDATE workflow_executions SET status = ?, next_action_at = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(e.Status), s.d.ts(e.NextActionAt), string(data), s.d.ts(e.UpdatedAt), e.ID,
	)
	if s.d.unique(err) {
		return s.alreadyActive(ctx, e)
	}
	if err != nil {
		return s.wrap(err, "update execution "+e.ID)
	}
	if n == 0 {
		return model.NotFoundf("execution %s", e.ID)
	}
	return nil
}

func (s *docStore) DueExecutions(ctx context.Context, now time.Time, limit int) ([]*model.Execution, error) {
	q := `SELECT data FROM workflow_executions WHERE status = ? AND next_action_at <= ?
		ORDER BY next_action_at, id` + limitClause(limit, 200)
	es, err := listDocs[model.Execution](ctx, s, q, []any{string(model.ExecutionActive), s.d.ts(now)})
	return es, s.wrap(err, "due executions")
}

func (s *docStore) ListExecutions(ctx context.Context, f model.ExecutionFilter) ([]*model.Execution, error) {
	var w filter
	if f.LeadID != "" {
		w.add("lead_id = ?", f.LeadID)
	}
	if f.CampaignID != "" {
		w.add("campaign_id = ?", f.CampaignID)
	}
	if f.TemplateID != "" {
		w.add("template_id = ?", f.TemplateID)
	}
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	w.in("status", statuses)
	q := `SELECT data FROM workflow_executions` + w.where() + ` ORDER BY started_at, id` + limitClause(f.Limit, 100000)
	es, err := listDocs[model.Execution](ctx, s, q, w.args)
	return es, s.wrap(err, "list executions")
}

// --- Send counters ---

// ReserveSend implements workflow.SendLimiter inside one transaction: it
// makes sure today's counter row exists, locks the week's rows, checks both
// caps, then increments today's count.
func (s *docStore) ReserveSend(ctx context.Context, campaignID string, at time.Time, dailyCap, weeklyCap int) (bool, error) {
	today := workflow.DayKey(at)
	week := workflow.WeekDays(at)
	ok := false
	err := s.txn(ctx, func(tx runner) error {
		if _, err := tx.exec(ctx, s.d.rebind(
			`INSERT INTO send_counters (campaign_id, day, sends) VALUES (?, ?, 0) ON CONFLICT (campaign_id, day) DO NOTHING`),
			campaignID, today); err != nil {
			return err
		}

		var w filter
		w.add("campaign_id = ?", campaignID)
		w.in("day", week)
		var day, weekTotal int
		err := tx.query(ctx, s.d.rebind(`SELECT day, sends FROM send_counters`+w.where()+s.d.lockRows), w.args, func(row scanner) error {
			var d string
			var n int
			if err := row.Scan(&d, &n); err != nil {
				return err
			}
			weekTotal += n
			if d == today {
				day = n
			}
			return nil
		})
		if err != nil {
			return err
		}
		if (dailyCap > 0 && day >= dailyCap) || (weeklyCap > 0 && weekTotal >= weeklyCap) {
			return nil
		}
		if _, err := tx.exec(ctx, s.d.rebind(
			`UPDATE send_counters SET sends = sends + 1 WHERE campaign_id = ? AND day = ?`),
			campaignID, today); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, s.wrap(err, "reserve send for "+campaignID)
	}
	return ok, nil
}

// --- Alerts ---

func (s *docStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return s.wrap(err, "marshal alert")
	}
	_, err = s.exec(ctx,
		`INSERT INTO alerts (id, type, severity, lead_id, campaign_id, acknowledged, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), string(a.Severity), a.LeadID, a.CampaignID, a.Acknowledged,
		string(data), s.d.ts(a.CreatedAt),
	)
	return s.wrap(err, "insert alert")
}

func (s *docStore) LatestAlert(ctx context.Context, leadID, campaignID string, t model.AlertType) (*model.Alert, error) {
	var w filter
	w.add("type = ?", string(t))
	w.add("lead_id = ?", leadID)
	if leadID == "" {
		w.add("campaign_id = ?", campaignID)
	}
	var a model.Alert
	err := s.getDoc(ctx, &a, `SELECT data FROM alerts`+w.where()+` ORDER BY created_at DESC LIMIT 1`, w.args...)
	if isNoRows(err) {
		return nil, model.NotFoundf("alert %s for lead %q", t, leadID)
	}
	if err != nil {
		return nil, s.wrap(err, "latest alert")
	}
	return &a, nil
}

func (s *docStore) ListAlerts(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	var w filter
	if f.CampaignID != "" {
		w.add("campaign_id = ?", f.CampaignID)
	}
	if f.LeadID != "" {
		w.add("lead_id = ?", f.LeadID)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if !f.IncludeAcked {
		w.add("acknowledged = ?", false)
	}
	if !f.Since.IsZero() {
		w.add("created_at >= ?", s.d.ts(f.Since))
	}
	q := `SELECT data FROM alerts` + w.where() + ` ORDER BY created_at DESC` + limitClause(f.Limit, 1000)
	as, err := listDocs[model.Alert](ctx, s, q, w.args)
	return as, s.wrap(err, "list alerts")
}

func (s *docStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	var a model.Alert
	err := s.getDoc(ctx, &a, `SELECT data FROM alerts WHERE id = ?`, id)
	if isNoRows(err) {
		return model.NotFoundf("alert %s", id)
	}
	if err != nil {
		return s.wrap(err, "get alert "+id)
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &at
	data, err := json.Marshal(&a)
	if err != nil {
		return s.wrap(err, "marshal alert")
	}
	_, err = s.exec(ctx, `UPDATE alerts SET acknowledged = ?, data = ? WHERE id = ?`, true, string(data), id)
	return s.wrap(err, "acknowledge alert "+id)
}
