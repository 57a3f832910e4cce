package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Registry persists executions. CreateExecution must refuse, atomically,
// a second live execution for the same lead with model.ErrAlreadyActive.
type Registry interface {
	CreateExecution(ctx context.Context, e *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	LiveExecution(ctx context.Context, leadID string) (*model.Execution, error)
	UpdateExecution(ctx context.Context, e *model.Execution) error
	DueExecutions(ctx context.Context, now time.Time, limit int) ([]*model.Execution, error)
	ListExecutions(ctx context.Context, f model.ExecutionFilter) ([]*model.Execution, error)
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu    sync.Mutex
	execs map[string]*model.Execution
	live  map[string]string // lead id -> execution id
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		execs: make(map[string]*model.Execution),
		live:  make(map[string]string),
	}
}

// CreateExecution implements Registry.
func (r *MemoryRegistry) CreateExecution(_ context.Context, e *model.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.execs[e.ID]; ok {
		return model.Validationf("execution %s already exists", e.ID)
	}
	if e.Status.Live() {
		if id, ok := r.live[e.LeadID]; ok {
			return model.NewAlreadyActive(e.LeadID, id)
		}
		r.live[e.LeadID] = e.ID
	}
	r.execs[e.ID] = e.Clone()
	return nil
}

// GetExecution implements Registry.
func (r *MemoryRegistry) GetExecution(_ context.Context, id string) (*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return nil, model.NotFoundf("execution %s", id)
	}
	return e.Clone(), nil
}

// LiveExecution implements Registry.
func (r *MemoryRegistry) LiveExecution(_ context.Context, leadID string) (*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.live[leadID]
	if !ok {
		return nil, model.NotFoundf("live execution for lead %s", leadID)
	}
	return r.execs[id].Clone(), nil
}

// UpdateExecution implements Registry.
func (r *MemoryRegistry) UpdateExecution(_ context.Context, e *model.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.execs[e.ID]; !ok {
		return model.NotFoundf("execution %s", e.ID)
	}
	id, held := r.live[e.LeadID]
	switch {
	case e.Status.Live() && held && id != e.ID:
		return model.NewAlreadyActive(e.LeadID, id)
	case e.Status.Live():
		r.live[e.LeadID] = e.ID
	case held && id == e.ID:
		delete(r.live, e.LeadID)
	}
	r.execs[e.ID] = e.Clone()
	return nil
}

// DueExecutions implements Registry.
func (r *MemoryRegistry) DueExecutions(_ context.Context, now time.Time, limit int) ([]*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Execution
	for _, id := range r.live {
		e := r.execs[id]
		if e.Status == model.ExecutionActive && !e.NextActionAt.After(now) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextActionAt.Equal(out[j].NextActionAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextActionAt.Before(out[j].NextActionAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListExecutions implements Registry.
func (r *MemoryRegistry) ListExecutions(_ context.Context, f model.ExecutionFilter) ([]*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Execution
	for _, e := range r.execs {
		if !matchesFilter(e, f) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchesFilter(e *model.Execution, f model.ExecutionFilter) bool {
	if f.LeadID != "" && e.LeadID != f.LeadID {
		return false
	}
	if f.CampaignID != "" && e.CampaignID != f.CampaignID {
		return false
	}
	if f.TemplateID != "" && e.TemplateID != f.TemplateID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}

// SendLimiter enforces campaign send caps. ReserveSend atomically checks
// the day's and week's counts and takes a slot when both are under cap.
// A cap of zero means unlimited.
type SendLimiter interface {
	ReserveSend(ctx context.Context, campaignID string, at time.Time, dailyCap, weeklyCap int) (bool, error)
}

// MemorySendCounter is a process-local SendLimiter.
type MemorySendCounter struct {
	mu     sync.Mutex
	counts map[string]map[string]int // campaign -> UTC day -> sends
}

// NewMemorySendCounter returns an empty counter.
func NewMemorySendCounter() *MemorySendCounter {
	return &MemorySendCounter{counts: make(map[string]map[string]int)}
}

// ReserveSend implements SendLimiter.
func (m *MemorySendCounter) ReserveSend(_ context.Context, campaignID string, at time.Time, dailyCap, weeklyCap int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.counts[campaignID]
	if !ok {
		days = make(map[string]int)
		m.counts[campaignID] = days
	}
	day := DayKey(at)
	if dailyCap > 0 && days[day] >= dailyCap {
		return false, nil
	}
	if weeklyCap > 0 {
		week := 0
		for _, d := range WeekDays(at) {
			week += days[d]
		}
		if week >= weeklyCap {
			return false, nil
		}
	}
	days[day]++
	return true, nil
}

// Sends returns the count recorded for a campaign on at's UTC day.
func (m *MemorySendCounter) Sends(campaignID string, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[campaignID][DayKey(at)]
}

// DayKey formats the UTC calendar day of t.
func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// WeekDays returns the day keys of the ISO week (Monday first) containing t.
func WeekDays(t time.Time) []string {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
	out := make([]string, 7)
	for i := range out {
		out[i] = DayKey(monday.AddDate(0, 0, i))
	}
	return out
}

// NextUTCDay returns midnight UTC of the day after t.
func NextUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
