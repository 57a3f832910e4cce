package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/workflow"
)

// Memory is a process-local Store for tests and single-shot runs.
type Memory struct {
	*workflow.MemoryRegistry
	*workflow.MemorySendCounter
	*monitoring.MemoryAlerts

	mu        sync.RWMutex
	leads     map[string]*model.Lead
	campaigns map[string]*model.Campaign
	opps      map[string]*model.Opportunity
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		MemoryRegistry:    workflow.NewMemoryRegistry(),
		MemorySendCounter: workflow.NewMemorySendCounter(),
		MemoryAlerts:      monitoring.NewMemoryAlerts(),
		leads:             make(map[string]*model.Lead),
		campaigns:         make(map[string]*model.Campaign),
		opps:              make(map[string]*model.Opportunity),
	}
}

func (m *Memory) Ping(context.Context) error    { return nil }
func (m *Memory) Migrate(context.Context) error { return nil }
func (m *Memory) Close() error                  { return nil }

func (m *Memory) CreateLead(_ context.Context, l *model.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prepareLead(l)
	if _, ok := m.leads[l.ID]; ok {
		return model.Validationf("lead %s already exists", l.ID)
	}
	m.leads[l.ID] = l.Clone()
	return nil
}

func (m *Memory) GetLead(_ context.Context, id string) (*model.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, model.NotFoundf("lead %s", id)
	}
	return l.Clone(), nil
}

func (m *Memory) UpdateLead(_ context.Context, l *model.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[l.ID]; !ok {
		return model.NotFoundf("lead %s", l.ID)
	}
	m.leads[l.ID] = l.Clone()
	return nil
}

func (m *Memory) ListLeads(_ context.Context, f model.LeadFilter) ([]*model.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Lead
	for _, l := range m.leads {
		if matchLead(l, f) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) ImportLeads(_ context.Context, leads []*model.Lead) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range leads {
		prepareLead(l)
		if _, ok := m.leads[l.ID]; ok {
			continue
		}
		m.leads[l.ID] = l.Clone()
		n++
	}
	return n, nil
}

func (m *Memory) CreateCampaign(_ context.Context, c *model.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prepareCampaign(c)
	if _, ok := m.campaigns[c.ID]; ok {
		return model.Validationf("campaign %s already exists", c.ID)
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *Memory) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, model.NotFoundf("campaign %s", id)
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) UpdateCampaign(_ context.Context, c *model.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; !ok {
		return model.NotFoundf("campaign %s", c.ID)
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *Memory) ListCampaigns(context.Context) ([]*model.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateOpportunity(_ context.Context, o *model.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prepareOpportunity(o)
	for _, existing := range m.opps {
		if existing.LeadID == o.LeadID {
			return model.Validationf("lead %s already has opportunity %s", o.LeadID, existing.ID)
		}
	}
	cp := *o
	m.opps[o.ID] = &cp
	return nil
}

func (m *Memory) GetOpportunity(_ context.Context, id string) (*model.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.opps[id]
	if !ok {
		return nil, model.NotFoundf("opportunity %s", id)
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) OpportunityForLead(_ context.Context, leadID string) (*model.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.opps {
		if o.LeadID == leadID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, model.NotFoundf("opportunity for lead %s", leadID)
}

func (m *Memory) UpdateOpportunity(_ context.Context, o *model.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.opps[o.ID]; !ok {
		return model.NotFoundf("opportunity %s", o.ID)
	}
	cp := *o
	m.opps[o.ID] = &cp
	return nil
}

func (m *Memory) ListOpportunities(_ context.Context, limit int) ([]*model.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Opportunity, 0, len(m.opps))
	for _, o := range m.opps {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchLead(l *model.Lead, f model.LeadFilter) bool {
	switch {
	case f.CampaignID != "" && l.CampaignID != f.CampaignID:
		return false
	case f.Status != "" && l.Status != f.Status:
		return false
	case f.Qualification != "" && l.Qualification != f.Qualification:
		return false
	case !f.ScoredBefore.IsZero() && l.ScoredAt != nil && !l.ScoredAt.Before(f.ScoredBefore):
		return false
	}
	return true
}

func prepareLead(l *model.Lead) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := nowUTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	if l.Status == "" {
		l.Status = model.LeadStatusDiscovered
	}
	if l.SequenceStatus == "" {
		l.SequenceStatus = model.SequenceNone
	}
}

func prepareCampaign(c *model.Campaign) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = nowUTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
}

func prepareOpportunity(o *model.Opportunity) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = model.OpportunityProspect
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = nowUTC()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
}
