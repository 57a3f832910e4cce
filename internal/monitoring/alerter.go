package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// AlertStore persists alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *model.Alert) error
	// LatestAlert returns the newest alert of type t for the lead (or, when
	// leadID is empty, the campaign). It returns ErrNotFound when none exist.
	LatestAlert(ctx context.Context, leadID, campaignID string, t model.AlertType) (*model.Alert, error)
	ListAlerts(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) error
}

// Alerter raises deduplicated alerts and forwards urgent ones to a webhook.
type Alerter struct {
	store  AlertStore
	cfg    config.AlertingConfig
	client *http.Client
	now    func() time.Time

	mu sync.Mutex
}

// NewAlerter creates an Alerter backed by st.
func NewAlerter(st AlertStore, cfg config.AlertingConfig) *Alerter {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 24 * time.Hour
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = 2 * time.Hour
	}
	return &Alerter{
		store:  st,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Raise stores a unless an alert of the same type for the same lead was
// raised within the dedup window. It reports whether a was stored.
func (a *Alerter) Raise(ctx context.Context, alert *model.Alert) (bool, error) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = a.now()
	}

	stored, err := a.record(ctx, alert)
	if err != nil || !stored {
		return false, err
	}

	zap.L().Info("monitoring: alert raised",
		zap.String("id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("lead_id", alert.LeadID),
	)

	if a.shouldForward(alert) {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

// record runs the dedup check and the insert under a.mu. The webhook is
// sent by the caller after the lock is released.
func (a *Alerter) record(ctx context.Context, alert *model.Alert) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, err := a.store.LatestAlert(ctx, alert.LeadID, alert.CampaignID, alert.Type)
	switch {
	case eris.Is(err, model.ErrNotFound):
	case err != nil:
		return false, eris.Wrap(err, "monitoring: latest alert")
	case alert.CreatedAt.Sub(prev.CreatedAt) < a.cfg.DedupWindow:
		zap.L().Debug("monitoring: alert suppressed",
			zap.String("type", string(alert.Type)),
			zap.String("lead_id", alert.LeadID),
			zap.String("previous_id", prev.ID),
		)
		return false, nil
	}

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if err := a.store.CreateAlert(ctx, alert); err != nil {
		return false, eris.Wrap(err, "monitoring: create alert")
	}
	return true, nil
}

// CheckLead raises hot_lead for hot leads and response_received for
// replies within the response window.
func (a *Alerter) CheckLead(ctx context.Context, l *model.Lead, now time.Time) error {
	if l.Status.Closed() {
		return nil
	}
	if l.Qualification == model.TierHot {
		_, err := a.Raise(ctx, &model.Alert{
			Type:           model.AlertHotLead,
			Severity:       model.SeverityCritical,
			LeadID:         l.ID,
			CampaignID:     l.CampaignID,
			Title:          "Hot lead",
			Message:        fmt.Sprintf("%s qualified as a hot lead (score %.0f)", l.DisplayName(), l.EffectiveScore()),
			ActionRequired: true,
			Details:        map[string]any{"score": l.EffectiveScore(), "priority": PriorityScore(l, now).Score},
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
	}
	if l.LastResponseAt != nil && now.Sub(*l.LastResponseAt) <= a.cfg.ResponseWindow {
		_, err := a.Raise(ctx, &model.Alert{
			Type:       model.AlertResponseReceived,
			Severity:   model.SeverityMedium,
			LeadID:     l.ID,
			CampaignID: l.CampaignID,
			Title:      "New response",
			Message:    fmt.Sprintf("%s replied", l.DisplayName()),
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Acknowledge marks an alert as handled.
func (a *Alerter) Acknowledge(ctx context.Context, id string) error {
	return a.store.AcknowledgeAlert(ctx, id, a.now())
}

// Active returns unacknowledged alerts, most severe first and then oldest
// first.
func (a *Alerter) Active(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	f.IncludeAcked = false
	alerts, err := a.store.ListAlerts(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list alerts")
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
	})
	return alerts, nil
}

func (a *Alerter) shouldForward(alert *model.Alert) bool {
	if a.cfg.WebhookURL == "" {
		return false
	}
	floor := model.Severity(a.cfg.MinSeverity).Rank()
	if floor == 0 {
		floor = model.SeverityHigh.Rank()
	}
	return alert.Severity.Rank() >= floor
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert *model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MemoryAlerts is an in-process AlertStore.
type MemoryAlerts struct {
	mu     sync.RWMutex
	alerts []*model.Alert
}

// NewMemoryAlerts returns an empty MemoryAlerts.
func NewMemoryAlerts() *MemoryAlerts { return &MemoryAlerts{} }

// CreateAlert implements AlertStore.
func (m *MemoryAlerts) CreateAlert(_ context.Context, a *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.alerts = append(m.alerts, &c)
	return nil
}

// LatestAlert implements AlertStore.
func (m *MemoryAlerts) LatestAlert(_ context.Context, leadID, campaignID string, t model.AlertType) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.Alert
	for _, a := range m.alerts {
		if a.Type != t || a.LeadID != leadID {
			continue
		}
		if leadID == "" && a.CampaignID != campaignID {
			continue
		}
		if best == nil || a.CreatedAt.After(best.CreatedAt) {
			best = a
		}
	}
	if best == nil {
		return nil, model.NotFoundf("alert %s for lead %q", t, leadID)
	}
	c := *best
	return &c, nil
}

// ListAlerts implements AlertStore. Results are newest first.
func (m *MemoryAlerts) ListAlerts(_ context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Alert
	for _, a := range m.alerts {
		if !MatchAlert(a, f) {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// AcknowledgeAlert implements AlertStore.
func (m *MemoryAlerts) AcknowledgeAlert(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			a.Acknowledged = true
			a.AcknowledgedAt = &at
			return nil
		}
	}
	return model.NotFoundf("alert %s", id)
}

// MatchAlert reports whether a passes f, ignoring Limit.
func MatchAlert(a *model.Alert, f model.AlertFilter) bool {
	switch {
	case f.CampaignID != "" && a.CampaignID != f.CampaignID:
		return false
	case f.LeadID != "" && a.LeadID != f.LeadID:
		return false
	case f.Type != "" && a.Type != f.Type:
		return false
	case !f.IncludeAcked && a.Acknowledged:
		return false
	case !f.Since.IsZero() && a.CreatedAt.Before(f.Since):
		return false
	}
	return true
}
