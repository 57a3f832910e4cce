package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/qualify"
)

// PhaseStatus is the outcome of one processing phase.
type PhaseStatus string

const (
	PhaseComplete PhaseStatus = "complete"
	PhaseSkipped  PhaseStatus = "skipped"
	PhaseFailed   PhaseStatus = "failed"
)

// PhaseResult records one phase of Process.
type PhaseResult struct {
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
	Duration int64       `json:"duration_ms"`
}

// ProcessResult is the outcome of processing one lead.
type ProcessResult struct {
	LeadID      string        `json:"lead_id"`
	Tier        model.Tier    `json:"tier,omitempty"`
	Score       float64       `json:"score"`
	ExecutionID string        `json:"execution_id,omitempty"`
	Phases      []PhaseResult `json:"phases"`
}

// Failed reports whether any phase failed.
func (r *ProcessResult) Failed() bool {
	for _, p := range r.Phases {
		if p.Status == PhaseFailed {
			return true
		}
	}
	return false
}

// errSkip marks a phase that had nothing to do.
var errSkip = eris.New("skip")

// Process runs a lead through enrichment, qualification, research, and
// workflow assignment. Gateway failures are recorded on the phase and do
// not stop later phases; a qualification failure does.
func (e *Engine) Process(ctx context.Context, leadID string) (*ProcessResult, error) {
	log := zap.L().With(zap.String("lead_id", leadID))
	res := &ProcessResult{LeadID: leadID}

	track := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		pr := PhaseResult{Name: name, Status: PhaseComplete, Duration: time.Since(start).Milliseconds()}
		switch {
		case eris.Is(err, errSkip):
			pr.Status = PhaseSkipped
			err = nil
		case err != nil:
			pr.Status = PhaseFailed
			pr.Error = err.Error()
			log.Warn("engine: phase failed", zap.String("phase", name), zap.Error(err))
		}
		res.Phases = append(res.Phases, pr)
		return err
	}

	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	_ = track("enrich", func() error {
		if e.enricher == nil || lead.Enrichment != nil {
			return errSkip
		}
		_, err := e.Enrich(ctx, leadID)
		if eris.Is(err, model.ErrNotFound) {
			return errSkip
		}
		return err
	})

	var qr qualify.Result
	if err := track("qualify", func() error {
		var err error
		qr, err = e.Qualify(ctx, leadID)
		return err
	}); err != nil {
		return res, err
	}
	res.Tier, res.Score = qr.Tier, qr.Score.Composite

	_ = track("research", func() error {
		if e.researcher == nil || !qr.NeedsResearch {
			return errSkip
		}
		l, err := e.Research(ctx, leadID)
		if err != nil {
			return err
		}
		res.Tier, res.Score = l.Qualification, l.Score
		return nil
	})

	_ = track("assign", func() error {
		l, err := e.store.GetLead(ctx, leadID)
		if err != nil {
			return err
		}
		if l.Status.Closed() || l.SequenceStatus != model.SequenceNone || !l.Qualification.AtLeast(model.TierDeveloping) {
			return errSkip
		}
		ex, err := e.AssignWorkflow(ctx, leadID)
		if eris.Is(err, model.ErrAlreadyActive) {
			return errSkip
		}
		if err != nil {
			return err
		}
		res.ExecutionID = ex.ID
		return nil
	})

	log.Info("engine: lead processed",
		zap.String("tier", string(res.Tier)),
		zap.Float64("score", res.Score),
		zap.Bool("failed", res.Failed()),
	)
	return res, nil
}

// ProcessBatch processes leads in parallel. Per-lead errors are logged and
// the lead is left out of the results.
func (e *Engine) ProcessBatch(ctx context.Context, leadIDs []string, concurrency int) ([]*ProcessResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	var (
		mu  sync.Mutex
		out = make([]*ProcessResult, 0, len(leadIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range leadIDs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			r, err := e.Process(gctx, id)
			if err != nil {
				zap.L().Error("engine: process failed", zap.String("lead_id", id), zap.Error(err))
				return nil
			}
			mu.Lock()
			out = append(out, r)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return out, err
}

// RequalifyStale re-scores every lead whose qualification has gone stale.
func (e *Engine) RequalifyStale(ctx context.Context, campaignID string) (qualify.BatchSummary, error) {
	leads, err := e.store.ListLeads(ctx, model.LeadFilter{CampaignID: campaignID})
	if err != nil {
		return qualify.BatchSummary{}, eris.Wrap(err, "engine: list leads")
	}
	apply := func(ctx context.Context, leadID string, _ qualify.Result) (bool, error) {
		changed := false
		_, err := e.orch.UpdateLead(ctx, leadID, func(l *model.Lead) error {
			before := l.Qualification
			r := e.qual.Qualify(l, e.orch.Now())
			qualify.Apply(l, r)
			changed = before != l.Qualification
			return nil
		})
		return changed, err
	}
	return e.qual.RequalifyStale(ctx, leads, e.orch.Now(), apply)
}

// SyncSummary counts the outcome of a CRM sync pass.
type SyncSummary struct {
	Considered int `json:"considered"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
}

// SyncOpportunities pushes up to limit opportunities to the CRM.
func (e *Engine) SyncOpportunities(ctx context.Context, limit int) (SyncSummary, error) {
	var sum SyncSummary
	if e.crm == nil {
		return sum, model.Unavailablef("engine: no crm configured")
	}
	opps, err := e.store.ListOpportunities(ctx, limit)
	if err != nil {
		return sum, eris.Wrap(err, "engine: list opportunities")
	}
	for _, o := range opps {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Considered++
		l, err := e.store.GetLead(ctx, o.LeadID)
		if err != nil {
			sum.Failed++
			zap.L().Warn("engine: sync skipped, lead missing", zap.String("opportunity_id", o.ID), zap.Error(err))
			continue
		}
		created := o.ExternalID == ""
		if err := e.pushOpportunity(ctx, l, o); err != nil {
			sum.Failed++
			zap.L().Warn("engine: sync failed", zap.String("opportunity_id", o.ID), zap.Error(err))
			continue
		}
		if created {
			sum.Created++
		} else {
			sum.Updated++
		}
	}
	zap.L().Info("engine: crm sync complete",
		zap.Int("considered", sum.Considered),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
