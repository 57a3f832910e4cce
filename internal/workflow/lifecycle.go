package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// HandleResponse records an inbound reply and routes the lead's live
// execution: stop on unsubscribe, pause on mixed signals, escalate to the
// VIP sequence on interest, complete on rejection, otherwise continue.
func (o *Orchestrator) HandleResponse(ctx context.Context, leadID, content string, hint model.Sentiment) (model.ResponseAnalysis, error) {
	unlock := o.locks.Lock(leadID)
	defer unlock()

	lead, err := o.deps.Leads.GetLead(ctx, leadID)
	if err != nil {
		return model.ResponseAnalysis{}, err
	}
	now := o.opts.Now()

	analysis, err := o.deps.Analyzer.Analyze(ctx, content, hint)
	if err != nil {
		zap.L().Warn("workflow: analyzer failed, using keywords", zap.String("lead_id", leadID), zap.Error(err))
		analysis = AnalyzeKeywords(content, hint)
	}

	lead.Record(model.Activity{
		Kind:      model.ActivityResponseReceived,
		At:        now,
		Content:   content,
		Sentiment: analysis.Sentiment,
	})

	live, err := o.liveExecution(ctx, leadID)
	if err != nil {
		return analysis, err
	}
	if live != nil {
		live.Context.LastResponse = &analysis
		live.UpdatedAt = now
	}

	zap.L().Info("workflow: response received",
		zap.String("lead_id", leadID),
		zap.String("sentiment", string(analysis.Sentiment)),
		zap.String("interest", string(analysis.Interest)),
		zap.String("action", string(analysis.Action)),
	)

	switch analysis.Action {
	case model.ResponseStop:
		lead.Record(model.Activity{Kind: model.ActivityUnsubscribed, At: now})
		if live != nil {
			o.finish(live, lead, model.ExecutionCancelled, model.OutcomeUnsubscribed, now)
		}

	case model.ResponsePause:
		if live != nil && live.Status == model.ExecutionActive {
			o.pause(live, lead, now)
		}
		o.raise(ctx, &model.Alert{
			Type:           model.AlertResponseReceived,
			Severity:       model.SeverityHigh,
			LeadID:         leadID,
			CampaignID:     lead.CampaignID,
			Title:          "Response needs review",
			Message:        fmt.Sprintf("%s sent a reply with mixed signals", lead.DisplayName()),
			ActionRequired: true,
			Details:        map[string]any{"keywords": analysis.Keywords},
			CreatedAt:      now,
		})

	case model.ResponseEscalate:
		if lead.Status.Closed() {
			break
		}
		if live != nil && live.WorkflowType == model.WorkflowVIPSequence {
			o.skipWait(live, lead, now)
			break
		}
		if live != nil {
			o.finish(live, lead, model.ExecutionCompleted, model.OutcomeEscalated, now)
			if err := o.deps.Registry.UpdateExecution(ctx, live); err != nil {
				return analysis, eris.Wrapf(err, "workflow: save execution %s", live.ID)
			}
			live = nil
		}
		tmpl, err := o.deps.Catalog.ForType(model.WorkflowVIPSequence)
		if err != nil {
			return analysis, err
		}
		if _, err := o.startLocked(ctx, tmpl, lead, model.TriggerQualificationUpdated, now); err != nil {
			return analysis, err
		}

	case model.ResponseComplete:
		lead.Record(model.Activity{Kind: model.ActivityNotInterested, At: now})
		if live != nil {
			o.finish(live, lead, model.ExecutionCompleted, model.OutcomeNegative, now)
		}

	case model.ResponseContinue:
		if live != nil {
			o.skipWait(live, lead, now)
		}
	}

	if err := o.save(ctx, live, lead, now); err != nil {
		return analysis, err
	}
	return analysis, nil
}

// skipWait ends a pending wait step early so the next step runs on the
// following tick.
func (o *Orchestrator) skipWait(e *model.Execution, lead *model.Lead, now time.Time) {
	if e.Status != model.ExecutionActive || !e.Context.Waiting {
		return
	}
	tmpl, err := o.deps.Catalog.Get(e.TemplateID)
	if err != nil {
		return
	}
	o.advance(e, lead, tmpl, 1, now)
}

func (o *Orchestrator) liveExecution(ctx context.Context, leadID string) (*model.Execution, error) {
	e, err := o.deps.Registry.LiveExecution(ctx, leadID)
	if eris.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: live execution for %s", leadID)
	}
	return e, nil
}

// RecordActivity applies a provider event (connection accepted, open,
// click, unsubscribe) to the lead and settles its stage.
func (o *Orchestrator) RecordActivity(ctx context.Context, leadID string, a model.Activity) error {
	unlock := o.locks.Lock(leadID)
	defer unlock()

	lead, err := o.deps.Leads.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	now := o.opts.Now()
	if a.At.IsZero() {
		a.At = now
	}
	lead.Record(a)
	return o.settleLocked(ctx, lead, now)
}

// Unsubscribe stops all outreach to the lead.
func (o *Orchestrator) Unsubscribe(ctx context.Context, leadID string) error {
	return o.RecordActivity(ctx, leadID, model.Activity{Kind: model.ActivityUnsubscribed})
}

// UpdateLead applies fn to the lead under its lock, then settles the stage.
// It is the entry point for scoring and enrichment writes.
func (o *Orchestrator) UpdateLead(ctx context.Context, leadID string, fn func(l *model.Lead) error) (*model.Lead, error) {
	unlock := o.locks.Lock(leadID)
	defer unlock()

	lead, err := o.deps.Leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if err := fn(lead); err != nil {
		return nil, err
	}
	if err := o.settleLocked(ctx, lead, o.opts.Now()); err != nil {
		return nil, err
	}
	return lead.Clone(), nil
}

// Pause holds an active execution until Resume.
func (o *Orchestrator) Pause(ctx context.Context, executionID string) (*model.Execution, error) {
	return o.control(ctx, executionID, func(e *model.Execution, lead *model.Lead) error {
		if e.Status != model.ExecutionActive {
			return model.Validationf("execution %s is %s", e.ID, e.Status)
		}
		o.pause(e, lead, o.opts.Now())
		return nil
	})
}

// Resume reactivates a paused execution. The failure streak is cleared and
// the current step is due immediately.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) (*model.Execution, error) {
	return o.control(ctx, executionID, func(e *model.Execution, lead *model.Lead) error {
		if e.Status != model.ExecutionPaused {
			return model.Validationf("execution %s is %s", e.ID, e.Status)
		}
		if lead.Status.Closed() {
			return model.Validationf("lead %s is %s", lead.ID, lead.Status)
		}
		now := o.opts.Now()
		e.Status = model.ExecutionActive
		e.Context.ConsecutiveFailures = 0
		e.NextActionAt = now
		e.UpdatedAt = now
		lead.SequenceStatus = model.SequenceRunning
		return nil
	})
}

// Cancel ends a live execution.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) (*model.Execution, error) {
	return o.control(ctx, executionID, func(e *model.Execution, lead *model.Lead) error {
		if !e.Status.Live() {
			return model.Validationf("execution %s is %s", e.ID, e.Status)
		}
		o.finish(e, lead, model.ExecutionCancelled, model.OutcomeCancelled, o.opts.Now())
		return nil
	})
}

func (o *Orchestrator) control(ctx context.Context, executionID string, fn func(*model.Execution, *model.Lead) error) (*model.Execution, error) {
	peek, err := o.deps.Registry.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.Lock(peek.LeadID)
	defer unlock()

	e, err := o.deps.Registry.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	lead, err := o.deps.Leads.GetLead(ctx, e.LeadID)
	if err != nil {
		return nil, err
	}
	if err := fn(e, lead); err != nil {
		return nil, err
	}
	if err := o.save(ctx, e, lead, o.opts.Now()); err != nil {
		return nil, err
	}
	return e.Clone(), nil
}
