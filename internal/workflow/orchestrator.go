package workflow

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/dispatch"
	"github.com/sells-group/outreach-cli/internal/lock"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

// campaignHoldDelay is how long a send waits before re-checking a campaign
// that is not currently sending.
const campaignHoldDelay = time.Hour

// Options tunes the orchestrator.
type Options struct {
	TickLimit              int
	Concurrency            int
	MaxStepsPerTick        int
	MaxConsecutiveFailures int
	StepRetryDelay         time.Duration
	DefaultTopic           string
	// Rand returns a value in [0,1) for A/B variant draws.
	Rand func() float64
	Now  func() time.Time
}

// OptionsFromConfig maps workflow settings onto Options.
func OptionsFromConfig(cfg config.WorkflowConfig) Options {
	return Options{
		TickLimit:              cfg.TickLimit,
		Concurrency:            cfg.Concurrency,
		MaxStepsPerTick:        cfg.MaxStepsPerTick,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		StepRetryDelay:         cfg.StepRetryDelay,
		DefaultTopic:           cfg.DefaultTopic,
	}
}

func (o Options) withDefaults() Options {
	if o.TickLimit <= 0 {
		o.TickLimit = 200
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.MaxStepsPerTick <= 0 {
		o.MaxStepsPerTick = 10
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = 3
	}
	if o.StepRetryDelay <= 0 {
		o.StepRetryDelay = 15 * time.Minute
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Deps are the collaborators of an Orchestrator. Campaigns, Sends, and
// Alerts are optional.
type Deps struct {
	Catalog    *Catalog
	Registry   Registry
	Leads      LeadStore
	Campaigns  CampaignStore
	Sends      SendLimiter
	Dispatcher dispatch.Dispatcher
	Alerts     AlertSink
	Analyzer   ResponseAnalyzer
}

// Orchestrator owns every mutation of a lead's workflow state. Each public
// method holds the lead's lock for its whole read-modify-write.
type Orchestrator struct {
	deps    Deps
	opts    Options
	locks   *lock.Keyed
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// New builds an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Analyzer == nil {
		deps.Analyzer = KeywordAnalyzer{}
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts.withDefaults(),
		locks:   lock.NewKeyed(),
		actions: make(map[string]ActionFunc),
	}
}

// RegisterAction installs the handler for a named action.
func (o *Orchestrator) RegisterAction(name string, fn ActionFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions[name] = fn
}

func (o *Orchestrator) action(name string) (ActionFunc, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	fn, ok := o.actions[name]
	return fn, ok
}

// Catalog returns the template catalog.
func (o *Orchestrator) Catalog() *Catalog { return o.deps.Catalog }

// Now returns the orchestrator's clock reading.
func (o *Orchestrator) Now() time.Time { return o.opts.Now() }

// Start begins templateID for a lead. It fails with model.ErrAlreadyActive
// when the lead already has a live execution.
func (o *Orchestrator) Start(ctx context.Context, templateID, leadID, trigger string) (*model.Execution, error) {
	tmpl, err := o.deps.Catalog.Get(templateID)
	if err != nil {
		return nil, err
	}
	return o.start(ctx, tmpl, leadID, trigger)
}

// StartType begins the default template of a workflow type.
func (o *Orchestrator) StartType(ctx context.Context, wt model.WorkflowType, leadID, trigger string) (*model.Execution, error) {
	tmpl, err := o.deps.Catalog.ForType(wt)
	if err != nil {
		return nil, err
	}
	return o.start(ctx, tmpl, leadID, trigger)
}

func (o *Orchestrator) start(ctx context.Context, tmpl *Template, leadID, trigger string) (*model.Execution, error) {
	unlock := o.locks.Lock(leadID)
	defer unlock()

	lead, err := o.deps.Leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	now := o.opts.Now()
	e, err := o.startLocked(ctx, tmpl, lead, trigger, now)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Leads.UpdateLead(ctx, lead); err != nil {
		return nil, eris.Wrapf(err, "workflow: save lead %s", leadID)
	}
	return e, nil
}

func (o *Orchestrator) startLocked(ctx context.Context, tmpl *Template, lead *model.Lead, trigger string, now time.Time) (*model.Execution, error) {
	if lead.Status.Closed() {
		return nil, model.Validationf("workflow: lead %s is %s", lead.ID, lead.Status)
	}
	e := &model.Execution{
		ID:           uuid.NewString(),
		LeadID:       lead.ID,
		CampaignID:   lead.CampaignID,
		TemplateID:   tmpl.ID,
		WorkflowType: tmpl.Type,
		Trigger:      trigger,
		Status:       model.ExecutionActive,
		NextActionAt: scheduleAt(tmpl, 0, now),
		Context:      model.ExecutionContext{Variants: map[string]string{}},
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.deps.Registry.CreateExecution(ctx, e); err != nil {
		return nil, err
	}
	lead.SequenceStatus = model.SequenceRunning
	lead.UpdatedAt = now

	zap.L().Info("workflow: started",
		zap.String("lead_id", lead.ID),
		zap.String("execution_id", e.ID),
		zap.String("template", tmpl.ID),
		zap.String("trigger", trigger),
	)
	return e.Clone(), nil
}

// scheduleAt is when step idx becomes due. Wait steps are entered at once
// and apply their own delay when first visited.
func scheduleAt(tmpl *Template, idx int, now time.Time) time.Time {
	if idx >= len(tmpl.Steps) {
		return now
	}
	s := tmpl.Steps[idx]
	if s.Type == StepWait {
		return now
	}
	return now.Add(s.Delay)
}

// TickSummary reports what one scheduler tick did.
type TickSummary struct {
	Due       int `json:"due"`
	Processed int `json:"processed"`
	Steps     int `json:"steps"`
	Sent      int `json:"sent"`
	Deferred  int `json:"deferred"`
	Failures  int `json:"failures"`
	Completed int `json:"completed"`
	Paused    int `json:"paused"`
	Errors    int `json:"errors"`
}

func (s *TickSummary) add(o TickSummary) {
	s.Processed += o.Processed
	s.Steps += o.Steps
	s.Sent += o.Sent
	s.Deferred += o.Deferred
	s.Failures += o.Failures
	s.Completed += o.Completed
	s.Paused += o.Paused
	s.Errors += o.Errors
}

// Tick advances every execution due at now. Leads are processed in
// parallel; errors on one lead are logged and counted, not returned.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) (TickSummary, error) {
	due, err := o.deps.Registry.DueExecutions(ctx, now, o.opts.TickLimit)
	if err != nil {
		return TickSummary{}, eris.Wrap(err, "workflow: load due executions")
	}

	summary := TickSummary{Due: len(due)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for _, e := range due {
		g.Go(func() error {
			res, err := o.process(gctx, e.ID, e.LeadID, now)
			if err != nil {
				res.Errors++
				zap.L().Error("workflow: process execution",
					zap.String("execution_id", e.ID),
					zap.String("lead_id", e.LeadID),
					zap.Error(err),
				)
			}
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, eris.Wrap(err, "workflow: tick cancelled")
	}
	zap.L().Info("workflow: tick complete",
		zap.Int("due", summary.Due),
		zap.Int("steps", summary.Steps),
		zap.Int("sent", summary.Sent),
		zap.Int("failures", summary.Failures),
	)
	return summary, nil
}

func (o *Orchestrator) process(ctx context.Context, execID, leadID string, now time.Time) (TickSummary, error) {
	var res TickSummary

	unlock := o.locks.Lock(leadID)
	defer unlock()

	e, err := o.deps.Registry.GetExecution(ctx, execID)
	if err != nil {
		return res, err
	}
	// Another caller may have moved it while this tick waited on the lock.
	if e.Status != model.ExecutionActive || e.NextActionAt.After(now) {
		return res, nil
	}
	lead, err := o.deps.Leads.GetLead(ctx, leadID)
	if err != nil {
		return res, err
	}
	// Terminal stages cancel live executions when they are reached, so a
	// due execution on one means a write skipped the pipeline.
	if stage := pipeline.Derive(lead); stage.Terminal() {
		verr := eris.Wrapf(model.ErrInvariantViolation, "workflow: execution %s is active on %s lead %s", e.ID, stage, lead.ID)
		o.finish(e, lead, model.ExecutionCancelled, closedOutcome(lead), now)
		o.raise(ctx, &model.Alert{
			Type:           model.AlertInvariantViolation,
			Severity:       model.SeverityCritical,
			LeadID:         lead.ID,
			CampaignID:     lead.CampaignID,
			Title:          "Active workflow on closed lead",
			Message:        verr.Error(),
			ActionRequired: true,
			Details:        map[string]any{"execution_id": e.ID, "stage": string(stage)},
			CreatedAt:      now,
		})
		if err := o.save(ctx, e, lead, now); err != nil {
			return res, err
		}
		return res, verr
	}
	tmpl, err := o.deps.Catalog.Get(e.TemplateID)
	if err != nil {
		o.finish(e, lead, model.ExecutionCancelled, "template_missing", now)
		res.Errors++
		return res, o.save(ctx, e, lead, now)
	}

	res.Processed = 1
	o.run(ctx, e, lead, tmpl, now, &res)

	return res, o.save(ctx, e, lead, now)
}

func closedOutcome(lead *model.Lead) string {
	if lead.Status == model.LeadStatusUnsubscribed {
		return model.OutcomeUnsubscribed
	}
	return model.OutcomeStageClosed
}

// run executes steps while the execution stays active and due.
func (o *Orchestrator) run(ctx context.Context, e *model.Execution, lead *model.Lead, tmpl *Template, now time.Time, res *TickSummary) {
	for i := 0; i < o.opts.MaxStepsPerTick; i++ {
		if e.Status != model.ExecutionActive || e.NextActionAt.After(now) {
			return
		}
		if lead.Status.Closed() {
			o.finish(e, lead, model.ExecutionCancelled, closedOutcome(lead), now)
			return
		}
		if e.StepIndex >= len(tmpl.Steps) {
			o.finish(e, lead, model.ExecutionCompleted, model.OutcomeCompleted, now)
			res.Completed++
			return
		}

		step := tmpl.Steps[e.StepIndex]
		res.Steps++
		deferred := res.Deferred
		if err := o.runStep(ctx, e, lead, tmpl, step, now, res); err != nil {
			res.Failures++
			o.fail(ctx, e, lead, step, err, now, res)
			return
		}
		// A deferred send did not run, so the streak stands.
		if res.Deferred == deferred {
			e.Context.ConsecutiveFailures = 0
		}
		if e.Status == model.ExecutionCompleted {
			res.Completed++
		}
		if e.Status == model.ExecutionPaused {
			res.Paused++
		}
	}
}

func (o *Orchestrator) runStep(ctx context.Context, e *model.Execution, lead *model.Lead, tmpl *Template, step Step, now time.Time, res *TickSummary) error {
	switch step.Type {
	case StepSendConnection, StepSendMessage:
		return o.send(ctx, e, lead, tmpl, step, now, res)

	case StepWait:
		if !e.Context.Waiting {
			e.Context.Waiting = true
			e.NextActionAt = now.Add(step.Delay)
			return nil
		}
		o.advance(e, lead, tmpl, 1, now)

	case StepCondition:
		if step.Condition.Eval(lead) {
			o.advance(e, lead, tmpl, 1, now)
			return nil
		}
		zap.L().Debug("workflow: condition not met",
			zap.String("execution_id", e.ID),
			zap.String("step", step.ID),
			zap.Stringer("condition", step.Condition),
			zap.String("alternative", string(step.AlternativeAction)),
		)
		switch step.AlternativeAction {
		case AltComplete:
			e.Context.StepsCompleted = append(e.Context.StepsCompleted, step.ID)
			o.finish(e, lead, model.ExecutionCompleted, model.OutcomeConditionEnd, now)
		case AltPause:
			o.pause(e, lead, now)
		case AltSkip:
			o.advance(e, lead, tmpl, 2, now)
		}

	case StepAction:
		o.runActions(ctx, e, lead, step, now)
		o.advance(e, lead, tmpl, 1, now)
	}
	return nil
}

func (o *Orchestrator) send(ctx context.Context, e *model.Execution, lead *model.Lead, tmpl *Template, step Step, now time.Time, res *TickSummary) error {
	channel := step.EffectiveChannel()
	if step.Type == StepSendMessage && channel == ChannelLinkedIn && !lead.Connected() {
		return model.Validationf("workflow: lead %s is not connected", lead.ID)
	}

	if e.CampaignID != "" && o.deps.Campaigns != nil {
		c, err := o.deps.Campaigns.GetCampaign(ctx, e.CampaignID)
		if err != nil {
			return err
		}
		if !c.Sending() {
			e.NextActionAt = now.Add(campaignHoldDelay)
			res.Deferred++
			return nil
		}
		if o.deps.Sends != nil {
			ok, err := o.deps.Sends.ReserveSend(ctx, c.ID, now, c.DailyCap, c.WeeklyCap)
			if err != nil {
				return eris.Wrap(err, "workflow: reserve send")
			}
			if !ok {
				e.NextActionAt = NextUTCDay(now)
				res.Deferred++
				zap.L().Debug("workflow: send cap reached",
					zap.String("campaign_id", c.ID),
					zap.String("execution_id", e.ID),
				)
				return nil
			}
		}
	}

	variant, content := o.pickContent(e, step)
	msg := dispatch.Message{
		LeadID:      lead.ID,
		ExecutionID: e.ID,
		CampaignID:  e.CampaignID,
		StepID:      step.ID,
		Variant:     variant,
		Channel:     channel,
		Kind:        dispatch.KindMessage,
		To:          address(lead, channel),
		Content:     Render(content, lead, o.opts.DefaultTopic),
	}
	kind := model.ActivityMessageSent
	if step.Type == StepSendConnection {
		msg.Kind = dispatch.KindConnection
		kind = model.ActivityConnectionSent
	}

	id, err := o.deps.Dispatcher.Send(ctx, msg)
	if err != nil {
		return err
	}

	e.Context.Messages = append(e.Context.Messages, id)
	lead.Record(model.Activity{Kind: kind, At: now, Channel: channel, Content: msg.Content})
	res.Sent++
	o.advance(e, lead, tmpl, 1, now)
	return nil
}

// pickContent returns the step's content, drawing an A/B variant once per
// execution and reusing it on retries.
func (o *Orchestrator) pickContent(e *model.Execution, step Step) (string, string) {
	if len(step.Variants) == 0 {
		return "", step.Content
	}
	if e.Context.Variants == nil {
		e.Context.Variants = map[string]string{}
	}
	if name, ok := e.Context.Variants[step.ID]; ok {
		for _, v := range step.Variants {
			if v.Name == name {
				return v.Name, v.Content
			}
		}
	}
	v := ChooseVariant(step.Variants, o.opts.Rand())
	e.Context.Variants[step.ID] = v.Name
	return v.Name, v.Content
}

// ChooseVariant picks a variant by weight using r in [0,1).
func ChooseVariant(vs []Variant, r float64) Variant {
	total := 0
	for _, v := range vs {
		total += v.Weight
	}
	target := r * float64(total)
	acc := 0.0
	for _, v := range vs {
		acc += float64(v.Weight)
		if target < acc {
			return v
		}
	}
	return vs[len(vs)-1]
}

func address(l *model.Lead, channel string) string {
	if channel == ChannelEmail {
		return l.ContactEmail()
	}
	if l.LinkedInURL != "" {
		return l.LinkedInURL
	}
	if l.Enrichment != nil {
		return l.Enrichment.LinkedInURL
	}
	return ""
}

func (o *Orchestrator) runActions(ctx context.Context, e *model.Execution, lead *model.Lead, step Step, now time.Time) {
	for _, a := range step.Actions {
		fn, ok := o.action(a.Name)
		if !ok {
			zap.L().Warn("workflow: no handler for action",
				zap.String("action", a.Name),
				zap.String("execution_id", e.ID),
			)
			continue
		}
		if err := fn(ctx, ActionContext{Lead: lead, Execution: e, Params: a.Params, Now: now}); err != nil {
			zap.L().Warn("workflow: action failed",
				zap.String("action", a.Name),
				zap.String("execution_id", e.ID),
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
		}
	}
}

// advance moves n steps forward and schedules the next one, completing the
// execution when it runs off the end.
func (o *Orchestrator) advance(e *model.Execution, lead *model.Lead, tmpl *Template, n int, now time.Time) {
	e.Context.StepsCompleted = append(e.Context.StepsCompleted, tmpl.Steps[e.StepIndex].ID)
	e.Context.Waiting = false
	e.StepIndex += n
	e.UpdatedAt = now
	if e.StepIndex >= len(tmpl.Steps) {
		e.StepIndex = len(tmpl.Steps)
		o.finish(e, lead, model.ExecutionCompleted, model.OutcomeCompleted, now)
		return
	}
	e.NextActionAt = scheduleAt(tmpl, e.StepIndex, now)
}

func (o *Orchestrator) fail(ctx context.Context, e *model.Execution, lead *model.Lead, step Step, err error, now time.Time, res *TickSummary) {
	e.Context.ConsecutiveFailures++
	e.Context.Failures = append(e.Context.Failures, model.StepFailure{StepID: step.ID, Error: err.Error(), At: now})
	e.UpdatedAt = now

	zap.L().Warn("workflow: step failed",
		zap.String("execution_id", e.ID),
		zap.String("lead_id", lead.ID),
		zap.String("step", step.ID),
		zap.Int("consecutive_failures", e.Context.ConsecutiveFailures),
		zap.Error(err),
	)

	if e.Context.ConsecutiveFailures < o.opts.MaxConsecutiveFailures {
		e.NextActionAt = now.Add(o.opts.StepRetryDelay)
		return
	}

	o.pause(e, lead, now)
	res.Paused++
	o.raise(ctx, &model.Alert{
		Type:           model.AlertWorkflowStalled,
		Severity:       model.SeverityHigh,
		LeadID:         lead.ID,
		CampaignID:     e.CampaignID,
		ExecutionID:    e.ID,
		Title:          "Workflow paused after repeated failures",
		Message:        fmt.Sprintf("%s: step %s failed %d times in a row: %v", e.TemplateID, step.ID, e.Context.ConsecutiveFailures, err),
		ActionRequired: true,
		Details: map[string]any{
			"step_id":  step.ID,
			"failures": e.Context.ConsecutiveFailures,
		},
		CreatedAt: now,
	})
}

func (o *Orchestrator) pause(e *model.Execution, lead *model.Lead, now time.Time) {
	e.Status = model.ExecutionPaused
	e.UpdatedAt = now
	lead.SequenceStatus = model.SequencePaused
}

func (o *Orchestrator) finish(e *model.Execution, lead *model.Lead, status model.ExecutionStatus, outcome string, now time.Time) {
	e.Finish(status, outcome, now)
	switch {
	case lead.SequenceStatus == model.SequenceStopped:
	case status == model.ExecutionCancelled:
		lead.SequenceStatus = model.SequenceStopped
	default:
		lead.SequenceStatus = model.SequenceCompleted
	}
	zap.L().Info("workflow: finished",
		zap.String("execution_id", e.ID),
		zap.String("lead_id", e.LeadID),
		zap.String("status", string(status)),
		zap.String("outcome", outcome),
	)
}

func (o *Orchestrator) raise(ctx context.Context, a *model.Alert) {
	if o.deps.Alerts == nil {
		return
	}
	if _, err := o.deps.Alerts.Raise(ctx, a); err != nil {
		zap.L().Warn("workflow: raise alert", zap.String("type", string(a.Type)), zap.Error(err))
	}
}

// save persists the execution, then runs stage effects for the lead and
// saves it.
func (o *Orchestrator) save(ctx context.Context, e *model.Execution, lead *model.Lead, now time.Time) error {
	if e != nil {
		if err := o.deps.Registry.UpdateExecution(ctx, e); err != nil {
			return eris.Wrapf(err, "workflow: save execution %s", e.ID)
		}
	}
	return o.settleLocked(ctx, lead, now)
}

// settleLocked runs the pipeline effects of the lead's current stage and
// persists the lead. The caller holds the lead lock.
func (o *Orchestrator) settleLocked(ctx context.Context, lead *model.Lead, now time.Time) error {
	d := pipeline.Advance(lead)
	for _, eff := range d.Effects {
		switch eff.Kind {
		case pipeline.EffectStartWorkflow:
			tmpl, err := o.deps.Catalog.ForType(eff.WorkflowType)
			if err != nil {
				zap.L().Warn("workflow: no template for stage effect", zap.String("type", string(eff.WorkflowType)))
				continue
			}
			if _, err := o.startLocked(ctx, tmpl, lead, eff.Trigger, now); err != nil {
				if eris.Is(err, model.ErrAlreadyActive) {
					zap.L().Debug("workflow: stage start skipped, execution live", zap.String("lead_id", lead.ID))
					continue
				}
				return err
			}
		case pipeline.EffectRaiseAlert:
			a := *eff.Alert
			a.CreatedAt = now
			o.raise(ctx, &a)
		case pipeline.EffectCancelExecution:
			live, err := o.deps.Registry.LiveExecution(ctx, lead.ID)
			if eris.Is(err, model.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			o.finish(live, lead, model.ExecutionCancelled, eff.Outcome, now)
			if err := o.deps.Registry.UpdateExecution(ctx, live); err != nil {
				return eris.Wrapf(err, "workflow: cancel execution %s", live.ID)
			}
		}
	}
	if d.Changed() {
		zap.L().Info("workflow: stage changed",
			zap.String("lead_id", lead.ID),
			zap.String("from", string(d.From)),
			zap.String("to", string(d.To)),
			zap.Int("effects", len(d.Effects)),
		)
	}
	pipeline.Commit(lead, d)
	lead.UpdatedAt = now
	if err := o.deps.Leads.UpdateLead(ctx, lead); err != nil {
		return eris.Wrapf(err, "workflow: save lead %s", lead.ID)
	}
	if o.deps.Alerts != nil {
		if err := o.deps.Alerts.CheckLead(ctx, lead, now); err != nil {
			zap.L().Warn("workflow: check lead alerts", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}
	return nil
}
