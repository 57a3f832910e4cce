package pipeline

import (
	"fmt"

	"github.com/sells-group/outreach-cli/internal/model"
)

// EffectKind names a side effect of a stage change.
type EffectKind string

const (
	EffectStartWorkflow   EffectKind = "start_workflow"
	EffectRaiseAlert      EffectKind = "raise_alert"
	EffectCancelExecution EffectKind = "cancel_execution"
)

// Effect is one action the caller must carry out for a transition.
type Effect struct {
	Kind         EffectKind         `json:"kind"`
	WorkflowType model.WorkflowType `json:"workflow_type,omitempty"`
	Trigger      string             `json:"trigger,omitempty"`
	Alert        *model.Alert       `json:"alert,omitempty"`
	Outcome      string             `json:"outcome,omitempty"`
}

// Decision is the result of comparing a lead's last acted-on stage with
// its derived stage.
type Decision struct {
	LeadID  string      `json:"lead_id"`
	From    model.Stage `json:"from"`
	To      model.Stage `json:"to"`
	Effects []Effect    `json:"effects,omitempty"`
}

// Changed reports whether the stage moved.
func (d Decision) Changed() bool { return d.From != d.To }

// Regression reports whether the stage moved backwards in the funnel.
func (d Decision) Regression() bool {
	return !d.To.Terminal() && !d.From.Terminal() && d.To.Order() < d.From.Order()
}

// Advance decides what must happen for the lead's current stage. It does
// not mutate the lead; once the effects are carried out the caller records
// the new stage with Commit. Calling Advance again after Commit yields no
// effects.
func Advance(l *model.Lead) Decision {
	from := l.LastAdvancedStage
	if from == "" {
		from = model.StageDiscovery
	}
	to := Derive(l)
	d := Decision{LeadID: l.ID, From: from, To: to}
	if !d.Changed() || d.Regression() || from.Terminal() {
		return d
	}

	name := l.DisplayName()
	switch {
	case to.Terminal():
		outcome := model.OutcomeStageClosed
		if to == model.StageClosedLost && l.Status == model.LeadStatusUnsubscribed {
			outcome = model.OutcomeUnsubscribed
		}
		d.Effects = append(d.Effects, Effect{Kind: EffectCancelExecution, Outcome: outcome})

	case to == model.StageQualified:
		d.Effects = append(d.Effects,
			Effect{
				Kind:         EffectStartWorkflow,
				WorkflowType: model.WorkflowVIPSequence,
				Trigger:      model.TriggerQualificationUpdated,
			},
			Effect{Kind: EffectRaiseAlert, Alert: &model.Alert{
				Type:           model.AlertQualificationUpdated,
				Severity:       model.SeverityHigh,
				LeadID:         l.ID,
				CampaignID:     l.CampaignID,
				Title:          "Lead qualified",
				Message:        fmt.Sprintf("%s reached %s (score %.1f)", name, l.Qualification, l.Score),
				ActionRequired: true,
			}},
		)

	case to == model.StageNurturing && from == model.StageEngagement:
		d.Effects = append(d.Effects, Effect{
			Kind:         EffectStartWorkflow,
			WorkflowType: model.WorkflowResponseNurture,
			Trigger:      model.TriggerResponseReceived,
		})

	case to == model.StageOpportunity:
		d.Effects = append(d.Effects, Effect{Kind: EffectRaiseAlert, Alert: &model.Alert{
			Type:           model.AlertConversionReady,
			Severity:       model.SeverityCritical,
			LeadID:         l.ID,
			CampaignID:     l.CampaignID,
			Title:          "Conversion ready",
			Message:        fmt.Sprintf("%s has an open %s opportunity", name, l.OpportunityType),
			ActionRequired: true,
		}})
	}
	return d
}

// Commit records that the decision's effects have run. Regressions and
// moves out of a terminal stage leave the watermark where it is, so a lead
// that dips and recovers does not repeat its entry effects.
func Commit(l *model.Lead, d Decision) {
	if d.From.Terminal() || d.Regression() {
		return
	}
	l.LastAdvancedStage = d.To
}
