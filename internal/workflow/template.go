// Package workflow runs outreach templates against leads: one live execution
// per lead, stepped forward by a scheduler tick and re-routed by responses.
package workflow

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// StepType is the kind of a template step.
type StepType string

const (
	StepSendConnection StepType = "send_connection"
	StepSendMessage    StepType = "send_message"
	StepWait           StepType = "wait"
	StepCondition      StepType = "condition"
	StepAction         StepType = "action"
)

// AltAction is what a condition step does when its predicate is false.
type AltAction string

const (
	AltComplete AltAction = "complete"
	AltPause    AltAction = "pause"
	AltSkip     AltAction = "skip"
)

// Channels a send step may use.
const (
	ChannelLinkedIn = "linkedin"
	ChannelEmail    = "email"
)

// Variant is one A/B alternative for a send step.
type Variant struct {
	Name    string `yaml:"name" json:"name"`
	Weight  int    `yaml:"weight" json:"weight"`
	Content string `yaml:"content" json:"content"`
}

// ActionSpec names a side-effect handler and its parameters.
type ActionSpec struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Step is one unit of a template.
type Step struct {
	ID                string        `yaml:"id" json:"id"`
	Type              StepType      `yaml:"type" json:"type"`
	Delay             time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	Channel           string        `yaml:"channel,omitempty" json:"channel,omitempty"`
	Content           string        `yaml:"content,omitempty" json:"content,omitempty"`
	Variants          []Variant     `yaml:"variants,omitempty" json:"variants,omitempty"`
	Condition         *Predicate    `yaml:"condition,omitempty" json:"condition,omitempty"`
	AlternativeAction AltAction     `yaml:"alternative_action,omitempty" json:"alternative_action,omitempty"`
	Actions           []ActionSpec  `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Sends reports whether the step dispatches outreach.
func (s Step) Sends() bool {
	return s.Type == StepSendConnection || s.Type == StepSendMessage
}

// EffectiveChannel returns the dispatch channel, defaulting to LinkedIn.
func (s Step) EffectiveChannel() string {
	if s.Channel == "" {
		return ChannelLinkedIn
	}
	return s.Channel
}

// Template is an immutable, validated sequence of steps.
type Template struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Type        model.WorkflowType `yaml:"type" json:"type"`
	Version     int                `yaml:"version" json:"version"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step             `yaml:"steps" json:"steps"`
}

// Validate checks the template and every step.
func (t *Template) Validate() error {
	if t.ID == "" {
		return model.Validationf("template id is required")
	}
	switch t.Type {
	case model.WorkflowColdOutreach, model.WorkflowWarmFollowUp, model.WorkflowResponseNurture,
		model.WorkflowVIPSequence, model.WorkflowReEngagement:
	default:
		return model.Validationf("template %s: unknown workflow type %q", t.ID, t.Type)
	}
	if len(t.Steps) == 0 {
		return model.Validationf("template %s: no steps", t.ID)
	}

	seen := make(map[string]bool, len(t.Steps))
	for i, s := range t.Steps {
		if s.ID == "" {
			return model.Validationf("template %s: step %d has no id", t.ID, i)
		}
		if seen[s.ID] {
			return model.Validationf("template %s: duplicate step id %q", t.ID, s.ID)
		}
		seen[s.ID] = true
		if s.Delay < 0 {
			return model.Validationf("template %s step %s: negative delay", t.ID, s.ID)
		}
		if err := s.validate(); err != nil {
			return model.Validationf("template %s step %s: %v", t.ID, s.ID, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Type {
	case StepSendConnection, StepSendMessage:
		if s.Content == "" && len(s.Variants) == 0 {
			return model.Validationf("send step needs content or variants")
		}
		if ch := s.EffectiveChannel(); ch != ChannelLinkedIn && ch != ChannelEmail {
			return model.Validationf("unknown channel %q", ch)
		}
		if s.Type == StepSendConnection && s.EffectiveChannel() != ChannelLinkedIn {
			return model.Validationf("connection requests only go over linkedin")
		}
		total := 0
		names := map[string]bool{}
		for _, v := range s.Variants {
			if v.Name == "" || v.Content == "" {
				return model.Validationf("variant needs a name and content")
			}
			if names[v.Name] {
				return model.Validationf("duplicate variant %q", v.Name)
			}
			names[v.Name] = true
			if v.Weight < 0 {
				return model.Validationf("variant %s has negative weight", v.Name)
			}
			total += v.Weight
		}
		if len(s.Variants) > 0 && total == 0 {
			return model.Validationf("variant weights sum to zero")
		}
	case StepWait:
		if s.Delay <= 0 {
			return model.Validationf("wait step needs a positive delay")
		}
	case StepCondition:
		if s.Condition == nil {
			return model.Validationf("condition step needs a condition")
		}
		if err := s.Condition.Validate(); err != nil {
			return err
		}
		switch s.AlternativeAction {
		case AltComplete, AltPause, AltSkip:
		default:
			return model.Validationf("alternative_action must be complete, pause, or skip")
		}
	case StepAction:
		if len(s.Actions) == 0 {
			return model.Validationf("action step needs at least one action")
		}
		for _, a := range s.Actions {
			if a.Name == "" {
				return model.Validationf("action needs a name")
			}
		}
	default:
		return model.Validationf("unknown step type %q", s.Type)
	}
	return nil
}
